package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/wizard"
)

func onboardCmd(a *app) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Resume or submit the onboarding wizard",
	}
	cmd.PersistentFlags().StringVar(&role, "role", "", "doctor or patient (defaults to the signed-in role)")

	newWizard := func() (*wizard.Wizard, error) {
		r := a.role()
		if role != "" {
			r = auth.Role(role)
		}
		return wizard.New(r, a.api, a.api.Notifier())
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show onboarding progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWizard()
			if err != nil {
				return err
			}
			if err := w.Resume(cmd.Context()); err != nil {
				return err
			}
			printWizard(cmd, w)
			return nil
		},
	}

	var (
		fields map[string]string
		lists  map[string]string
	)
	save := &cobra.Command{
		Use:   "save",
		Short: "Submit the current step",
		Example: `  consult onboard save --field firstName=Asha --field lastName=Rao \
    --field medicalRegistrationNumber=KMC-1021 --field registrationCouncil=Karnataka
  consult onboard save --list specialties=Cardiology,Neurology --field shortBio="Cardiologist"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWizard()
			if err != nil {
				return err
			}
			if err := w.Resume(cmd.Context()); err != nil {
				return err
			}

			data := make(map[string]any, len(fields)+len(lists))
			for k, v := range fields {
				data[k] = v
			}
			for k, v := range lists {
				var items []string
				for _, item := range strings.Split(v, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				data[k] = items
			}

			if err := w.Submit(cmd.Context(), data); err != nil {
				return err
			}
			printWizard(cmd, w)
			return nil
		},
	}
	save.Flags().StringToStringVar(&fields, "field", nil, "step field as key=value (repeatable)")
	save.Flags().StringToStringVar(&lists, "list", nil, "list field as key=a,b,c (repeatable)")

	cmd.AddCommand(status, save)
	return cmd
}

func printWizard(cmd *cobra.Command, w *wizard.Wizard) {
	out := cmd.OutOrStdout()
	if w.Done() {
		fmt.Fprintf(out, "Onboarding complete. Continue at %s\n", w.RedirectRoute())
		return
	}

	step := w.Step()
	fmt.Fprintf(out, "Step %d of 4: %s\n", step.Number, step.Title)
	for _, f := range step.Required {
		fmt.Fprintf(out, "  required: %s (%s)\n", f.Key, f.Label)
	}
}
