package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/telecare/internal/client"
)

func adminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Doctor verification and patient management",
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List doctors awaiting verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.api.PendingDoctors(cmd.Context())
			if !r.IsOk() {
				return r.Err()
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tSUBMITTED")
			for _, d := range r.Data.Doctors {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Email, d.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}

	approve := &cobra.Command{
		Use:   "approve <doctor-id>",
		Short: "Approve a doctor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid doctor id: %w", err)
			}
			r := a.api.ApproveDoctor(cmd.Context(), id)
			if !r.IsOk() {
				return r.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", r.Data.Name, r.Data.ApprovalStatus)
			return nil
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject <doctor-id>",
		Short: "Reject a doctor with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid doctor id: %w", err)
			}
			r := a.api.RejectDoctor(cmd.Context(), id, reason)
			if !r.IsOk() {
				return r.Err()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s: %s\n", r.Data.Name, r.Data.ApprovalStatus, r.Data.RejectionReason)
			return nil
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "why the application was rejected")

	var (
		search string
		active string
		page   int
		limit  int
	)
	patients := &cobra.Command{
		Use:   "patients",
		Short: "List patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := client.PatientQuery{Search: search, Page: page, Limit: limit}
			switch active {
			case "":
			case "true", "false":
				on := active == "true"
				q.Active = &on
			default:
				return fmt.Errorf("--active must be true or false")
			}

			r := a.api.ListPatients(cmd.Context(), q)
			if !r.IsOk() {
				return r.Err()
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tSTATUS")
			for _, p := range r.Data.Patients {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Email, p.Status())
			}
			fmt.Fprintf(tw, "\npage %d of %d (%d total)\n", r.Data.Pagination.Page, r.Data.Pagination.Pages, r.Data.Pagination.Total)
			return tw.Flush()
		},
	}
	patients.Flags().StringVar(&search, "search", "", "name or email contains")
	patients.Flags().StringVar(&active, "active", "", "true or false")
	patients.Flags().IntVar(&page, "page", 1, "page number")
	patients.Flags().IntVar(&limit, "limit", 10, "page size")

	cmd.AddCommand(pending, approve, reject, patients)
	return cmd
}
