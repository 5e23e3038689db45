package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/client"
	"github.com/hackgods/telecare/internal/config"
	"github.com/hackgods/telecare/internal/logging"
	"github.com/hackgods/telecare/internal/session"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	store  *session.Store
	sess   *session.Session
	api    *client.Client
}

// consoleNotifier prints toasts to stderr.
type consoleNotifier struct {
	w io.Writer
}

func (n consoleNotifier) Toast(kind client.ToastKind, msg string) {
	fmt.Fprintf(n.w, "[%s] %s\n", kind, msg)
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "consult",
		Short:        "Telemedicine client: live consultations, onboarding and admin review",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	rootCmd.AddCommand(joinCmd(a))
	rootCmd.AddCommand(onboardCmd(a))
	rootCmd.AddCommand(adminCmd(a))
	rootCmd.AddCommand(appointmentsCmd(a))
	rootCmd.AddCommand(tokenCmd(a))
	rootCmd.AddCommand(sessionCmd(a))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Env, "consult")

	a.store = session.NewStore(cfg.SessionFile)
	a.sess, err = a.store.Load()
	if err != nil {
		return err
	}

	a.api = client.New(cfg.APIBaseURL, a.sess,
		client.WithNotifier(consoleNotifier{w: stderr}),
		client.WithLogger(a.logger),
	)
	return nil
}

// role is the signed-in user's role, or doctor when no user is stored.
func (a *app) role() auth.Role {
	if u, ok := a.sess.User(); ok && u.Role != "" {
		return u.Role
	}
	return auth.RoleDoctor
}

func tokenCmd(a *app) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print the stored bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := a.sess.Token()
			if admin {
				tok = a.sess.AdminToken()
			}
			if tok == "" {
				return fmt.Errorf("no token stored in %s", a.store.Path())
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "print the admin token instead")
	return cmd
}

func sessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored sign-in",
	}

	var (
		token, adminToken   string
		userID, name, email string
		role                string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Store tokens and the user record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("token") {
				a.sess.SetToken(token)
			}
			if cmd.Flags().Changed("admin-token") {
				a.sess.SetAdminToken(adminToken)
			}
			if userID != "" {
				id, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid --user-id: %w", err)
				}
				r, err := auth.ParseRole(role)
				if err != nil {
					return err
				}
				a.sess.SetUser(session.User{ID: id, Name: name, Email: email, Role: r})
			}
			if err := a.store.Save(a.sess); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session saved to %s\n", a.store.Path())
			return nil
		},
	}
	set.Flags().StringVar(&token, "token", "", "user bearer token")
	set.Flags().StringVar(&adminToken, "admin-token", "", "admin bearer token")
	set.Flags().StringVar(&userID, "user-id", "", "user id")
	set.Flags().StringVar(&name, "name", "", "display name")
	set.Flags().StringVar(&email, "email", "", "email")
	set.Flags().StringVar(&role, "role", string(auth.RoleDoctor), "admin, doctor or patient")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored sign-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.sess.Clear()
			return a.store.Save(a.sess)
		},
	}

	cmd.AddCommand(set, clearCmd)
	return cmd
}
