package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/telecare/internal/admin"
	"github.com/hackgods/telecare/internal/api"
	"github.com/hackgods/telecare/internal/appointment"
	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/config"
	"github.com/hackgods/telecare/internal/consultation"
	"github.com/hackgods/telecare/internal/db"
	"github.com/hackgods/telecare/internal/logging"
	"github.com/hackgods/telecare/internal/notify"
	"github.com/hackgods/telecare/internal/onboarding"
	redisclient "github.com/hackgods/telecare/internal/redis"
	"github.com/hackgods/telecare/internal/signaling"
)

const (
	version     = "0.1.0"
	presenceTTL = 2 * time.Hour
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "api-server",
		Short: "Telemedicine REST API and signaling relay",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Env, "migrate")

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info().Msg("schema applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			tok, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL).Issue(id, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", string(auth.RolePatient), "admin, doctor or patient")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	logger := logging.New(cfg.Env, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	presence := redisclient.NewRedisPresence(rdb, presenceTTL)
	notifier := notify.New(cfg, logger)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	appointments := appointment.NewService(appointment.NewPgRepository(pgPool), locker, notifier, logger)
	consultations := consultation.NewService(consultation.NewPgRepository(pgPool), appointments, logger)
	onboardingSvc := onboarding.NewService(onboarding.NewPgRepository(pgPool), locker, logger)
	adminSvc := admin.NewService(admin.NewPgRepository(pgPool), notifier, logger)

	hub := signaling.NewHub(signaling.AppointmentPolicy{Appointments: appointments}, presence, logger)

	router := api.NewRouter(api.RouterConfig{
		Appointments:  appointments,
		Consultations: consultations,
		Onboarding:    onboardingSvc,
		Admin:         adminSvc,
		Issuer:        issuer,
		Signaling:     signaling.NewHandler(hub, issuer, logger),
		Hub:           hub,
		Presence:      presence,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-rootCtx.Done():
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
