package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clinical-scribe/internal/config"
	"clinical-scribe/internal/platform/observability"
	"clinical-scribe/internal/platform/postgres"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.InitLogger(serviceName, cfg.Server.Env)
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the pipeline workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
		return err
	}
	log.Info().Msg("migrations applied")

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.runner.Start(ctx)
	}()

	// Workers are already draining the queue, so recovered ids never overflow the buffer.
	if _, err := a.runner.Recover(ctx, cfg.Jobs.StaleAfter); err != nil {
		log.Warn().Err(err).Msg("job recovery failed")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	<-workersDone
	log.Info().Msg("server exited")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return errors.New("steps must be a positive integer")
				}
				steps = n
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := postgres.MigrateDown(cfg.Database.URL, steps); err != nil {
				return err
			}
			log.Info().Int("steps", steps).Msg("migrations rolled back")
			return nil
		},
	})
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and repair pipeline jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "Re-dispatch pending and stale running jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Jobs.Queue != "sqs" {
				return errors.New("jobs recover needs JOB_QUEUE=sqs; the server recovers in-memory jobs when it starts")
			}
			ctx := cmd.Context()
			a, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.runner.Recover(ctx, cfg.Jobs.StaleAfter)
			if err != nil {
				return err
			}
			log.Info().Int("jobs", n).Msg("jobs re-dispatched")
			return nil
		},
	})
	return cmd
}
