package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/logger"
	"curator/internal/scheduler"
	"curator/internal/server"
)

// NewServeCmd creates the serve command for the long-running scheduler
func NewServeCmd() *cobra.Command {
	var (
		port            int
		host            string
		noSchedule      bool
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hourly scheduler and the ops HTTP server",
		Long: `Start curator as a long-running service.

The service provides:
  • Hourly ingestion cycles (scheduler.cron, default "0 * * * *")
  • GET  /health       liveness and database check
  • GET  /api/status   last run, next run and backlog counts
  • POST /api/runs     trigger a cycle now (409 when one is running)

On SIGINT or SIGTERM the HTTP server stops accepting requests and any
in-flight cycle gets --shutdown-timeout to finish before it is canceled.

Examples:
  # Start with defaults from config
  curator serve

  # Manual triggers only, on a custom port
  curator serve --no-schedule --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			serverCfg := cfg.Server
			if port != 0 {
				serverCfg.Port = port
			}
			if host != "" {
				serverCfg.Host = host
			}
			return runServe(cmd.Context(), cfg, serverCfg, !noSchedule && cfg.Scheduler.Enabled, shutdownTimeout)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Disable the cron schedule; runs start only via POST /api/runs")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "How long to wait for an in-flight run on shutdown")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, serverCfg config.Server, scheduled bool, shutdownTimeout time.Duration) error {
	log := logger.Get()

	in, err := buildIngestion(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := in.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w\n\n"+
			"Make sure PostgreSQL is running and the connection string is correct.\n"+
			"Run 'curator migrate up' to initialize the database schema.", err)
	}

	sched, err := scheduler.New(in.pipeline, scheduler.Options{
		Cron:       cfg.Scheduler.Cron,
		Timezone:   cfg.Scheduler.Timezone,
		RunOnStart: cfg.Scheduler.RunOnStart,
	})
	if err != nil {
		return err
	}

	srv := server.New(in.db, sched, server.Options{
		Addr:         serverCfg.Addr(),
		ReadTimeout:  config.Duration(serverCfg.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(serverCfg.WriteTimeout, 30*time.Second),
		CORSOrigins:  serverCfg.CORSOrigins,
		Version:      Version,
	})

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s", serverCfg.Addr()))
		serverErrors <- srv.Start()
	}()

	if scheduled {
		sched.Start()
	} else {
		log.Info("Schedule disabled, runs start only on demand")
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var serveErr error
	select {
	case err := <-serverErrors:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown initiated", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn("In-flight run canceled at shutdown", "error", err)
	}

	log.Info("Curator stopped")
	return serveErr
}
