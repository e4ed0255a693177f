package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finplan/internal/config"
	httpserver "github.com/fyrsmithlabs/finplan/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.LoadWithFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return run(ctx, cfg)
	},
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Dependencies are initialized first (telemetry, logger, NATS, services),
// then the HTTP server. On cancellation the server drains in-flight requests
// within the configured shutdown timeout before services are stopped.
func run(ctx context.Context, cfg *config.Config) error {
	deps, err := initDependencies(ctx, cfg, false)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close(context.WithoutCancel(ctx))

	logger := deps.logger
	logger.Info(ctx, "Starting finplan",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	srv, err := httpserver.NewServer(deps.services.Jobs(), deps.services.Engine(), logger.Underlying(), &httpserver.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Version:     version,
		SubmitRate:  cfg.Jobs.SubmitRate,
		SubmitBurst: cfg.Jobs.SubmitBurst,
		Gatherer:    deps.metrics,
		Meter:       deps.telemetry.Meter(httpserver.MeterName),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info(ctx, "Shutting down", zap.Error(context.Cause(ctx)))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
