package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finplan/internal/config"
	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/logging"
	"github.com/fyrsmithlabs/finplan/internal/services"
	"github.com/fyrsmithlabs/finplan/internal/telemetry"
)

// dependencies holds infrastructure shared by serve and mcp.
type dependencies struct {
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	natsConn  *nats.Conn
	metrics   *prometheus.Registry
	services  services.Registry
}

// Close stops services before releasing the connections they use.
func (d *dependencies) Close(ctx context.Context) {
	if d.services != nil {
		d.services.Close()
	}
	if d.natsConn != nil {
		if err := d.natsConn.Drain(); err != nil {
			d.natsConn.Close()
		}
	}
	if err := d.telemetry.Shutdown(ctx); err != nil {
		d.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = d.logger.Sync()
}

// initDependencies builds logging, telemetry, the optional NATS publisher
// and the service registry. stderr routes logs away from a stdio transport.
func initDependencies(ctx context.Context, cfg *config.Config, stderr bool) (*dependencies, error) {
	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logCfg.Output.Stderr = stderr
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	deps := &dependencies{
		logger:    logger,
		telemetry: tel,
		metrics:   prometheus.NewRegistry(),
	}
	deps.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var publisher jobs.Publisher
	if cfg.NATS.Enabled {
		nc, err := jobs.ConnectNATS(cfg.NATS, logger)
		if err != nil {
			deps.Close(ctx)
			return nil, err
		}
		deps.natsConn = nc
		publisher = jobs.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)
	}

	deps.services, err = services.NewRegistry(services.Options{
		Config:     cfg,
		Logger:     logger,
		Registerer: deps.metrics,
		Tracer:     tel.Tracer("finplan"),
		Publisher:  publisher,
	})
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info(ctx, "Dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Bool("telemetry_enabled", tel.IsEnabled()),
		zap.Int("job_workers", cfg.Jobs.Workers),
		zap.Int("projection_workers", cfg.Projection.Workers))

	return deps, nil
}
