package services

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/finplan/internal/config"
	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/logging"
	"github.com/fyrsmithlabs/finplan/internal/projection"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Registry provides access to the running services.
type Registry interface {
	Engine() *projection.Engine
	Jobs() *jobs.Service
	Close()
}

// Options configures the registry.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Registerer receives engine and job metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	Publisher  jobs.Publisher
}

type registry struct {
	engine *projection.Engine
	jobs   *jobs.Service
}

// NewRegistry starts the projection engine and the job service.
func NewRegistry(opts Options) (Registry, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	cfg := opts.Config

	engineOpts := []projection.Option{
		projection.WithWorkers(cfg.Projection.Workers),
		projection.WithQueueSize(cfg.Projection.QueueSize),
		projection.WithLogger(opts.Logger.Underlying()),
		projection.WithTracer(opts.Tracer),
		projection.WithMetrics(projection.NewMetrics(opts.Registerer)),
	}
	engine := projection.New(engineOpts...)

	svc, err := jobs.NewService(jobs.Options{
		Engine:    engine,
		Publisher: opts.Publisher,
		Logger:    opts.Logger,
		Tracer:    opts.Tracer,
		Metrics:   jobs.NewMetrics(opts.Registerer),
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		Retention: cfg.Jobs.RetentionTTL,
	})
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	return &registry{engine: engine, jobs: svc}, nil
}

func (r *registry) Engine() *projection.Engine { return r.engine }
func (r *registry) Jobs() *jobs.Service        { return r.jobs }

// Close stops the job workers before the engine they post to.
func (r *registry) Close() {
	r.jobs.Close()
	r.engine.Close()
}
