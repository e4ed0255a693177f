package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/logging"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Options configures a Service.
type Options struct {
	// Engine runs projections. Required.
	Engine    Computer
	Publisher Publisher
	Logger    *logging.Logger
	Tracer    trace.Tracer
	Metrics   *Metrics

	Workers   int           // default 4
	QueueSize int           // default 100
	Retention time.Duration // terminal job TTL; default 1h
}

// Service accepts job submissions and answers status and cancel requests.
type Service struct {
	registry *Registry
	runner   *Runner
	logger   *logging.Logger
	metrics  *Metrics
}

// NewService creates a Service and starts its workers.
func NewService(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, errors.New("jobs: engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Retention == 0 {
		opts.Retention = time.Hour
	}

	logger := opts.Logger.Named("jobs")
	reg := NewRegistry(opts.Publisher, opts.Retention, logger)
	return &Service{
		registry: reg,
		runner:   newRunner(reg, opts.Engine, opts.Workers, opts.QueueSize, logger, opts.Tracer, opts.Metrics),
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Submit validates and enqueues a job, returning its ID.
func (s *Service) Submit(ctx context.Context, typ string, data json.RawMessage) (string, error) {
	jobType, err := ParseType(typ)
	if err != nil {
		s.metrics.Rejected.WithLabelValues("invalid").Inc()
		return "", err
	}
	if err := validateData(jobType, data); err != nil {
		s.metrics.Rejected.WithLabelValues("invalid").Inc()
		return "", err
	}

	job := s.registry.Create(ctx, jobType, data)
	ctx = logging.WithJobID(ctx, job.ID)

	if err := s.runner.Enqueue(job.ID); err != nil {
		s.registry.Remove(job.ID)
		reason := "queue_full"
		if errors.Is(err, ErrClosed) {
			reason = "closed"
		}
		s.metrics.Rejected.WithLabelValues(reason).Inc()
		s.logger.Warn(ctx, "job rejected", zap.String("type", typ), zap.Error(err))
		return "", err
	}

	s.metrics.Submitted.WithLabelValues(string(jobType)).Inc()
	s.logger.Info(ctx, "job accepted", zap.String("type", typ), zap.String("owner", job.Owner))
	return job.ID, nil
}

// Status returns the wire view of a job.
func (s *Service) Status(_ context.Context, id string) (JobStatus, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return JobStatus{}, err
	}
	return job.Snapshot(), nil
}

// Job returns the full registry record.
func (s *Service) Job(id string) (Job, error) {
	return s.registry.Get(id)
}

// Cancel cancels a job. Cancelling a terminal job is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) error {
	job, err := s.registry.Cancel(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info(logging.WithJobID(ctx, id), "job cancel requested", zap.String("status", string(job.Status)))
	return nil
}

// Close stops the workers and expiry timers.
func (s *Service) Close() {
	s.runner.Close()
	s.registry.Close()
}

func validateData(typ Type, data json.RawMessage) error {
	if len(data) == 0 || !json.Valid(data) {
		return fmt.Errorf("%w: data must be a JSON value", ErrInvalidData)
	}
	if typ == TypeBatch {
		if _, err := decodeBatch(data); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidData, err)
		}
	}
	return nil
}
