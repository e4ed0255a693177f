package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/logging"
	"github.com/fyrsmithlabs/finplan/internal/projection"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Computer runs one projection. *projection.Engine implements it.
type Computer interface {
	Compute(ctx context.Context, typ projection.MessageType, data json.RawMessage) (json.RawMessage, error)
}

// Runner executes queued jobs on a fixed pool of workers.
type Runner struct {
	registry *Registry
	engine   Computer
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics

	queue   chan string
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	base   context.Context
	cancel context.CancelFunc
}

func newRunner(reg *Registry, engine Computer, workers, queueSize int, logger *logging.Logger, tracer trace.Tracer, metrics *Metrics) *Runner {
	base, cancel := context.WithCancel(context.Background())
	r := &Runner{
		registry: reg,
		engine:   engine,
		logger:   logger.Named("runner"),
		tracer:   tracer,
		metrics:  metrics,
		queue:    make(chan string, queueSize),
		workers:  workers,
		base:     base,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue schedules a pending job without blocking.
func (r *Runner) Enqueue(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	// Counted before the send so a worker's Dec never precedes it.
	r.metrics.QueueDepth.Inc()
	select {
	case r.queue <- id:
		return nil
	default:
		r.metrics.QueueDepth.Dec()
		return ErrQueueFull
	}
}

// Close stops accepting jobs, cancels running ones and waits for workers.
// Jobs still queued are failed as cancelled.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for id := range r.queue {
		r.metrics.QueueDepth.Dec()
		r.run(id)
	}
}

func (r *Runner) run(id string) {
	ctx := logging.WithJobID(r.base, id)

	job, err := r.registry.Get(id)
	if err != nil {
		r.logger.Debug(ctx, "queued job expired before start")
		return
	}
	if r.base.Err() != nil {
		_, _ = r.registry.Cancel(ctx, id)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.registry.attach(id, cancel) {
		// Cancelled while queued.
		return
	}
	if err := r.registry.Start(ctx, id); err != nil {
		return
	}

	ctx, span := r.tracer.Start(ctx, "job.run", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.String("job.type", string(job.Type)),
	))
	defer span.End()

	start := time.Now()
	r.logger.Debug(ctx, "job started", zap.String("type", string(job.Type)))

	result, err := r.execute(ctx, job)
	status := StatusCompleted
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		// No-op when Cancel already recorded it; covers shutdown otherwise.
		status = StatusFailed
		_, _ = r.registry.Cancel(context.WithoutCancel(ctx), id)
		span.SetStatus(codes.Error, CancelledMessage)
		r.logger.Info(ctx, "job cancelled", zap.Duration("duration", time.Since(start)))
	case err != nil:
		status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ferr := r.registry.Fail(ctx, id, err.Error()); ferr != nil {
			r.logger.Debug(ctx, "job fail discarded", zap.Error(ferr))
		}
		r.logger.Warn(ctx, "job failed", zap.Error(err))
	default:
		if cerr := r.registry.Complete(ctx, id, result); cerr != nil {
			// Lost a race with Cancel.
			status = StatusFailed
			r.logger.Debug(ctx, "job result discarded", zap.Error(cerr))
		} else {
			r.logger.Info(ctx, "job completed", zap.Duration("duration", time.Since(start)))
		}
	}

	r.metrics.Finished.WithLabelValues(string(job.Type), string(status)).Inc()
	r.metrics.Duration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
}

func (r *Runner) execute(ctx context.Context, job Job) (json.RawMessage, error) {
	if job.Type != TypeBatch {
		return r.engine.Compute(ctx, projection.MessageType(job.Type), job.Data)
	}

	items, err := decodeBatch(job.Data)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := r.engine.Compute(ctx, item.Type, item.Data)
		if err != nil {
			return nil, fmt.Errorf("item %d (%s): %w", i, item.Type, err)
		}
		results = append(results, BatchResult{Type: item.Type, Result: out})

		if err := r.registry.Progress(ctx, job.ID, (i+1)*100/len(items)); err != nil {
			var te *TransitionError
			if errors.As(err, &te) {
				return nil, context.Canceled
			}
			return nil, err
		}
	}
	return json.Marshal(results)
}

func decodeBatch(data json.RawMessage) ([]BatchItem, error) {
	var items []BatchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("batch payload must be a list of {type, data}: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("batch payload is empty")
	}
	for i, item := range items {
		if !item.Type.Valid() {
			return nil, fmt.Errorf("item %d: %w: %q", i, ErrUnknownType, item.Type)
		}
	}
	return items, nil
}
