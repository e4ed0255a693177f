package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const defaultQueueSize = 64

type calculator func(data json.RawMessage) (any, error)

type request struct {
	ctx   context.Context
	msg   Message
	reply chan Reply
}

// Engine runs calculators on a fixed pool of worker goroutines.
type Engine struct {
	calculators map[MessageType]calculator
	queue       chan request

	workers   int
	queueSize int
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of worker goroutines (default 1).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets how many messages may wait for a worker.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for per-message spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine and starts its workers.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers:   1,
		queueSize: defaultQueueSize,
		logger:    zap.NewNop(),
		tracer:    noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}

	e.calculators = map[MessageType]calculator{
		CalculateFinancialHealth: decodeAndRun(FinancialHealth),
		CalculateDebtPayoff:      decodeAndRun(DebtPayoffSchedule),
		CalculateGoalProjections: decodeAndRun(GoalProjections),
		AnalyzeSpendingPatterns:  decodeAndRun(SpendingPatterns),
	}
	e.queue = make(chan request, e.queueSize)

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Post enqueues msg and returns a channel that receives exactly one Reply
// with the same ID. A message without an ID is assigned one. Post blocks only
// while the queue is full; a posted message cannot be cancelled.
func (e *Engine) Post(ctx context.Context, msg Message) (<-chan Reply, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	req := request{
		ctx:   context.WithoutCancel(ctx),
		msg:   msg,
		reply: make(chan Reply, 1),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrEngineClosed
	}

	// Counted before the send so a worker's Dec never precedes it.
	e.metrics.QueueDepth.Inc()
	select {
	case e.queue <- req:
		return req.reply, nil
	case <-ctx.Done():
		e.metrics.QueueDepth.Dec()
		return nil, ctx.Err()
	}
}

// Compute posts a message and waits for its reply. An ERROR reply is
// returned as a *CalculationError.
func (e *Engine) Compute(ctx context.Context, typ MessageType, data json.RawMessage) (json.RawMessage, error) {
	ch, err := e.Post(ctx, Message{Type: typ, Data: data})
	if err != nil {
		return nil, err
	}
	select {
	case reply := <-ch:
		if err := reply.Err(); err != nil {
			return nil, err
		}
		return reply.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting messages and waits for queued ones to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for req := range e.queue {
		e.metrics.QueueDepth.Dec()
		req.reply <- e.Handle(req.ctx, req.msg)
	}
}

// Handle processes msg on the calling goroutine. It never panics.
func (e *Engine) Handle(ctx context.Context, msg Message) (reply Reply) {
	start := time.Now()
	label := typeLabel(msg.Type)

	_, span := e.tracer.Start(ctx, "projection.handle",
		trace.WithAttributes(
			attribute.String("projection.type", label),
			attribute.String("projection.id", msg.ID),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("projection panicked",
				zap.String("type", label),
				zap.String("id", msg.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			reply = errorReply(msg, &CalculationError{Type: msg.Type, Msg: fmt.Sprintf("internal error: %v", r)})
		}

		outcome := "result"
		if reply.Type == ReplyError {
			outcome = "error"
			span.SetStatus(codes.Error, reply.Error)
		}
		span.End()
		e.metrics.Calculations.WithLabelValues(label, outcome).Inc()
		e.metrics.Duration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	calc, ok := e.calculators[msg.Type]
	if !ok {
		return errorReply(msg, &CalculationError{Type: msg.Type, Msg: fmt.Sprintf("unknown message type %q", msg.Type)})
	}

	out, err := calc(msg.Data)
	if err != nil {
		var ce *CalculationError
		if !errors.As(err, &ce) {
			ce = &CalculationError{Msg: "calculation failed", Err: err}
		}
		ce.Type = msg.Type
		e.logger.Debug("projection rejected", zap.String("type", label), zap.String("id", msg.ID), zap.Error(ce))
		return errorReply(msg, ce)
	}

	result, err := json.Marshal(out)
	if err != nil {
		return errorReply(msg, &CalculationError{Type: msg.Type, Msg: "encoding result", Err: err})
	}
	return Reply{Type: ReplyResult, Result: result, ID: msg.ID}
}

func errorReply(msg Message, err *CalculationError) Reply {
	return Reply{Type: ReplyError, Error: err.Error(), ID: msg.ID, err: err}
}

func decodeAndRun[In, Out any](fn func(In) (Out, error)) calculator {
	return func(data json.RawMessage) (any, error) {
		var in In
		if len(data) == 0 {
			return nil, invalidInput("missing data")
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, &CalculationError{Msg: "malformed input", Err: err}
		}
		return fn(in)
	}
}
