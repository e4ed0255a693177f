package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/projection"
)

// MeterName is the instrumentation scope of the tool metrics.
const MeterName = "github.com/fyrsmithlabs/finplan/internal/mcp"

// errInvalidArgument marks tool arguments rejected before reaching a service.
var errInvalidArgument = errors.New("invalid argument")

// Tool call outcomes.
const (
	outcomeOK          = "ok"
	outcomeInvalid     = "invalid_argument"
	outcomeCalculation = "calculation_error"
	outcomeNotFound    = "not_found"
	outcomeUnavailable = "unavailable"
	outcomeCancelled   = "cancelled"
	outcomeInternal    = "internal"
)

// toolMetrics counts tool calls by tool and outcome.
type toolMetrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newToolMetrics(meter metric.Meter, logger *zap.Logger) *toolMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(MeterName)
	}
	m := &toolMetrics{}

	var err error
	m.calls, err = meter.Int64Counter("finplan.mcp.tool.calls",
		metric.WithDescription("MCP tool calls by tool and outcome."),
		metric.WithUnit("{call}"))
	if err != nil {
		logger.Warn("failed to create tool call counter", zap.Error(err))
	}

	m.latency, err = meter.Float64Histogram("finplan.mcp.tool.duration",
		metric.WithDescription("MCP tool call latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1))
	if err != nil {
		logger.Warn("failed to create tool latency histogram", zap.Error(err))
	}

	m.inFlight, err = meter.Int64UpDownCounter("finplan.mcp.tool.in_flight",
		metric.WithDescription("MCP tool calls currently running."),
		metric.WithUnit("{call}"))
	if err != nil {
		logger.Warn("failed to create tool in-flight counter", zap.Error(err))
	}
	return m
}

// start marks a call to tool as running and returns the function that
// records how it ended.
func (m *toolMetrics) start(ctx context.Context, tool string) func(error) {
	began := time.Now()
	toolAttr := attribute.String("tool", tool)
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, metric.WithAttributes(toolAttr))
	}
	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, metric.WithAttributes(toolAttr))
		}
		attrs := metric.WithAttributes(toolAttr, attribute.String("outcome", outcomeOf(err)))
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(began).Seconds(), attrs)
		}
	}
}

// outcomeOf classifies a tool error by the service error it wraps.
func outcomeOf(err error) string {
	var calcErr *projection.CalculationError
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, errInvalidArgument), errors.Is(err, jobs.ErrUnknownType), errors.Is(err, jobs.ErrInvalidData):
		return outcomeInvalid
	case errors.As(err, &calcErr):
		return outcomeCalculation
	case errors.Is(err, jobs.ErrJobNotFound):
		return outcomeNotFound
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed), errors.Is(err, projection.ErrEngineClosed):
		return outcomeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	default:
		return outcomeInternal
	}
}
