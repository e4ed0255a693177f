package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MeterName is the instrumentation scope of the API's request metrics.
const MeterName = "github.com/fyrsmithlabs/finplan/internal/http"

// workloadKey is the echo context key a handler sets to the job or
// projection type the request named.
const workloadKey = "finplan.workload"

const (
	routeUnmatched = "unmatched"
	workloadNone   = "none"
	workloadBad    = "unknown"
)

// requestMetrics counts API requests by route, status class and workload so
// dashboards can split traffic per calculation without per-job-id labels.
type requestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter, logger *zap.Logger) *requestMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(MeterName)
	}
	m := &requestMetrics{}

	var err error
	m.requests, err = meter.Int64Counter("finplan.http.requests",
		metric.WithDescription("API requests by route, method, status class and workload."),
		metric.WithUnit("{request}"))
	if err != nil {
		logger.Warn("failed to create request counter", zap.Error(err))
	}

	// Projections are CPU bound and usually finish well under 100ms.
	m.latency, err = meter.Float64Histogram("finplan.http.request.duration",
		metric.WithDescription("API request latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1))
	if err != nil {
		logger.Warn("failed to create latency histogram", zap.Error(err))
	}

	m.inFlight, err = meter.Int64UpDownCounter("finplan.http.in_flight",
		metric.WithDescription("API requests currently being served."),
		metric.WithUnit("{request}"))
	if err != nil {
		logger.Warn("failed to create in-flight counter", zap.Error(err))
	}
	return m
}

func (m *requestMetrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		start := time.Now()
		if m.inFlight != nil {
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)
		}

		err := next(c)

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request().Method),
			attribute.String("route", routeOf(c, err)),
			attribute.String("status_class", statusClass(responseStatus(c, err))),
			attribute.String("workload", workloadOf(c)),
		)
		if m.requests != nil {
			m.requests.Add(ctx, 1, attrs)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		return err
	}
}

// responseStatus is the status the error handler will write for err. The
// handler runs after the middleware chain returns, so the response status
// alone still reads 200 for failed requests.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// routeOf returns the route template (/api/v1/jobs/:id), never the raw path.
func routeOf(c echo.Context, err error) string {
	if errors.Is(err, echo.ErrNotFound) || errors.Is(err, echo.ErrMethodNotAllowed) || c.Path() == "" {
		return routeUnmatched
	}
	return c.Path()
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func workloadOf(c echo.Context) string {
	if w, ok := c.Get(workloadKey).(string); ok {
		return w
	}
	return workloadNone
}
