package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/poller"
	"github.com/fyrsmithlabs/finplan/internal/projection"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const healthData = `{"monthly_income":4000,"monthly_expenses":3000,"total_debt":24000,"emergency_fund":18000}`

// stubJobs returns a fixed error from every call.
type stubJobs struct {
	err error
}

func (s *stubJobs) Submit(_ context.Context, _ string, _ json.RawMessage) (string, error) {
	return "", s.err
}

func (s *stubJobs) Status(context.Context, string) (jobs.JobStatus, error) {
	return jobs.JobStatus{}, s.err
}

func (s *stubJobs) Cancel(context.Context, string) error { return s.err }

func TestNewServer(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 8080}
		server, err := NewServer(&stubJobs{}, engine, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server.Echo())
		assert.Equal(t, cfg, server.config)
		assert.Nil(t, server.limiter)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(&stubJobs{}, engine, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&stubJobs{}, engine, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when job service is nil", func(t *testing.T) {
		_, err := NewServer(nil, engine, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "job service cannot be nil")
	})

	t.Run("returns error when engine is nil", func(t *testing.T) {
		_, err := NewServer(&stubJobs{}, nil, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "projection engine cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &Config{Version: "1.2.3"})

	rec := do(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestJobLifecycle(t *testing.T) {
	server := setupTestServer(t, nil)

	body := `{"type":"CALCULATE_FINANCIAL_HEALTH","data":` + healthData + `}`
	rec := do(t, server, http.MethodPost, "/api/v1/jobs", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted jobs.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.JobID)

	var st jobs.JobStatus
	require.Eventually(t, func() bool {
		rec := do(t, server, http.MethodGet, "/api/v1/jobs/"+submitted.JobID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		return st.Status == jobs.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 100, st.Progress)
	var result projection.HealthResult
	require.NoError(t, json.Unmarshal(st.Result, &result))
	assert.InDelta(t, 50, result.Score, 1e-9)
	assert.Equal(t, "fair", result.Rating)

	// Cancelling a finished job is a no-op.
	rec = do(t, server, http.MethodPost, "/api/v1/jobs/"+submitted.JobID+"/cancel", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleSubmit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		jobs    JobService
		body    string
		code    int
		message string
	}{
		{
			name:    "malformed body",
			body:    `{"type":`,
			code:    http.StatusBadRequest,
			message: "invalid request body",
		},
		{
			name:    "missing type",
			body:    `{"data":{}}`,
			code:    http.StatusBadRequest,
			message: "type field is required",
		},
		{
			name:    "unknown type",
			body:    `{"type":"CALCULATE_RETIREMENT","data":{}}`,
			code:    http.StatusBadRequest,
			message: "CALCULATE_RETIREMENT",
		},
		{
			name:    "missing data",
			body:    `{"type":"CALCULATE_DEBT_PAYOFF"}`,
			code:    http.StatusBadRequest,
			message: "data",
		},
		{
			name:    "queue full",
			jobs:    &stubJobs{err: jobs.ErrQueueFull},
			body:    `{"type":"CALCULATE_DEBT_PAYOFF","data":{}}`,
			code:    http.StatusServiceUnavailable,
			message: jobs.ErrQueueFull.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var server *Server
			if tt.jobs != nil {
				var err error
				server, err = NewServer(tt.jobs, newTestEngine(t), zap.NewNop(), nil)
				require.NoError(t, err)
			} else {
				server = setupTestServer(t, nil)
			}

			rec := do(t, server, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var resp jobs.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.message)
		})
	}
}

func TestHandleSubmit_RateLimited(t *testing.T) {
	server := setupTestServer(t, &Config{SubmitRate: 0.001, SubmitBurst: 1})
	body := `{"type":"CALCULATE_FINANCIAL_HEALTH","data":` + healthData + `}`

	rec := do(t, server, http.MethodPost, "/api/v1/jobs", body)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/v1/jobs", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleStatus_NotFound(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := do(t, server, http.MethodGet, "/api/v1/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/v1/jobs/does-not-exist/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp jobs.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job not found", resp.Error)
}

func TestSubmitRecordsHTTPOwner(t *testing.T) {
	engine := newTestEngine(t)
	svc, err := jobs.NewService(jobs.Options{Engine: engine})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	server, err := NewServer(svc, engine, zap.NewNop(), nil)
	require.NoError(t, err)

	body := `{"type":"CALCULATE_FINANCIAL_HEALTH","data":` + healthData + `}`
	rec := do(t, server, http.MethodPost, "/api/v1/jobs", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted jobs.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	job, err := svc.Job(submitted.JobID)
	require.NoError(t, err)
	assert.Equal(t, Owner, job.Owner)
}

func TestHandleProjection(t *testing.T) {
	server := setupTestServer(t, nil)

	t.Run("result", func(t *testing.T) {
		body := `{"type":"CALCULATE_FINANCIAL_HEALTH","id":"req-1","data":` + healthData + `}`
		rec := do(t, server, http.MethodPost, "/api/v1/projections", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var reply projection.Reply
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
		assert.Equal(t, projection.ReplyResult, reply.Type)
		assert.Equal(t, "req-1", reply.ID)
		assert.Contains(t, string(reply.Result), `"rating":"fair"`)
	})

	t.Run("calculation error", func(t *testing.T) {
		body := `{"type":"CALCULATE_DEBT_PAYOFF","id":"req-2","data":{"debts":[{"name":"card","balance":-5,"interest_rate":20,"min_payment":50}]}}`
		rec := do(t, server, http.MethodPost, "/api/v1/projections", body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var reply projection.Reply
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
		assert.Equal(t, projection.ReplyError, reply.Type)
		assert.Equal(t, "req-2", reply.ID)
		assert.NotEmpty(t, reply.Error)
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/projections", `{"type":"NOPE","data":{}}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("engine closed", func(t *testing.T) {
		engine := projection.New()
		engine.Close()
		server, err := NewServer(&stubJobs{}, engine, zap.NewNop(), nil)
		require.NoError(t, err)

		rec := do(t, server, http.MethodPost, "/api/v1/projections", `{"type":"CALCULATE_FINANCIAL_HEALTH","data":{}}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := projection.New(projection.WithMetrics(projection.NewMetrics(reg)))
	t.Cleanup(engine.Close)

	server, err := NewServer(&stubJobs{}, engine, zap.NewNop(), &Config{Gatherer: reg})
	require.NoError(t, err)

	rec := do(t, server, http.MethodPost, "/api/v1/projections", `{"type":"CALCULATE_FINANCIAL_HEALTH","data":`+healthData+`}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finplan_projection_calculations_total")
}

func TestPollerOverHTTP(t *testing.T) {
	server := setupTestServer(t, nil)
	ts := httptest.NewServer(server.Echo())
	defer ts.Close()

	p := poller.New(poller.NewHTTPTransport(ts.URL, ts.Client()), poller.WithInterval(10*time.Millisecond))
	batch := `[{"type":"CALCULATE_FINANCIAL_HEALTH","data":` + healthData + `},` +
		`{"type":"CALCULATE_DEBT_PAYOFF","data":{"debts":[{"name":"card","balance":1000,"interest_rate":18,"min_payment":100}]}}]`

	_, err := p.Submit(context.Background(), "PROJECTION_BATCH", json.RawMessage(batch), poller.Callbacks{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, st.Status)

	var results []jobs.BatchResult
	require.NoError(t, json.Unmarshal(st.Result, &results))
	require.Len(t, results, 2)
	assert.Equal(t, projection.CalculateDebtPayoff, results[1].Type)
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server := setupTestServer(t, nil)
		rec := do(t, server, http.MethodGet, "/health", "")
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server := setupTestServer(t, nil)
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = do(t, server, http.MethodGet, "/panic", "")
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("unknown route renders error body", func(t *testing.T) {
		server := setupTestServer(t, nil)
		rec := do(t, server, http.MethodGet, "/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), `{"error":`))
	})
}

func TestServerLifecycle(t *testing.T) {
	server := setupTestServer(t, &Config{Host: "localhost", Port: 0})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || err == http.ErrServerClosed)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func newTestEngine(t *testing.T) *projection.Engine {
	t.Helper()
	engine := projection.New()
	t.Cleanup(engine.Close)
	return engine
}

// setupTestServer creates a server backed by a real job service and engine.
func setupTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	engine := newTestEngine(t)
	svc, err := jobs.NewService(jobs.Options{Engine: engine})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	server, err := NewServer(svc, engine, zap.NewNop(), cfg)
	require.NoError(t, err)
	return server
}

func do(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}
