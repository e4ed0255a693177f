package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/projection"
)

type testEnv struct {
	session *mcp.ClientSession
	jobs    *jobs.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, &Config{Name: "finplan-test", Version: "test", Logger: zap.NewNop()})
}

func newTestEnvWithConfig(t *testing.T, cfg *Config) *testEnv {
	t.Helper()

	engine := projection.New()
	t.Cleanup(engine.Close)
	svc, err := jobs.NewService(jobs.Options{Engine: engine})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	server, err := NewServer(cfg, engine, svc)
	require.NoError(t, err)

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return &testEnv{session: cs, jobs: svc}
}

func (e *testEnv) call(t *testing.T, name string, args any) *mcp.CallToolResult {
	t.Helper()
	res, err := e.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func structured(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	engine := projection.New()
	t.Cleanup(engine.Close)

	_, err := NewServer(nil, nil, nil)
	assert.ErrorContains(t, err, "projection engine is required")

	_, err = NewServer(nil, engine, nil)
	assert.ErrorContains(t, err, "job service is required")
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"financial_health", "debt_payoff", "goal_projections", "spending_patterns",
		"job_submit", "job_status", "job_cancel",
	}, names)
}

func TestFinancialHealthTool(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "financial_health", map[string]any{
		"monthly_income":   4000,
		"monthly_expenses": 3000,
		"total_debt":       24000,
		"emergency_fund":   18000,
	})
	require.False(t, res.IsError, text(t, res))
	assert.Equal(t, "Financial health score 50.0 (fair)", text(t, res))

	var out projection.HealthResult
	structured(t, res, &out)
	assert.Equal(t, "fair", out.Rating)
}

func TestDebtPayoffTool(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "debt_payoff", map[string]any{
		"debts": []map[string]any{
			{"name": "card", "balance": 1000, "interest_rate": 18, "min_payment": 100},
		},
		"extra_payment": 50,
	})
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "Debt free in")

	var out projection.DebtResult
	structured(t, res, &out)
	assert.True(t, out.PaidOff)
	assert.Greater(t, out.Months, 0)
}

func TestDebtPayoffTool_CalculationError(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "debt_payoff", map[string]any{
		"debts": []map[string]any{
			{"name": "card", "balance": -1, "interest_rate": 18, "min_payment": 100},
		},
	})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "balance")
}

func TestGoalProjectionsTool(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "goal_projections", map[string]any{
		"goals": []map[string]any{
			{"name": "house", "current_amount": 1000, "target_amount": 2000, "monthly_contribution": 100, "annual_rate": 0},
		},
	})
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "house: reached in 10 months")
}

func TestSpendingPatternsTool(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "spending_patterns", map[string]any{
		"transactions": []map[string]any{
			{"amount": "12.50", "category": "food", "date": "2024-01-03"},
			{"amount": "40.00", "category": "transport", "date": "2024-01-09"},
			{"amount": "7.50", "category": "food", "date": "2024-02-01"},
		},
	})
	require.False(t, res.IsError, text(t, res))
	assert.Equal(t, "Total 60.00 across 3 transactions, top category transport", text(t, res))
}

func TestJobTools(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "job_submit", map[string]any{
		"type": "CALCULATE_FINANCIAL_HEALTH",
		"data": map[string]any{
			"monthly_income": 4000, "monthly_expenses": 3000, "total_debt": 24000, "emergency_fund": 18000,
		},
	})
	require.False(t, res.IsError, text(t, res))

	var submitted jobSubmitOutput
	structured(t, res, &submitted)
	require.NotEmpty(t, submitted.JobID)

	job, err := env.jobs.Job(submitted.JobID)
	require.NoError(t, err)
	assert.Equal(t, Owner, job.Owner)

	var st jobs.JobStatus
	require.Eventually(t, func() bool {
		res := env.call(t, "job_status", map[string]any{"job_id": submitted.JobID})
		if res.IsError {
			return false
		}
		structured(t, res, &st)
		return st.Status == jobs.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 100, st.Progress)

	res = env.call(t, "job_cancel", map[string]any{"job_id": submitted.JobID})
	require.False(t, res.IsError, text(t, res))
	var cancelled jobCancelOutput
	structured(t, res, &cancelled)
	assert.Equal(t, string(jobs.StatusCompleted), cancelled.Status, "cancelling a finished job leaves it unchanged")
}

func TestJobTools_Errors(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "job_submit", map[string]any{"type": "CALCULATE_RETIREMENT", "data": map[string]any{}})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "unknown job type")

	res = env.call(t, "job_status", map[string]any{"job_id": "missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "job not found")

	res = env.call(t, "job_cancel", map[string]any{"job_id": ""})
	assert.True(t, res.IsError)
}
