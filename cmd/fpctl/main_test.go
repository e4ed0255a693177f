package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/finplan/internal/http"
	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/poller"
	"github.com/fyrsmithlabs/finplan/internal/projection"
)

const healthJSON = `{"monthly_income":5000,"monthly_expenses":3000,"total_debt":10000,"emergency_fund":18000}`

func startServer(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("POLLER_INTERVAL", "20ms")

	engine := projection.New()
	t.Cleanup(engine.Close)
	svc, err := jobs.NewService(jobs.Options{Engine: engine})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	srv, err := httpserver.NewServer(svc, engine, zap.NewNop(), &httpserver.Config{Version: "test"})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return ts.URL
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, "", "health", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Version:       test")
	assert.Contains(t, out, "Server URL:    "+url)
}

func TestHealth_Unreachable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := execute(t, "", "health", "--server", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestJobSubmit_PrintsID(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, healthJSON, "job", "submit", "CALCULATE_FINANCIAL_HEALTH", "-", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Job submitted: ")
}

func TestJobSubmit_Wait(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, healthJSON, "job", "submit", "calculate_financial_health", "-", "--wait", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Job submitted: ")
	assert.Contains(t, out, "Financial Health")
	assert.Contains(t, out, "Score:")
}

func TestJobSubmit_WaitFailure(t *testing.T) {
	url := startServer(t)

	_, err := execute(t, `{"goals":[]}`, "job", "submit", "CALCULATE_GOAL_PROJECTIONS", "-", "--wait", "--server", url)
	require.Error(t, err)
	var failed *poller.JobFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestJobSubmit_UnknownType(t *testing.T) {
	_, err := execute(t, "{}", "job", "submit", "NOPE", "-")
	require.ErrorIs(t, err, jobs.ErrUnknownType)
}

func TestJobSubmit_WaitAndWatchExclusive(t *testing.T) {
	_, err := execute(t, healthJSON, "job", "submit", "CALCULATE_FINANCIAL_HEALTH", "-", "--wait", "--watch")
	require.Error(t, err)
}

func TestJobStatusAndCancel(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, healthJSON, "job", "submit", "CALCULATE_FINANCIAL_HEALTH", "-", "--wait", "--server", url)
	require.NoError(t, err)
	id := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(out, "Job submitted: "), "\n", 2)[0])
	require.NotEmpty(t, id)

	out, err = execute(t, "", "job", "status", id, "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "Progress: 100.0%")
	assert.Contains(t, out, `"score"`)

	// Cancelling a finished job leaves it completed.
	out, err = execute(t, "", "job", "cancel", id, "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Job "+id+" cancelled")

	_, err = execute(t, "", "job", "cancel", "missing", "--server", url)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	_, err = execute(t, "", "job", "status", "missing", "--server", url)
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestProject_Local(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	input := `{"debts":[{"name":"card","balance":2000,"interest_rate":20,"min_payment":50}],"extra_payment":100}`

	out, err := execute(t, input, "project", "CALCULATE_DEBT_PAYOFF", "-", "--chart")
	require.NoError(t, err)
	assert.Contains(t, out, "Debt Payoff")
	assert.Contains(t, out, "card")
	assert.Contains(t, out, "Balance:")
}

func TestProject_CalculationError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := execute(t, `{"goals":[]}`, "project", "CALCULATE_GOAL_PROJECTIONS", "-")
	var calcErr *projection.CalculationError
	require.ErrorAs(t, err, &calcErr)
}

func TestProject_UnknownType(t *testing.T) {
	_, err := execute(t, "{}", "project", "PROJECTION_BATCH", "-")
	require.ErrorIs(t, err, jobs.ErrUnknownType)
}

func TestPrintResult_Batch(t *testing.T) {
	engine := projection.New()
	defer engine.Close()
	health, err := engine.Compute(t.Context(), projection.CalculateFinancialHealth, []byte(healthJSON))
	require.NoError(t, err)

	raw := []byte(`[{"type":"CALCULATE_FINANCIAL_HEALTH","result":` + string(health) + `}]`)
	var out bytes.Buffer
	require.NoError(t, printResult(&out, jobs.TypeBatch, raw, false))
	assert.Contains(t, out.String(), "[1] CALCULATE_FINANCIAL_HEALTH")
	assert.Contains(t, out.String(), "Financial Health")
}

func TestResolveServer(t *testing.T) {
	t.Cleanup(func() { serverURL = "" })

	serverURL = ""
	assert.Equal(t, defaultServerURL, resolveServer(nil))

	serverURL = "http://example:1"
	assert.Equal(t, "http://example:1", resolveServer(nil))
}
