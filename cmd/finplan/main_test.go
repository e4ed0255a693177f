package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/finplan/internal/config"
	"github.com/fyrsmithlabs/finplan/internal/jobs"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Observability.LogLevel = "error"
	return cfg
}

func startRun(t *testing.T, cfg *config.Config) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg)
	}()

	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond, "server did not start")

	return base, cancel, errCh
}

func waitStopped(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	base, cancel, errCh := startRun(t, testConfig(t))
	defer cancel()

	body := `{"type":"CALCULATE_FINANCIAL_HEALTH","data":{"monthly_income":5000,"monthly_expenses":3000,"total_debt":10000,"emergency_fund":18000}}`
	resp, err := http.Post(base+"/api/v1/jobs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var submitted jobs.SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotEmpty(t, submitted.JobID)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/v1/jobs/" + submitted.JobID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var st jobs.JobStatus
		return json.NewDecoder(resp.Body).Decode(&st) == nil && st.Status == jobs.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	metrics, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "finplan_jobs_submitted_total")
	assert.Contains(t, string(metrics), "go_goroutines")

	waitStopped(t, cancel, errCh)
}

func TestRun_PublishesJobEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	defer ns.Shutdown()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync("finplan.http.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	cfg := testConfig(t)
	cfg.NATS.Enabled = true
	cfg.NATS.URL = ns.ClientURL()
	cfg.NATS.SubjectPrefix = "finplan"

	base, cancel, errCh := startRun(t, cfg)
	defer cancel()

	body := `{"type":"CALCULATE_GOAL_PROJECTIONS","data":{"goals":[{"name":"trip","target_amount":1200,"monthly_contribution":100}]}}`
	resp, err := http.Post(base+"/api/v1/jobs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(msg.Subject, ".started"), msg.Subject)

	waitStopped(t, cancel, errCh)
}

func TestRun_NATSUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.Enabled = true
	cfg.NATS.URL = fmt.Sprintf("nats://127.0.0.1:%d", freePort(t))
	cfg.NATS.MaxReconnects = 0

	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to nats")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "finplan by Fyrsmith Labs")
	assert.Contains(t, out.String(), "Version:    dev")
}
