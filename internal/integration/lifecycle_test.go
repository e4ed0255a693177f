//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finplan/internal/config"
	httpserver "github.com/fyrsmithlabs/finplan/internal/http"
	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/mcp"
	"github.com/fyrsmithlabs/finplan/internal/poller"
	"github.com/fyrsmithlabs/finplan/internal/services"
)

type stack struct {
	services services.Registry
	baseURL  string
	events   *nats.Subscription
}

func newStack(t *testing.T) *stack {
	t.Helper()

	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "NATS server not ready")
	t.Cleanup(ns.Shutdown)

	cfg := config.Default()
	cfg.NATS.Enabled = true
	cfg.NATS.URL = ns.ClientURL()

	nc, err := jobs.ConnectNATS(cfg.NATS, nil)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync(cfg.NATS.SubjectPrefix + ".>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	reg, err := services.NewRegistry(services.Options{
		Config:    cfg,
		Publisher: jobs.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix),
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	srv, err := httpserver.NewServer(reg.Jobs(), reg.Engine(), zap.NewNop(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)

	return &stack{services: reg, baseURL: ts.URL, events: sub}
}

func (s *stack) nextEvent(t *testing.T) jobs.Event {
	t.Helper()
	msg, err := s.events.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var ev jobs.Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	return ev
}

func TestJobLifecycle_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newStack(t)
	ctx := context.Background()

	t.Run("http_poller", func(t *testing.T) {
		p := poller.New(poller.NewHTTPTransport(s.baseURL, nil), poller.WithInterval(20*time.Millisecond))

		batch := json.RawMessage(`[
			{"type":"CALCULATE_FINANCIAL_HEALTH","data":{"monthly_income":5000,"monthly_expenses":3000}},
			{"type":"CALCULATE_DEBT_PAYOFF","data":{"debts":[{"name":"card","balance":1000,"interest_rate":18,"min_payment":100}]}}
		]`)
		id, err := p.Submit(ctx, string(jobs.TypeBatch), batch, poller.Callbacks{})
		require.NoError(t, err)

		st, err := p.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusCompleted, st.Status)
		assert.Equal(t, 100, st.Progress)

		var results []jobs.BatchResult
		require.NoError(t, json.Unmarshal(st.Result, &results))
		require.Len(t, results, 2)

		first := s.nextEvent(t)
		assert.Equal(t, jobs.EventStarted, first.Kind)
		assert.Equal(t, id, first.JobID)
		assert.Equal(t, httpserver.Owner, first.Owner)

		var last jobs.Event
		for last.Kind != jobs.EventCompleted {
			last = s.nextEvent(t)
		}
		assert.Equal(t, id, last.JobID)
	})

	t.Run("mcp_tools", func(t *testing.T) {
		server, err := mcp.NewServer(nil, s.services.Engine(), s.services.Jobs())
		require.NoError(t, err)

		serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
		ss, err := server.Connect(ctx, serverTransport)
		require.NoError(t, err)
		defer ss.Close()

		client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "integration", Version: "test"}, nil)
		cs, err := client.Connect(ctx, clientTransport, nil)
		require.NoError(t, err)
		defer cs.Close()

		res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{
			Name: "job_submit",
			Arguments: map[string]any{
				"type": "CALCULATE_GOAL_PROJECTIONS",
				"data": map[string]any{"goals": []any{map[string]any{"name": "trip", "target_amount": 1200, "monthly_contribution": 100}}},
			},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)

		ev := s.nextEvent(t)
		assert.Equal(t, jobs.EventStarted, ev.Kind)
		assert.Equal(t, mcp.Owner, ev.Owner)
	})

	t.Run("cancel", func(t *testing.T) {
		transport := poller.NewHTTPTransport(s.baseURL, nil)
		_, err := transport.Status(ctx, "missing")
		require.ErrorIs(t, err, jobs.ErrJobNotFound)
		require.ErrorIs(t, transport.Cancel(ctx, "missing"), jobs.ErrJobNotFound)
	})
}
