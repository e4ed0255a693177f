package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/config"
	"github.com/fyrsmithlabs/finplan/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventKind is the last token of an event subject.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is a job lifecycle notification.
type Event struct {
	Kind       EventKind       `json:"event"`
	JobID      string          `json:"id"`
	Owner      string          `json:"owner"`
	Type       Type            `json:"type"`
	Status     Status          `json:"status"`
	Progress   int             `json:"progress"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func newEvent(job Job, kind EventKind) Event {
	ev := Event{
		Kind:      kind,
		JobID:     job.ID,
		Owner:     job.Owner,
		Type:      job.Type,
		Status:    job.Status,
		Progress:  job.Progress,
		Result:    job.Result,
		Error:     job.Error,
		Timestamp: time.Now(),
	}
	if job.Status.Terminal() {
		ev.DurationMS = job.FinishedAt.Sub(job.CreatedAt).Milliseconds()
	}
	return ev
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events as JSON to {prefix}.{owner}.{job_id}.{event}.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on an existing connection.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "jobs"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject an event is published to.
func (p *NATSPublisher) Subject(ev Event) string {
	return fmt.Sprintf("%s.%s.%s.%s", p.prefix, ev.Owner, ev.JobID, ev.Kind)
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	if err := p.nc.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// ConnectNATS dials the configured server with reconnect handling.
func ConnectNATS(cfg config.NATSConfig, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()

	opts := []nats.Option{
		nats.Name("finplan"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(ctx, "nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(ctx, "nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Token.IsSet() {
		opts = append(opts, nats.Token(cfg.Token.Value()))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	logger.Info(ctx, "connected to nats",
		zap.String("url", nc.ConnectedUrl()),
		logging.Secret("token", cfg.Token),
	)
	return nc, nil
}
