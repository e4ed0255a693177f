package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/projection"
)

// Owner is recorded on jobs submitted through MCP.
const Owner = "mcp"

// Computer runs one projection synchronously.
type Computer interface {
	Compute(ctx context.Context, typ projection.MessageType, data json.RawMessage) (json.RawMessage, error)
}

// JobService is the subset of the job service the job tools need.
type JobService interface {
	Submit(ctx context.Context, typ string, data json.RawMessage) (string, error)
	Status(ctx context.Context, id string) (jobs.JobStatus, error)
	Cancel(ctx context.Context, id string) error
}

// Server is an MCP server backed by the projection engine and job service.
type Server struct {
	mcp     *mcp.Server
	engine  Computer
	jobs    JobService
	metrics *toolMetrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "finplan")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// Meter records tool metrics. Nil uses the global meter provider.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "finplan",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server and registers every tool.
func NewServer(cfg *Config, engine Computer, svc JobService) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if engine == nil {
		return nil, fmt.Errorf("projection engine is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("job service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		engine:  engine,
		jobs:    svc,
		metrics: newToolMetrics(cfg.Meter, cfg.Logger),
		logger:  cfg.Logger,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over transport until the client leaves.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
