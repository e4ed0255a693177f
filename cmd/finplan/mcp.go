package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finplan/internal/config"
	"github.com/fyrsmithlabs/finplan/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve projection and job tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.LoadWithFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return runMCP(ctx, cfg)
	},
}

// runMCP serves MCP tools on stdio until the client disconnects or ctx is
// cancelled. Logs go to stderr.
func runMCP(ctx context.Context, cfg *config.Config) error {
	deps, err := initDependencies(ctx, cfg, true)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close(context.WithoutCancel(ctx))

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "finplan",
		Version: version,
		Logger:  deps.logger.Underlying(),
		Meter:   deps.telemetry.Meter(mcp.MeterName),
	}, deps.services.Engine(), deps.services.Jobs())
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
