// Package main implements fpctl, the operator CLI for the finplan daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finplan/internal/config"
)

const defaultServerURL = "http://localhost:9191"

var (
	// serverURL overrides poller.server_url from the config file
	serverURL  string
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fpctl",
	Short: "CLI for finplan server operations",
	Long: `fpctl is a command-line interface for the finplan daemon.
It submits and tracks projection jobs and runs projections locally.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "finplan server URL (default from config, then "+defaultServerURL+")")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/finplan/config.yaml)")
	rootCmd.AddCommand(healthCmd, jobCmd, projectCmd)
}

// loadConfig returns the file/env config, or defaults if none can be loaded.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		if configPath != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v, using defaults\n", err)
		}
		return config.Default()
	}
	return cfg
}

// resolveServer picks the --server flag, then the configured poller URL.
func resolveServer(cfg *config.Config) string {
	if serverURL != "" {
		return serverURL
	}
	if cfg != nil && cfg.Poller.ServerURL != "" {
		return cfg.Poller.ServerURL
	}
	return defaultServerURL
}
