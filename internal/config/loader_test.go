package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and returns the allowed config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "finplan")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	return configDir
}

func TestLoadWithFile_Defaults(t *testing.T) {
	configDir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(configDir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Jobs.Workers != 4 {
		t.Errorf("Jobs.Workers = %d, want 4", cfg.Jobs.Workers)
	}
	if cfg.Jobs.QueueSize != 100 {
		t.Errorf("Jobs.QueueSize = %d, want 100", cfg.Jobs.QueueSize)
	}
	if cfg.Projection.Workers != 1 {
		t.Errorf("Projection.Workers = %d, want 1", cfg.Projection.Workers)
	}
	if cfg.Poller.Interval != 1500*time.Millisecond {
		t.Errorf("Poller.Interval = %v, want 1.5s", cfg.Poller.Interval)
	}
	if cfg.Poller.ServerURL != "http://localhost:9191" {
		t.Errorf("Poller.ServerURL = %q, want http://localhost:9191", cfg.Poller.ServerURL)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled = true, want false")
	}
	if cfg.Observability.ServiceName != "finplan" {
		t.Errorf("Observability.ServiceName = %q, want finplan", cfg.Observability.ServiceName)
	}
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	configDir := setupTestHome(t)
	configPath := filepath.Join(configDir, "config.yaml")

	yamlContent := `server:
  http_port: 8088
  http_host: 127.0.0.1
jobs:
  workers: 8
  retention_ttl: 30m
poller:
  interval: 2s
nats:
  enabled: true
  url: nats://10.0.0.5:4222
  token: s3cr3t
observability:
  log_format: console
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 8088 {
		t.Errorf("Server.Port = %d, want 8088", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Jobs.Workers != 8 {
		t.Errorf("Jobs.Workers = %d, want 8", cfg.Jobs.Workers)
	}
	if cfg.Jobs.RetentionTTL != 30*time.Minute {
		t.Errorf("Jobs.RetentionTTL = %v, want 30m", cfg.Jobs.RetentionTTL)
	}
	if cfg.Poller.Interval != 2*time.Second {
		t.Errorf("Poller.Interval = %v, want 2s", cfg.Poller.Interval)
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://10.0.0.5:4222" {
		t.Errorf("NATS = %+v, want enabled at nats://10.0.0.5:4222", cfg.NATS)
	}
	if cfg.NATS.Token.Value() != "s3cr3t" {
		t.Error("NATS.Token was not loaded")
	}
	if cfg.Observability.LogFormat != "console" {
		t.Errorf("Observability.LogFormat = %q, want console", cfg.Observability.LogFormat)
	}
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	configDir := setupTestHome(t)
	configPath := filepath.Join(configDir, "config.yaml")

	yamlContent := `server:
  http_port: 8088
jobs:
  workers: 2
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("SERVER_HTTP_PORT", "7777")
	t.Setenv("JOBS_WORKERS", "6")
	t.Setenv("POLLER_INTERVAL", "250ms")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (env override)", cfg.Server.Port)
	}
	if cfg.Jobs.Workers != 6 {
		t.Errorf("Jobs.Workers = %d, want 6 (env override)", cfg.Jobs.Workers)
	}
	if cfg.Poller.Interval != 250*time.Millisecond {
		t.Errorf("Poller.Interval = %v, want 250ms", cfg.Poller.Interval)
	}
}

func TestLoadWithFile_RetentionTTL(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want time.Duration
	}{
		{name: "unset", yaml: "jobs:\n  workers: 2\n", want: time.Hour},
		{name: "zero", yaml: "jobs:\n  retention_ttl: 0s\n", want: time.Hour},
		{name: "negative", yaml: "jobs:\n  retention_ttl: -1s\n", want: -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configDir := setupTestHome(t)
			configPath := filepath.Join(configDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0600); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}

			cfg, err := LoadWithFile(configPath)
			if err != nil {
				t.Fatalf("LoadWithFile() error = %v, want nil", err)
			}
			if cfg.Jobs.RetentionTTL != tt.want {
				t.Errorf("Jobs.RetentionTTL = %v, want %v", cfg.Jobs.RetentionTTL, tt.want)
			}
		})
	}
}

func TestLoadWithFile_EnvSecretFileAndSeconds(t *testing.T) {
	configDir := setupTestHome(t)
	tokenPath := filepath.Join(t.TempDir(), "nats_token")
	if err := os.WriteFile(tokenPath, []byte("from-file\n"), 0600); err != nil {
		t.Fatalf("Failed to write token file: %v", err)
	}

	t.Setenv("NATS_TOKEN", "file:"+tokenPath)
	t.Setenv("OBSERVABILITY_METRICS_INTERVAL", "30")

	cfg, err := LoadWithFile(filepath.Join(configDir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}
	if cfg.NATS.Token.Value() != "from-file" {
		t.Errorf("NATS.Token = %q, want token file contents", cfg.NATS.Token.Value())
	}
	if cfg.Observability.MetricsInterval.Duration() != 30*time.Second {
		t.Errorf("Observability.MetricsInterval = %v, want 30s", cfg.Observability.MetricsInterval.Duration())
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	configDir := setupTestHome(t)
	configPath := filepath.Join(configDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("server:\n  http_port: 8088\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadWithFile(configPath); err == nil {
		t.Fatal("LoadWithFile() error = nil, want permission error")
	}
}

func TestLoadWithFile_PathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	outside := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := LoadWithFile(outside); err == nil {
		t.Fatal("LoadWithFile() error = nil, want path validation error")
	}
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	configDir := setupTestHome(t)
	configPath := filepath.Join(configDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("server:\n  http_port: 70000\n"), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadWithFile(configPath); err == nil {
		t.Fatal("LoadWithFile() error = nil, want validation error")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SERVER_HTTP_PORT":               "server.http_port",
		"OBSERVABILITY_ENABLE_TELEMETRY": "observability.enable_telemetry",
		"NATS_URL":                       "nats.url",
		"PATH":                           "path",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
