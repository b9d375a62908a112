package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, "{}\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != ":8080" {
		t.Errorf("expected default listen address :8080, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Throttle.Backend != "sqlite" {
		t.Errorf("expected default throttle backend sqlite, got %q", cfg.Throttle.Backend)
	}
	if got := cfg.Throttle.Policies["create_job"]; got.Limit != 3 || got.WindowSeconds != 60 {
		t.Errorf("unexpected create_job policy: %+v", got)
	}
	if got := cfg.Throttle.Policies["delete_job"]; got.Limit != 3 || got.WindowSeconds != 60 {
		t.Errorf("unexpected delete_job policy: %+v", got)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Backend != "sqlite" {
		t.Errorf("expected audit enabled on sqlite, got %+v", cfg.Audit)
	}
	if cfg.Audit.Retention.Days != 90 {
		t.Errorf("expected default retention 90 days, got %d", cfg.Audit.Retention.Days)
	}
	if cfg.Telemetry.Logging.Level != "info" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_address: ":9090"
  read_timeout: 10s
  trust_proxy_headers: true
throttle:
  backend: memory
  policies:
    create_job:
      limit: 5
      window_seconds: 120
audit:
  enabled: true
  backend: memory
  retention:
    days: 7
    schedule: "0 4 * * *"
telemetry:
  logging:
    level: debug
    format: text
auth:
  users:
    alice: s3cret
  admin_principals: [ops]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.ListenAddress != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected 10s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if !cfg.Server.TrustProxyHeaders {
		t.Error("expected trust_proxy_headers true")
	}
	if cfg.Throttle.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Throttle.Backend)
	}
	if got := cfg.Throttle.Policies["create_job"]; got.Limit != 5 || got.WindowSeconds != 120 {
		t.Errorf("unexpected create_job policy: %+v", got)
	}
	// delete_job is not in the file and keeps its default.
	if got := cfg.Throttle.Policies["delete_job"]; got.Limit != 3 {
		t.Errorf("expected default delete_job policy, got %+v", got)
	}
	if cfg.Audit.Retention.Days != 7 || cfg.Audit.Retention.Schedule != "0 4 * * *" {
		t.Errorf("unexpected retention config: %+v", cfg.Audit.Retention)
	}
	if cfg.Auth.Users["alice"] != "s3cret" {
		t.Errorf("unexpected users: %+v", cfg.Auth.Users)
	}
	if !cfg.Auth.IsAdmin("ops") || cfg.Auth.IsAdmin("alice") {
		t.Errorf("unexpected admin resolution: %+v", cfg.Auth.AdminPrincipals)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not: a: mapping\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_address: ":9090"
throttle:
  backend: sqlite
`)

	t.Setenv("GATEHOUSE_SERVER_LISTEN_ADDRESS", ":7070")
	t.Setenv("GATEHOUSE_THROTTLE_BACKEND", "memory")
	t.Setenv("GATEHOUSE_AUDIT_RETENTION_DAYS", "14")
	t.Setenv("GATEHOUSE_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Server.ListenAddress != ":7070" {
		t.Errorf("expected env override :7070, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Throttle.Backend != "memory" {
		t.Errorf("expected env override memory, got %q", cfg.Throttle.Backend)
	}
	if cfg.Audit.Retention.Days != 14 {
		t.Errorf("expected env override 14, got %d", cfg.Audit.Retention.Days)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected env override warn, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValueRejected(t *testing.T) {
	path := writeConfigFile(t, "{}\n")
	t.Setenv("GATEHOUSE_THROTTLE_BACKEND", "etcd")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Error("expected validation error for unknown backend")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown throttle backend", func(c *Config) { c.Throttle.Backend = "etcd" }},
		{"empty sqlite path", func(c *Config) { c.Throttle.SQLite.Path = "" }},
		{"empty redis addr", func(c *Config) {
			c.Throttle.Backend = "redis"
			c.Throttle.Redis.Addr = ""
		}},
		{"zero policy limit", func(c *Config) {
			c.Throttle.Policies["create_job"] = PolicyConfig{Limit: 0, WindowSeconds: 60}
		}},
		{"zero policy window", func(c *Config) {
			c.Throttle.Policies["create_job"] = PolicyConfig{Limit: 3, WindowSeconds: 0}
		}},
		{"unknown audit backend", func(c *Config) { c.Audit.Backend = "postgres" }},
		{"negative retention days", func(c *Config) { c.Audit.Retention.Days = -1 }},
		{"bad retention schedule", func(c *Config) { c.Audit.Retention.Schedule = "whenever" }},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }},
		{"flood guard zero rps", func(c *Config) {
			c.FloodGuard.Enabled = true
			c.FloodGuard.RequestsPerSecond = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	path := writeConfigFile(t, "telemetry:\n  logging:\n    level: info\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	reloaded := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("telemetry:\n  logging:\n    level: debug\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Telemetry.Logging.Level != "debug" {
			t.Errorf("expected reloaded level debug, got %q", cfg.Telemetry.Logging.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
