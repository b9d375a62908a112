package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for errors. It is called after defaults
// are applied, so zero values that have defaults never reach it.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}

	switch cfg.Throttle.Backend {
	case "sqlite":
		if cfg.Throttle.SQLite.Path == "" {
			return fmt.Errorf("throttle.sqlite.path must not be empty")
		}
	case "memory":
	case "redis":
		if cfg.Throttle.Redis.Addr == "" {
			return fmt.Errorf("throttle.redis.addr must not be empty")
		}
	default:
		return fmt.Errorf("throttle.backend must be one of sqlite, memory, redis; got %q", cfg.Throttle.Backend)
	}

	for action, policy := range cfg.Throttle.Policies {
		if action == "" {
			return fmt.Errorf("throttle.policies contains an empty action name")
		}
		if policy.Limit < 1 {
			return fmt.Errorf("throttle.policies.%s.limit must be at least 1, got %d", action, policy.Limit)
		}
		if policy.WindowSeconds < 1 {
			return fmt.Errorf("throttle.policies.%s.window_seconds must be at least 1, got %d", action, policy.WindowSeconds)
		}
	}

	switch cfg.Audit.Backend {
	case "sqlite":
		if cfg.Audit.SQLite.Path == "" {
			return fmt.Errorf("audit.sqlite.path must not be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("audit.backend must be one of sqlite, memory; got %q", cfg.Audit.Backend)
	}

	if cfg.Audit.AsyncBuffer < 1 {
		return fmt.Errorf("audit.async_buffer must be at least 1, got %d", cfg.Audit.AsyncBuffer)
	}
	if cfg.Audit.Retention.Days < 0 {
		return fmt.Errorf("audit.retention.days must not be negative, got %d", cfg.Audit.Retention.Days)
	}
	if cfg.Audit.Retention.MaxRecords < 0 {
		return fmt.Errorf("audit.retention.max_records must not be negative, got %d", cfg.Audit.Retention.MaxRecords)
	}
	if cfg.Audit.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Audit.Retention.Schedule); err != nil {
			return fmt.Errorf("audit.retention.schedule is not a valid cron expression: %w", err)
		}
	}

	if cfg.FloodGuard.Enabled {
		if cfg.FloodGuard.RequestsPerSecond <= 0 {
			return fmt.Errorf("flood_guard.requests_per_second must be positive, got %v", cfg.FloodGuard.RequestsPerSecond)
		}
		if cfg.FloodGuard.Burst < 1 {
			return fmt.Errorf("flood_guard.burst must be at least 1, got %d", cfg.FloodGuard.Burst)
		}
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level must be one of debug, info, warn, error; got %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be json or text; got %q", cfg.Telemetry.Logging.Format)
	}

	return nil
}
