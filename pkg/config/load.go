package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path,
// applies defaults and validates the result. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow the naming convention
// GATEHOUSE_SECTION_FIELD (e.g. GATEHOUSE_SERVER_LISTEN_ADDRESS) and always
// take precedence over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies GATEHOUSE_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("GATEHOUSE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("GATEHOUSE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("GATEHOUSE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("GATEHOUSE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("GATEHOUSE_SERVER_TRUST_PROXY_HEADERS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Server.TrustProxyHeaders = b
		}
	}

	// Throttle overrides
	if val := os.Getenv("GATEHOUSE_THROTTLE_BACKEND"); val != "" {
		cfg.Throttle.Backend = val
	}
	if val := os.Getenv("GATEHOUSE_THROTTLE_SQLITE_PATH"); val != "" {
		cfg.Throttle.SQLite.Path = val
	}
	if val := os.Getenv("GATEHOUSE_THROTTLE_REDIS_ADDR"); val != "" {
		cfg.Throttle.Redis.Addr = val
	}
	if val := os.Getenv("GATEHOUSE_THROTTLE_REDIS_PASSWORD"); val != "" {
		cfg.Throttle.Redis.Password = val
	}
	if val := os.Getenv("GATEHOUSE_THROTTLE_REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Throttle.Redis.DB = i
		}
	}
	if val := os.Getenv("GATEHOUSE_THROTTLE_REDIS_KEY_PREFIX"); val != "" {
		cfg.Throttle.Redis.KeyPrefix = val
	}

	// Audit overrides
	if val := os.Getenv("GATEHOUSE_AUDIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if val := os.Getenv("GATEHOUSE_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}
	if val := os.Getenv("GATEHOUSE_AUDIT_SQLITE_PATH"); val != "" {
		cfg.Audit.SQLite.Path = val
	}
	if val := os.Getenv("GATEHOUSE_AUDIT_ASYNC_BUFFER"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Audit.AsyncBuffer = i
		}
	}
	if val := os.Getenv("GATEHOUSE_AUDIT_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Audit.Retention.Days = i
		}
	}
	if val := os.Getenv("GATEHOUSE_AUDIT_RETENTION_SCHEDULE"); val != "" {
		cfg.Audit.Retention.Schedule = val
	}

	// Flood guard overrides
	if val := os.Getenv("GATEHOUSE_FLOOD_GUARD_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.FloodGuard.Enabled = b
		}
	}
	if val := os.Getenv("GATEHOUSE_FLOOD_GUARD_REQUESTS_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.FloodGuard.RequestsPerSecond = f
		}
	}
	if val := os.Getenv("GATEHOUSE_FLOOD_GUARD_BURST"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.FloodGuard.Burst = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("GATEHOUSE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GATEHOUSE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GATEHOUSE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("GATEHOUSE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
}
