package config

import "time"

// Config is the root configuration for the gatehouse service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Throttle   ThrottleConfig   `yaml:"throttle"`
	Audit      AuditConfig      `yaml:"audit"`
	FloodGuard FloodGuardConfig `yaml:"flood_guard"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the server binds to.
	ListenAddress string `yaml:"listen_address"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TrustProxyHeaders resolves the client address from X-Forwarded-For.
	// Only enable behind a proxy that overwrites the header.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// ThrottleConfig contains rate limiting settings.
type ThrottleConfig struct {
	// Backend selects the counter store: "sqlite", "memory" or "redis".
	Backend string `yaml:"backend"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`

	// Policies maps action names to their rate limit policy. The built-in
	// failed_login policy is fixed and not configured here.
	Policies map[string]PolicyConfig `yaml:"policies"`
}

// SQLiteConfig contains SQLite backend settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains redis backend settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PolicyConfig is the rate limit applied to one action.
type PolicyConfig struct {
	Limit         int `yaml:"limit"`
	WindowSeconds int `yaml:"window_seconds"`
}

// AuditConfig contains audit trail settings.
type AuditConfig struct {
	// Enabled enables request audit recording.
	Enabled bool `yaml:"enabled"`

	// Backend selects the audit store: "sqlite" or "memory".
	Backend string `yaml:"backend"`

	SQLite SQLiteConfig `yaml:"sqlite"`

	// AsyncBuffer is the size of the async write buffer.
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// SkipPathPrefix excludes matching paths from the access log.
	SkipPathPrefix string `yaml:"skip_path_prefix"`

	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains audit retention settings.
type RetentionConfig struct {
	// Days is the number of days to keep audit records. 0 keeps forever.
	Days int `yaml:"days"`

	// MaxRecords caps the total number of records. 0 means unlimited.
	MaxRecords int64 `yaml:"max_records"`

	// Schedule is a cron expression for pruning runs. Empty disables it.
	Schedule string `yaml:"schedule"`
}

// FloodGuardConfig contains the per-address flood guard settings.
type FloodGuardConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	IdleTTL           time.Duration `yaml:"idle_ttl"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AuthConfig contains the demo credential table and admin access list.
type AuthConfig struct {
	// Users maps usernames to passwords for the login endpoint. Meant for
	// demos and tests; production deployments front gatehouse with a real
	// authentication service.
	Users map[string]string `yaml:"users"`

	// AdminPrincipals may read the audit trail.
	AdminPrincipals []string `yaml:"admin_principals"`
}

// IsAdmin reports whether the principal may read the audit trail.
func (a *AuthConfig) IsAdmin(principal string) bool {
	for _, p := range a.AdminPrincipals {
		if p == principal {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Throttle.Backend == "" {
		cfg.Throttle.Backend = "sqlite"
	}
	if cfg.Throttle.SQLite.Path == "" {
		cfg.Throttle.SQLite.Path = "data/throttle.db"
	}
	if cfg.Throttle.Redis.Addr == "" {
		cfg.Throttle.Redis.Addr = "localhost:6379"
	}
	if cfg.Throttle.Redis.KeyPrefix == "" {
		cfg.Throttle.Redis.KeyPrefix = "gatehouse"
	}
	if cfg.Throttle.Policies == nil {
		cfg.Throttle.Policies = map[string]PolicyConfig{}
	}
	if _, ok := cfg.Throttle.Policies["create_job"]; !ok {
		cfg.Throttle.Policies["create_job"] = PolicyConfig{Limit: 3, WindowSeconds: 60}
	}
	if _, ok := cfg.Throttle.Policies["delete_job"]; !ok {
		cfg.Throttle.Policies["delete_job"] = PolicyConfig{Limit: 3, WindowSeconds: 60}
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = "sqlite"
		cfg.Audit.Enabled = true
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = "data/audit.db"
	}
	if cfg.Audit.AsyncBuffer == 0 {
		cfg.Audit.AsyncBuffer = 1000
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = 5 * time.Second
	}
	if cfg.Audit.SkipPathPrefix == "" {
		cfg.Audit.SkipPathPrefix = "/api/audit"
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = 90
	}
	if cfg.Audit.Retention.Schedule == "" {
		cfg.Audit.Retention.Schedule = "0 3 * * *"
	}

	if cfg.FloodGuard.RequestsPerSecond == 0 {
		cfg.FloodGuard.RequestsPerSecond = 20
		cfg.FloodGuard.Enabled = true
	}
	if cfg.FloodGuard.Burst == 0 {
		cfg.FloodGuard.Burst = 40
	}
	if cfg.FloodGuard.IdleTTL == 0 {
		cfg.FloodGuard.IdleTTL = 3 * time.Minute
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
		cfg.Telemetry.Metrics.Enabled = true
	}
}
