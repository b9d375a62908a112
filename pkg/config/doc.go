// Package config provides the configuration system.
//
// Configuration is loaded from a YAML file, overlaid with GATEHOUSE_*
// environment variables, and validated. A file watcher can reload the
// configuration at runtime for the settings that support it (log level).
package config
