// Package logging configures the process-wide structured logger.
//
// Gatehouse logs through log/slog everywhere; this package builds the slog
// handler from configuration (level, format), installs it as the default
// logger, and supports changing the level at runtime when the configuration
// file is reloaded.
package logging
