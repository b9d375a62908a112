package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"hireloop/gatehouse/pkg/audit"
	auditrecorder "hireloop/gatehouse/pkg/audit/recorder"
	"hireloop/gatehouse/pkg/audit/retention"
	auditstorage "hireloop/gatehouse/pkg/audit/storage"
	"hireloop/gatehouse/pkg/config"
	"hireloop/gatehouse/pkg/server"
	"hireloop/gatehouse/pkg/telemetry/logging"
	"hireloop/gatehouse/pkg/telemetry/metrics"
	"hireloop/gatehouse/pkg/throttle"
	"hireloop/gatehouse/pkg/throttle/storage"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watchConfig   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gatehouse server",
	Long: `Start the gatehouse server with the specified configuration.

Examples:
  # Start with default config
  gatehouse run

  # Start with custom config
  gatehouse run --config /etc/gatehouse/config.yaml

  # Override listen address
  gatehouse run --listen 0.0.0.0:8080

  # Validate config without starting the server
  gatehouse run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
	runCmd.Flags().BoolVar(&runFlags.watchConfig, "watch-config", true, "reload the config file on change")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return err
	}
	logger.Install()

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector("gatehouse", nil)
	}

	// Counter store
	counterStore, err := newCounterStore(cfg)
	if err != nil {
		return err
	}
	defer counterStore.Close()
	slog.Info("counter store initialized", "backend", cfg.Throttle.Backend)

	// Audit trail
	var (
		auditStore audit.Storage
		rec        *auditrecorder.Recorder
		pruner     *retention.Pruner
	)
	if cfg.Audit.Enabled {
		auditStore, err = newAuditStore(cfg)
		if err != nil {
			return err
		}
		defer auditStore.Close()

		rec = auditrecorder.NewRecorder(auditStore, &auditrecorder.Config{
			Enabled:      true,
			AsyncBuffer:  cfg.Audit.AsyncBuffer,
			WriteTimeout: cfg.Audit.WriteTimeout,
		}, collector)
		defer rec.Close()

		if cfg.Audit.Retention.Schedule != "" {
			pruner = retention.NewPruner(auditStore, &retention.Config{
				RetentionDays: cfg.Audit.Retention.Days,
				MaxRecords:    cfg.Audit.Retention.MaxRecords,
				PruneSchedule: cfg.Audit.Retention.Schedule,
			})
			if err := pruner.Start(ctx); err != nil {
				slog.Warn("failed to start retention scheduler", "error", err)
			} else {
				defer pruner.Stop()
			}
		}
		slog.Info("audit trail initialized", "backend", cfg.Audit.Backend)
	}

	// Evaluator
	opts := []throttle.Option{
		throttle.WithMetrics(collector),
	}
	if rec != nil {
		opts = append(opts, throttle.WithAuditSink(server.NewDenialSink(rec)))
	}
	evaluator := throttle.NewEvaluator(counterStore, opts...)

	// Config hot reload applies the log level only; everything else needs
	// a restart.
	if runFlags.watchConfig {
		watcher, err := config.NewWatcher(cfgFile)
		if err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			go func() {
				_ = watcher.Watch(ctx, func(newCfg *config.Config) {
					if err := logger.SetLevel(newCfg.Telemetry.Logging.Level); err != nil {
						slog.Warn("ignoring invalid log level from reload", "error", err)
						return
					}
					slog.Info("log level updated", "level", newCfg.Telemetry.Logging.Level)
				})
			}()
		}
	}

	srv := server.NewServer(cfg, server.Deps{
		Evaluator:  evaluator,
		AuditStore: auditStore,
		Recorder:   rec,
		Metrics:    collector,
	})

	return srv.Start(ctx)
}

// newCounterStore builds the configured throttle counter backend.
func newCounterStore(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Throttle.Backend {
	case "sqlite":
		return storage.NewSQLiteBackend(cfg.Throttle.SQLite.Path)
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Throttle.Redis.Addr,
			Password: cfg.Throttle.Redis.Password,
			DB:       cfg.Throttle.Redis.DB,
		})
		return storage.NewRedisBackend(rdb, storage.WithKeyPrefix(cfg.Throttle.Redis.KeyPrefix)), nil
	default:
		return nil, fmt.Errorf("unsupported throttle backend: %s", cfg.Throttle.Backend)
	}
}

// newAuditStore builds the configured audit storage backend.
func newAuditStore(cfg *config.Config) (audit.Storage, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		return auditstorage.NewSQLiteStorage(cfg.Audit.SQLite.Path)
	case "memory":
		return auditstorage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Audit.Backend)
	}
}
