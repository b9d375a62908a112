package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hireloop/gatehouse/pkg/audit"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain audit records.
	// 0 means keep records forever (no age-based pruning).
	RetentionDays int

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	MaxRecords int64

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables the scheduler.
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		MaxRecords:    0,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner enforces the retention policy on the audit trail.
type Pruner struct {
	storage   audit.Storage
	config    *Config
	now       func() time.Time
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner.
func NewPruner(storage audit.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		storage: storage,
		config:  config,
		now:     time.Now,
		logger:  slog.Default().With("component", "audit.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes audit records older than the retention period, then trims
// the trail to MaxRecords if it still exceeds the cap. Returns the total
// number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by age failed: %w", err)
		}
		totalDeleted += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by count failed: %w", err)
		}
		totalDeleted += deleted
	}

	if totalDeleted > 0 {
		p.logger.Info("audit pruning completed",
			"total_deleted", totalDeleted,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Debug("no audit records pruned")
	}

	return totalDeleted, nil
}

// pruneByAge deletes records older than the retention period.
func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)

	deleted, err := p.storage.Delete(ctx, &audit.Query{EndTime: &cutoff})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		p.logger.Info("pruned audit records by age",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}
	return deleted, nil
}

// pruneByCount deletes the oldest records when the trail exceeds MaxRecords.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if count <= p.config.MaxRecords {
		return 0, nil
	}

	// Query returns records newest first, so the record at offset
	// MaxRecords is the newest one past the cap. Everything at or before
	// its timestamp gets deleted. Records sharing that exact timestamp go
	// with it, which can trim slightly below the cap.
	boundary, err := p.storage.Query(ctx, &audit.Query{
		Limit:  1,
		Offset: int(p.config.MaxRecords),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find count cutoff: %w", err)
	}
	if len(boundary) == 0 {
		return 0, nil
	}

	cutoff := boundary[0].Timestamp
	deleted, err := p.storage.Delete(ctx, &audit.Query{EndTime: &cutoff})
	if err != nil {
		return 0, err
	}

	p.logger.Info("pruned audit records by count",
		"deleted_count", deleted,
		"max_records", p.config.MaxRecords,
	)
	return deleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
