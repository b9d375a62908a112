package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hireloop/gatehouse/pkg/audit"
	"hireloop/gatehouse/pkg/telemetry/metrics"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// Enabled enables audit recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes audit records to storage asynchronously.
// Record returns immediately; a background worker drains the channel.
type Recorder struct {
	storage    audit.Storage
	config     *Config
	recordChan chan *audit.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewRecorder creates a new audit recorder with the provided storage backend
// and configuration. The metrics collector may be nil.
func NewRecorder(storage audit.Storage, config *Config, collector *metrics.Collector) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *audit.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		metrics:    collector,
		logger:     slog.Default().With("component", "audit.recorder"),
	}

	// Start background worker to drain channel
	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"enabled", config.Enabled,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record enqueues an audit record for async writing. A zero ID or Timestamp
// is filled in before enqueueing.
//
// This method never blocks: when the buffer is full the record is dropped
// and counted, because auditing must not slow down the request it observes.
func (r *Recorder) Record(ctx context.Context, record *audit.Record) {
	if !r.config.Enabled || record == nil {
		return
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	select {
	case <-r.done:
		r.logger.Warn("recorder shutting down, dropping audit record",
			"record_id", record.ID,
			"path", record.Path,
		)
		r.metrics.RecordAuditDrop()
	case r.recordChan <- record:
	default:
		r.logger.Error("audit channel full, dropping record",
			"record_id", record.ID,
			"path", record.Path,
			"channel_capacity", r.config.AsyncBuffer,
		)
		r.metrics.RecordAuditDrop()
	}
}

// Close gracefully shuts down the recorder by draining the async channel and
// waiting for all pending writes to complete.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down audit recorder")
		close(r.done)
		r.wg.Wait()
		r.logger.Info("audit recorder shut down complete")
	})
	return nil
}

// worker is the background goroutine that drains the record channel and
// writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			// Drain remaining records from channel before exit
			r.logger.Debug("draining audit channel before shutdown",
				"pending_count", len(r.recordChan),
			)

			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

// writeRecord writes a single audit record to storage.
func (r *Recorder) writeRecord(record *audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store audit record",
			"record_id", record.ID,
			"path", record.Path,
			"error", err,
		)
		r.metrics.RecordAuditWrite(false)
		return
	}

	r.metrics.RecordAuditWrite(true)

	r.logger.Debug("audit record stored",
		"record_id", record.ID,
		"principal_id", record.PrincipalID,
		"method", record.Method,
		"path", record.Path,
		"status", record.StatusCode,
	)
}
