// Package job implements the ingestion job orchestrator: a single background
// run loop that enumerates staged CSV files, downloads and parses each one,
// and feeds the rows to the dedup writer while tracking aggregate counters
// under one lock.
package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spacefeed/spacefeed/internal/metrics"
	"github.com/spacefeed/spacefeed/internal/models"
	"github.com/spacefeed/spacefeed/internal/parser"
)

// State is the controller's lifecycle state.
type State int

const (
	// StateIdle means no run loop is active.
	StateIdle State = iota
	// StateRunning means the run loop is processing files.
	StateRunning
	// StateStopRequested means the run loop will halt after the current file.
	StateStopRequested
)

// String returns the state name used in logs and the websocket stream.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	default:
		return "unknown"
	}
}

// ObjectStore is the object-storage capability the run loop needs: list the
// staged keys and fetch one object's bytes with optional progress reporting.
type ObjectStore interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, key string, progress func(done, total int64)) ([]byte, error)
}

// RecordWriter persists row records into a named collection, deduplicating
// by url_id.
type RecordWriter interface {
	EnsureCollection(ctx context.Context, collection string) error
	Insert(ctx context.Context, collection string, rec models.RowRecord) (models.Outcome, error)
}

// Snapshot is a consistent copy of the controller's shared state, taken
// under the lock. StartedAt is zero until the first run.
type Snapshot struct {
	State     State
	Inserted  uint64
	Total     uint64
	StartedAt time.Time
}

// rowLogEvery throttles per-row progress logging during large files.
const rowLogEvery = 1000

// Controller owns the job state machine and the run counters. At most one
// run loop is active at a time; Start while non-idle is a no-op, which keeps
// counter writes single-writer for the duration of a run.
type Controller struct {
	store      ObjectStore
	writer     RecordWriter
	mode       models.CollectionMode
	fixed      string
	logger     *slog.Logger
	collector  *metrics.Collector
	onProgress func(Snapshot)

	mu        sync.Mutex
	state     State
	inserted  uint64
	total     uint64
	startedAt time.Time
}

// New creates an idle controller. fixed is only consulted in fixed mode.
func New(store ObjectStore, writer RecordWriter, mode models.CollectionMode, fixed string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		writer:    writer,
		mode:      mode,
		fixed:     fixed,
		logger:    logger,
		collector: metrics.NewCollector(),
	}
}

// SetProgressFunc registers a callback invoked with a fresh snapshot on
// every progress update. Must be called before Start.
func (c *Controller) SetProgressFunc(fn func(Snapshot)) {
	c.onProgress = fn
}

// Start transitions the controller to running and spawns the run loop,
// returning immediately. Returns false without side effects when a run is
// already active. Counters reset at every successful start.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false
	}
	c.state = StateRunning
	c.inserted = 0
	c.total = 0
	c.startedAt = time.Now()
	c.mu.Unlock()

	c.collector.Reset()
	c.notify()

	runID := uuid.New().String()[:8]
	go c.run(ctx, runID)
	return true
}

// Stop requests a cooperative halt and returns immediately. The file in
// flight always runs to completion; the loop checks the flag between files
// only. Stopping an idle controller does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateRunning {
		c.state = StateStopRequested
	}
	c.mu.Unlock()
	c.logger.Info("stop signal sent")
}

// Snapshot returns a consistent copy of the shared state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.state,
		Inserted:  c.inserted,
		Total:     c.total,
		StartedAt: c.startedAt,
	}
}

// Metrics returns the per-run operation timing collector.
func (c *Controller) Metrics() metrics.Snapshot {
	return c.collector.Snapshot()
}

// run is the job's run loop. It executes in its own goroutine, isolated from
// the control surface, and always returns the controller to idle.
func (c *Controller) run(ctx context.Context, runID string) {
	log := c.logger.With("run_id", runID)
	defer c.finish(log)

	start := time.Now()
	keys, err := c.store.List(ctx)
	c.collector.RecordTiming(metrics.OpList, time.Since(start))
	if err != nil {
		// Listing failure is fatal to the run: no files processed, counters
		// stay zeroed.
		log.Error("listing bucket failed, aborting run", "error", err)
		return
	}
	if len(keys) == 0 {
		log.Info("no csv files found")
		return
	}
	log.Info("found csv files", "count", len(keys))

	// The key-to-collection mapping is fixed for the whole run.
	tasks := make([]models.FileTask, 0, len(keys))
	for _, key := range keys {
		tasks = append(tasks, models.FileTask{
			RemoteKey:  key,
			Collection: models.CollectionFor(key, c.mode, c.fixed),
		})
	}

	for i, task := range tasks {
		if c.stopRequested() {
			log.Info("stop requested, halting run", "completed_files", i, "remaining_files", len(tasks)-i)
			return
		}
		c.processFile(ctx, log, task)
	}
}

// processFile downloads, parses, and writes one file. Failures here are
// non-fatal to the run: the file is logged and skipped without touching the
// counters; only row counts of successfully parsed files are recorded.
func (c *Controller) processFile(ctx context.Context, log *slog.Logger, task models.FileTask) {
	collection := task.Collection
	flog := log.With("key", task.RemoteKey, "collection", collection)
	flog.Info("processing file")

	start := time.Now()
	data, err := c.store.Fetch(ctx, task.RemoteKey, func(done, total int64) {
		flog.Debug("downloading", "bytes", done, "total_bytes", total)
	})
	c.collector.RecordTiming(metrics.OpDownload, time.Since(start))
	if err != nil {
		flog.Error("download failed, skipping file", "error", err)
		return
	}

	rows, err := parser.Rows(data)
	if err != nil {
		flog.Error("parse failed, skipping file", "error", err)
		return
	}

	if err := c.writer.EnsureCollection(ctx, collection); err != nil {
		flog.Error("prepare collection failed, skipping file", "error", err)
		return
	}

	// The file's full row count lands in total before per-row processing,
	// malformed rows included.
	c.mu.Lock()
	c.total += uint64(len(rows))
	c.mu.Unlock()
	c.notify()

	var inserted, duplicates, malformed, failed int
	for i, row := range rows {
		rec, ok := models.NewRowRecord(row)
		if !ok {
			malformed++
			flog.Warn("skipping malformed row", "row", i+1, "fields", len(row))
			continue
		}

		start := time.Now()
		outcome, err := c.writer.Insert(ctx, collection, rec)
		c.collector.RecordTiming(metrics.OpInsert, time.Since(start))

		switch {
		case err != nil:
			failed++
			flog.Error("insert failed, skipping row", "row", i+1, "url_id", rec.URLID, "error", err)
		case outcome == models.OutcomeDuplicate:
			duplicates++
			flog.Debug("skipped duplicate", "url_id", rec.URLID)
		case outcome == models.OutcomeInserted:
			inserted++
			c.mu.Lock()
			c.inserted++
			c.mu.Unlock()
		}

		if (i+1)%rowLogEvery == 0 {
			flog.Info("insert progress", "rows", i+1, "total_rows", len(rows))
			c.notify()
		}
	}

	flog.Info("file complete",
		"rows", len(rows),
		"inserted", inserted,
		"duplicates", duplicates,
		"malformed", malformed,
		"failed", failed)
	c.notify()
}

// finish returns the controller to idle and logs the run summary.
func (c *Controller) finish(log *slog.Logger) {
	c.mu.Lock()
	inserted := c.inserted
	total := c.total
	duration := time.Since(c.startedAt)
	c.state = StateIdle
	c.mu.Unlock()
	c.notify()

	attrs := []any{
		"inserted", inserted,
		"total", total,
		"duration_s", int(duration.Seconds()),
	}
	if snap := c.collector.Snapshot(); snap.Insert != nil {
		attrs = append(attrs, "avg_insert_ms", snap.Insert.AvgTimeMs)
	}
	log.Info("run finished", attrs...)
}

func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateStopRequested
}

func (c *Controller) notify() {
	if c.onProgress != nil {
		c.onProgress(c.Snapshot())
	}
}
