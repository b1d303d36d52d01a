package telemetry

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/promptledger/promptledger"
)

// defaultFlushInterval is how often the metrics cache is rewritten when a
// cache path is configured and no interval was given.
const defaultFlushInterval = 30 * time.Second

// Recorder couples the durable log with the metrics aggregator: an event is
// appended and fsynced first, and only a confirmed write reaches the
// aggregator. Both see events in the same total order, so live metrics
// always equal a replay of the log.
type Recorder struct {
	log    *Log
	agg    *Aggregator
	logger *slog.Logger

	cachePath     string
	flushInterval time.Duration

	mu    sync.Mutex // holds append+aggregate together; also guards last/dirty
	last  *promptledger.UsageEvent
	dirty bool

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger for the recorder and its underlying log.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetricsCache enables the derived-metrics cache file. A non-positive
// interval keeps the default.
func WithMetricsCache(path string, flushInterval time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.cachePath = path
		if flushInterval > 0 {
			r.flushInterval = flushInterval
		}
	}
}

// NewRecorder wraps the log. The recorder owns it from here on: Close closes
// the log as well.
func NewRecorder(log *Log, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		log:           log,
		agg:           NewAggregator(),
		logger:        slog.Default(),
		flushInterval: defaultFlushInterval,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log.setLogger(r.logger)
	return r
}

// Replay rebuilds aggregator state from the log. Call it once, before the
// recorder starts accepting events. When the metrics cache is readable and
// covers no more log than exists, it seeds the aggregator and only the tail
// beyond its offset is replayed; any doubt about the cache discards it and
// the full log is replayed, since the log is the source of truth.
func (r *Recorder) Replay(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var start int64
	if r.cachePath != "" {
		cache, err := readMetricsCache(r.cachePath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			r.logger.Warn("metrics cache unusable, replaying full log", "path", r.cachePath, "error", err)
		case cache.Offset > r.log.Size():
			r.logger.Warn("metrics cache ahead of log, replaying full log",
				"path", r.cachePath, "cache_offset", cache.Offset, "log_size", r.log.Size())
		default:
			r.agg.restore(cache.Entries)
			r.last = cache.LastEvent
			start = cache.Offset
		}
	}
	replayed := 0
	for event, err := range r.log.AllFrom(start) {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.agg.OnEvent(event)
		r.last = event
		replayed++
	}
	if r.last != nil {
		r.log.seedLastTimestamp(r.last.Timestamp)
	}
	r.logger.Info("usage log replayed", "from_offset", start, "events", replayed, "prompts", r.agg.Len())
	if r.cachePath != "" {
		r.dirty = true
		if err := r.flushLocked(); err != nil {
			r.logger.Warn("metrics cache write failed", "error", err)
		}
	}
	return nil
}

// Record appends the event durably, then folds it into the metrics. On a
// storage failure the error is returned and the aggregator is untouched.
// Returns the event with its assigned id and timestamp.
func (r *Recorder) Record(ctx context.Context, event *promptledger.UsageEvent) (*promptledger.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.log.Append(ctx, event); err != nil {
		return nil, err
	}
	r.agg.OnEvent(event)
	r.last = event
	r.dirty = true
	return event, nil
}

// Snapshot returns the current per-prompt metrics.
func (r *Recorder) Snapshot() map[string]promptledger.MetricsEntry {
	return r.agg.Snapshot()
}

// LastEvent returns a deep copy of the most recently recorded event, live or
// recovered by Replay, and false when the log holds no events. Mutating the
// copy never reaches the retained event.
func (r *Recorder) LastEvent() (*promptledger.UsageEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil, false
	}
	return r.last.Clone(), true
}

// Start launches the periodic cache flusher. No-op when the cache is
// disabled. The flusher stops when ctx is cancelled or Close is called.
func (r *Recorder) Start(ctx context.Context) {
	if r.cachePath == "" {
		return
	}
	r.wg.Add(1)
	go r.flushLoop(ctx)
}

func (r *Recorder) flushLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.logger.Warn("metrics cache write failed", "error", err)
			}
		}
	}
}

// Flush writes the metrics cache if it is enabled and has unsaved changes.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return nil
	}
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if r.cachePath == "" {
		return nil
	}
	cache := &metricsCache{
		Offset:    r.log.Size(),
		SavedAt:   time.Now().UTC(),
		LastEvent: r.last,
		Entries:   r.agg.Snapshot(),
	}
	if err := writeMetricsCache(r.cachePath, cache); err != nil {
		return err
	}
	r.dirty = false
	return nil
}

// Close stops the flusher, writes a final cache snapshot, and closes the log.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
	err := r.Flush()
	if cerr := r.log.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
