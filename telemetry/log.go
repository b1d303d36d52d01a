package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/promptledger/promptledger"
)

// ErrLogClosed is returned by Append after Close.
var ErrLogClosed = errors.New("telemetry: usage log is closed")

// ErrEventTooLarge is returned by Append when the event's JSON encoding
// exceeds MaxEventBytes. Nothing is written.
var ErrEventTooLarge = errors.New("telemetry: usage event exceeds size limit")

// MaxEventBytes bounds the JSON encoding of a single usage event. Events
// carry request and response payloads, so the bound is far above typical
// lines. Append enforces it so that every record it confirms can be scanned
// back by All and AllFrom.
const MaxEventBytes = 16 << 20

// Log is the durable append-only usage event log: one JSON object per line.
// Appends are serialized and fsynced; reads open their own handle, so any
// number of All iterations can run while appends continue.
type Log struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	f       *os.File
	offset  int64 // end of the last complete append
	lastTS  time.Time
	needSep bool // file ends without '\n' (torn tail from a crash)
	closed  bool
}

// Open creates the log file (and parent directory) if needed and positions
// appends after the existing content. Existing bytes are never rewritten;
// a torn final line left by a crash is neutralized by prefixing the next
// append with a newline.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("telemetry: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) // #nosec G304 -- path comes from service config
	if err != nil {
		return nil, fmt.Errorf("telemetry: open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("telemetry: stat log: %w", err)
	}
	l := &Log{
		path:   path,
		logger: slog.Default(),
		f:      f,
		offset: info.Size(),
	}
	if l.offset > 0 {
		var last [1]byte
		if _, err := f.ReadAt(last[:], l.offset-1); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("telemetry: read log tail: %w", err)
		}
		l.needSep = last[0] != '\n'
	}
	return l, nil
}

// Append assigns missing identity fields to the event, writes it as one JSON
// line, and fsyncs before returning. Concurrent appends are serialized; each
// record reaches the file whole and timestamps never regress in write order.
// An event encoding to more than MaxEventBytes is rejected with
// ErrEventTooLarge before anything is written. On a write or sync failure the
// partial record is rolled back and the error returned; the event is not
// considered logged.
func (l *Log) Append(ctx context.Context, event *promptledger.UsageEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLogClosed
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Timestamp.Before(l.lastTS) {
		event.Timestamp = l.lastTS
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	if len(line) > MaxEventBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrEventTooLarge, len(line), MaxEventBytes)
	}
	if l.needSep {
		line = append([]byte{'\n'}, line...)
	}
	line = append(line, '\n')
	if _, err := l.f.WriteAt(line, l.offset); err != nil {
		l.rollback()
		return fmt.Errorf("telemetry: write event: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		l.rollback()
		return fmt.Errorf("telemetry: sync event: %w", err)
	}
	l.offset += int64(len(line))
	l.lastTS = event.Timestamp
	l.needSep = false
	return nil
}

// rollback discards a failed append so the file ends at the last confirmed
// record. If truncation itself fails the leftover bytes form a torn line;
// the next append separates itself from it and readers skip it.
func (l *Log) rollback() {
	if err := l.f.Truncate(l.offset); err != nil {
		l.needSep = true
	}
}

// All returns the logged events in write order. The sequence is lazy and
// restartable: each range opens its own read handle, so it can be consumed
// any number of times and concurrently with appends.
func (l *Log) All() iter.Seq2[*promptledger.UsageEvent, error] {
	return l.AllFrom(0)
}

// AllFrom returns events starting at the given byte offset, which must be a
// record boundary previously obtained from Size. Lines that do not decode,
// including a torn line left by a crash, are skipped with a warning. A read
// failure is yielded once with a nil event and ends the sequence.
func (l *Log) AllFrom(offset int64) iter.Seq2[*promptledger.UsageEvent, error] {
	return func(yield func(*promptledger.UsageEvent, error) bool) {
		f, err := os.Open(l.path) // #nosec G304 -- path comes from service config
		if err != nil {
			yield(nil, fmt.Errorf("telemetry: open log for read: %w", err))
			return
		}
		defer func() { _ = f.Close() }()
		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				yield(nil, fmt.Errorf("telemetry: seek log: %w", err))
				return
			}
		}
		sc := bufio.NewScanner(f)
		// a maximal record plus its newline must fit the scan buffer
		sc.Buffer(make([]byte, 0, 64*1024), MaxEventBytes+1)
		record := 0
		for sc.Scan() {
			record++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var event promptledger.UsageEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				l.logger.Warn("skipping malformed usage record",
					"path", l.path, "record", record, "offset", offset, "error", err)
				continue
			}
			if !yield(&event, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, fmt.Errorf("telemetry: read log: %w", err))
		}
	}
}

// Size returns the byte offset after the last confirmed record. Stable as a
// resume point for AllFrom.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Close flushes nothing (every append is already synced) and releases the
// file handle. Further appends return ErrLogClosed; reads remain possible.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

// setLogger replaces the warning logger. Used by Recorder so log warnings
// carry the service handler.
func (l *Log) setLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// seedLastTimestamp raises the monotonic floor for assigned timestamps.
// Recorder calls this during replay so post-restart appends never sort
// before recovered history.
func (l *Log) seedLastTimestamp(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.lastTS) {
		l.lastTS = t
	}
}
