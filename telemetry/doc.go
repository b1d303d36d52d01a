// Package telemetry records prompt usage durably and derives per-prompt
// metrics from it. The append-only JSONL log is the source of truth; the
// in-memory aggregator (and its optional on-disk cache) hold only derived
// state and are rebuilt from the log on startup.
package telemetry
