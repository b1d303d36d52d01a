package promptledger

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"
)

// Definition is one immutable version of one prompt artifact. The pair
// (ID, Version) identifies it uniquely within a registry.
// Use NewDefinition to construct; fields must not be mutated after
// construction to ensure goroutine safety.
type Definition struct {
	ID            string
	Version       string // strict MAJOR.MINOR.PATCH semantic version
	Description   string
	Template      string // Go text/template: e.g. "Summarize: {{ .input_text }}"
	ExampleInputs []map[string]any
	OutputSchema  *SchemaDefinition // compiled JSON Schema for the expected model output; nil when not declared

	schemaDoc map[string]any // carried by WithOutputSchema until compiled in NewDefinition
	tpl       *template.Template
	vars      []string // pre-computed in constructor from the template AST
}

// UsageEvent is one durable record of a prompt rendering or model call.
// The telemetry log assigns ID and Timestamp at append time when absent;
// an event must not be shared or mutated after it is appended.
type UsageEvent struct {
	ID        string         `json:"event_id,omitempty"`
	PromptID  string         `json:"prompt_id"`
	Version   string         `json:"version,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	LatencyMs *float64       `json:"latency_ms,omitempty"`
	Input     any            `json:"input,omitempty"`
	Response  any            `json:"response,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate reports whether the event is well formed enough to log.
func (e *UsageEvent) Validate() error {
	if e == nil || strings.TrimSpace(e.PromptID) == "" {
		return errors.New("promptledger: usage event requires prompt_id")
	}
	if e.LatencyMs != nil {
		ms := *e.LatencyMs
		if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
			return fmt.Errorf("promptledger: usage event latency_ms must be a non-negative number, got %v", ms)
		}
	}
	return nil
}

// Clone returns a deep copy of the event. The map and slice spines of Input,
// Response, and Metadata are copied recursively, so mutating the copy cannot
// reach the original; payload values of other types are shared.
func (e *UsageEvent) Clone() *UsageEvent {
	if e == nil {
		return nil
	}
	cp := *e
	if e.LatencyMs != nil {
		ms := *e.LatencyMs
		cp.LatencyMs = &ms
	}
	cp.Input = cloneValue(e.Input)
	cp.Response = cloneValue(e.Response)
	if e.Metadata != nil {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = cloneValue(v)
		}
		cp.Metadata = md
	}
	return &cp
}

// cloneValue copies the map/slice spine of a JSON-shaped value.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// MetricsEntry is the aggregated usage state for one prompt id. It is
// derived entirely from the usage log and can always be rebuilt by replay.
// JSON tags define the metrics cache file shape.
type MetricsEntry struct {
	Count          int64     `json:"count"`
	LatencySamples int64     `json:"latency_samples"`
	AvgLatencyMs   float64   `json:"avg_latency_ms"`
	LastSeen       time.Time `json:"last_seen"`
	LatestVersion  string    `json:"latest_version"`
}

// Observe folds one event into the entry: count, incremental latency mean,
// newest timestamp, and highest version seen.
func (m *MetricsEntry) Observe(e *UsageEvent) {
	if e == nil {
		return
	}
	m.Count++
	if e.LatencyMs != nil {
		m.LatencySamples++
		m.AvgLatencyMs += (*e.LatencyMs - m.AvgLatencyMs) / float64(m.LatencySamples)
	}
	if e.Timestamp.After(m.LastSeen) {
		m.LastSeen = e.Timestamp
	}
	if e.Version != "" {
		m.LatestVersion = MaxVersion(m.LatestVersion, e.Version)
	}
}
