package telemetry

import (
	"sync"

	"github.com/promptledger/promptledger"
)

// Aggregator maintains per-prompt usage metrics. State is derived purely
// from observed events, so feeding it the same event sequence always
// produces the same snapshot, whether live or replayed from the log.
type Aggregator struct {
	mu      sync.RWMutex
	entries map[string]*promptledger.MetricsEntry
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(map[string]*promptledger.MetricsEntry)}
}

// OnEvent folds one event into the metrics for its prompt id as a single
// atomic update; a concurrent Snapshot sees either all of the event's
// effects or none of them. Events without a prompt id are ignored.
func (a *Aggregator) OnEvent(event *promptledger.UsageEvent) {
	if event == nil || event.PromptID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	entry := a.entries[event.PromptID]
	if entry == nil {
		entry = &promptledger.MetricsEntry{}
		a.entries[event.PromptID] = entry
	}
	entry.Observe(event)
}

// Snapshot returns a value copy of all entries keyed by prompt id. The copy
// is detached: later events and caller mutations do not affect each other.
func (a *Aggregator) Snapshot() map[string]promptledger.MetricsEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]promptledger.MetricsEntry, len(a.entries))
	for id, entry := range a.entries {
		out[id] = *entry
	}
	return out
}

// Len returns the number of prompt ids with at least one observed event.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// restore replaces all state with the given entries (from the metrics cache).
func (a *Aggregator) restore(entries map[string]promptledger.MetricsEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]*promptledger.MetricsEntry, len(entries))
	for id, entry := range entries {
		cp := entry
		a.entries[id] = &cp
	}
}
