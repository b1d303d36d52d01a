package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/promptledger/promptledger"
)

// metricsCache is the persisted aggregator state. It is derived data, safe
// to delete at any time: Offset records the log size the entries cover, and
// a cache that cannot be read or that claims more log than exists is
// discarded in favor of a full replay.
type metricsCache struct {
	Offset    int64                                 `json:"offset"`
	SavedAt   time.Time                             `json:"saved_at"`
	LastEvent *promptledger.UsageEvent              `json:"last_event,omitempty"`
	Entries   map[string]promptledger.MetricsEntry `json:"entries"`
}

func readMetricsCache(path string) (*metricsCache, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from service config
	if err != nil {
		return nil, err
	}
	var c metricsCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("telemetry: decode metrics cache: %w", err)
	}
	if c.Offset < 0 {
		return nil, fmt.Errorf("telemetry: metrics cache has negative offset %d", c.Offset)
	}
	if c.Entries == nil {
		c.Entries = make(map[string]promptledger.MetricsEntry)
	}
	return &c, nil
}

// writeMetricsCache replaces the cache atomically (write temp, rename) so a
// crash mid-flush never leaves a half-written cache behind.
func writeMetricsCache(path string, c *metricsCache) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("telemetry: encode metrics cache: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("telemetry: write metrics cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("telemetry: replace metrics cache: %w", err)
	}
	return nil
}
