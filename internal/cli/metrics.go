package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptledger/promptledger/internal/config"
	"github.com/promptledger/promptledger/telemetry"
)

// NewMetricsCmd creates the metrics command that replays a usage log offline
// and prints the aggregated per-prompt metrics. Same aggregation as the
// running service, so the output matches GET /metrics for the same log.
func NewMetricsCmd() *cobra.Command {
	var logPath string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Replay the usage log and print per-prompt metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMetrics(cmd, logPath)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "usage log path (default: USAGE_LOG_PATH)")
	return cmd
}

func runMetrics(cmd *cobra.Command, logPath string) error {
	if logPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logPath = cfg.UsageLogPath
	}
	if _, err := os.Stat(logPath); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), "{}")
		return nil
	}
	usageLog, err := telemetry.Open(logPath)
	if err != nil {
		return err
	}
	defer func() { _ = usageLog.Close() }()
	agg := telemetry.NewAggregator()
	for event, err := range usageLog.All() {
		if err != nil {
			return err
		}
		agg.OnEvent(event)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(agg.Snapshot())
}
