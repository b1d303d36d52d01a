// Package cli wires the promptledger commands: the HTTP service and the
// offline tools that work on the same prompt files and usage log.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/promptledger/promptledger/internal/config"
	"github.com/promptledger/promptledger/registry"
	"github.com/promptledger/promptledger/server"
	"github.com/promptledger/promptledger/telemetry"
)

// NewServeCmd creates the serve command running the registry HTTP service.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the prompt registry HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	store, err := registry.Load(cfg.PromptsDir, registry.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}
	logger.Info("definitions loaded",
		"dir", cfg.PromptsDir,
		"prompts", len(store.IDs()),
		"records", store.Len(),
		"issues", len(store.Issues()),
	)

	usageLog, err := telemetry.Open(cfg.UsageLogPath)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	opts := []telemetry.RecorderOption{telemetry.WithLogger(logger)}
	if cfg.MetricsCachePath != "" {
		opts = append(opts, telemetry.WithMetricsCache(cfg.MetricsCachePath, cfg.FlushInterval()))
	}
	recorder := telemetry.NewRecorder(usageLog, opts...)
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := recorder.Replay(ctx); err != nil {
		return fmt.Errorf("replay usage log: %w", err)
	}
	recorder.Start(ctx)

	srv := server.New(cfg.HTTPAddr, store, recorder, server.WithLogger(logger))
	return srv.Start(ctx)
}
