package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptledger/promptledger/internal/config"
	"github.com/promptledger/promptledger/registry"
)

// NewCheckCmd creates the check command that lints a prompts directory.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [dir]",
		Short: "Validate prompt definition files and list registered versions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runCheck(cmd, dir)
		},
	}
}

func runCheck(cmd *cobra.Command, dir string) error {
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dir = cfg.PromptsDir
	}
	store, err := registry.Load(dir, registry.WithLogger(discardLogger()))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, id := range store.IDs() {
		versions, err := store.Versions(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", id, strings.Join(versions, ", "))
	}
	issues := store.Issues()
	for _, issue := range issues {
		fmt.Fprintf(out, "error: %s: %v\n", issue.Source, issue.Err)
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d definition record(s) failed to load", len(issues))
	}
	fmt.Fprintf(out, "%d prompt(s), %d record(s), no issues\n", len(store.IDs()), store.Len())
	return nil
}

// discardLogger suppresses registry load warnings; offline commands report
// issues themselves.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
