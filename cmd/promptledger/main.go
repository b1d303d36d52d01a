// Command promptledger runs the versioned prompt registry: an HTTP service
// plus offline tools for checking definitions, rendering prompts, and
// aggregating the usage log.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptledger/promptledger/internal/cli"
)

var version = "dev" // set via ldflags at release time

func main() {
	rootCmd := &cobra.Command{
		Use:     "promptledger",
		Short:   "Versioned prompt registry with durable usage telemetry",
		Version: version,
	}
	rootCmd.AddCommand(cli.NewServeCmd())
	rootCmd.AddCommand(cli.NewCheckCmd())
	rootCmd.AddCommand(cli.NewRenderCmd())
	rootCmd.AddCommand(cli.NewMetricsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
