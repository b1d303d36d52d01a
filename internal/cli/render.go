package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptledger/promptledger/internal/config"
	"github.com/promptledger/promptledger/registry"
)

// NewRenderCmd creates the render command for offline prompt rendering.
func NewRenderCmd() *cobra.Command {
	var (
		dir        string
		version    string
		vars       []string
		inputsJSON string
	)
	cmd := &cobra.Command{
		Use:   "render <prompt-id>",
		Short: "Resolve a prompt and render it with the given variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], dir, version, vars, inputsJSON)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "prompts directory (default: PROMPTS_DIR)")
	cmd.Flags().StringVar(&version, "version", "", "exact version to render (default: highest)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().StringVar(&inputsJSON, "inputs", "", "template variables as a JSON object")
	return cmd
}

func runRender(cmd *cobra.Command, id, dir, version string, vars []string, inputsJSON string) error {
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
	def, err := store.Resolve(id, version)
	if err != nil {
		return err
	}
	inputs := make(map[string]any)
	if inputsJSON != "" {
		if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
			return fmt.Errorf("parse --inputs: %w", err)
		}
	}
	for _, kv := range vars {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --var %q, want key=value", kv)
		}
		inputs[key] = value
	}
	rendered, err := def.Render(inputs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}
