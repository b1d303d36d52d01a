package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/promptledger/promptledger"
	"github.com/promptledger/promptledger/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writePromptDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

const greetYAML = `prompt_id: greet
version: 1.0.0
template: "v1: hello {{ .name }}"
---
prompt_id: greet
version: 2.0.0
template: "v2: hello {{ .name }}, tags {{ .tags }}"
`

func TestCheck(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	out, err := execute(t, NewCheckCmd(), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "greet: 2.0.0, 1.0.0")
	assert.Contains(t, out, "1 prompt(s), 2 record(s), no issues")
}

func TestCheck_ReportsIssues(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{
		"greet.yaml": greetYAML,
		"bad.yaml":   "prompt_id: broken\ntemplate: no version here\n",
	})
	out, err := execute(t, NewCheckCmd(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 definition record(s) failed to load")
	assert.Contains(t, out, "error:")
	assert.Contains(t, out, "bad.yaml")
	assert.Contains(t, out, "greet: 2.0.0, 1.0.0", "healthy prompts are still listed")
}

func TestCheck_MissingDir(t *testing.T) {
	t.Parallel()
	_, err := execute(t, NewCheckCmd(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	out, err := execute(t, NewRenderCmd(),
		"greet", "--dir", dir, "--version", "1.0.0", "--var", "name=World")
	require.NoError(t, err)
	assert.Equal(t, "v1: hello World\n", out)
}

func TestRender_DefaultsToHighestVersion(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	out, err := execute(t, NewRenderCmd(),
		"greet", "--dir", dir, "--var", "name=World", "--var", "tags=none")
	require.NoError(t, err)
	assert.Contains(t, out, "v2: hello World")
}

func TestRender_InputsJSON(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	out, err := execute(t, NewRenderCmd(),
		"greet", "--dir", dir, "--inputs", `{"name":"Ada","tags":["go","ml"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, "v2: hello Ada")
	assert.Contains(t, out, `["go","ml"]`, "composite values render as canonical JSON")
}

func TestRender_VarOverridesInputs(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	out, err := execute(t, NewRenderCmd(),
		"greet", "--dir", dir, "--version", "1.0.0",
		"--inputs", `{"name":"Ada"}`, "--var", "name=Grace")
	require.NoError(t, err)
	assert.Equal(t, "v1: hello Grace\n", out)
}

func TestRender_MissingVariable(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	_, err := execute(t, NewRenderCmd(), "greet", "--dir", dir, "--version", "1.0.0")
	require.ErrorIs(t, err, promptledger.ErrMissingVariable)
	assert.Contains(t, err.Error(), "name")
}

func TestRender_BadVarSyntax(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	_, err := execute(t, NewRenderCmd(), "greet", "--dir", dir, "--var", "oops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --var")
}

func TestRender_UnknownPrompt(t *testing.T) {
	t.Parallel()
	dir := writePromptDir(t, map[string]string{"greet.yaml": greetYAML})
	_, err := execute(t, NewRenderCmd(), "nope", "--dir", dir)
	require.ErrorIs(t, err, promptledger.ErrUnknownPrompt)
}

func TestMetrics_MissingLogPrintsEmpty(t *testing.T) {
	t.Parallel()
	out, err := execute(t, NewMetricsCmd(), "--log", filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", out)
}

func TestMetrics_ReplaysLog(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	usageLog, err := telemetry.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	for _, latency := range []float64{100, 300} {
		require.NoError(t, usageLog.Append(ctx, &promptledger.UsageEvent{
			PromptID:  "greet",
			Version:   "2.0.0",
			LatencyMs: &latency,
		}))
	}
	require.NoError(t, usageLog.Close())

	out, err := execute(t, NewMetricsCmd(), "--log", path)
	require.NoError(t, err)
	var metrics map[string]promptledger.MetricsEntry
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	entry := metrics["greet"]
	assert.Equal(t, int64(2), entry.Count)
	assert.InDelta(t, 200, entry.AvgLatencyMs, 1e-9)
	assert.Equal(t, "2.0.0", entry.LatestVersion)
}
