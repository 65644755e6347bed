package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wayz.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
log_level: error
runner:
  retry_delay: 0s
policy:
  mode: allow
store:
  backend: file
  dir: `+filepath.Join(dir, "checkpoints")+`
`), 0644))

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "wayz version "+wayz.Version+"\n", out)

	out, err = run(t, "--config", cfgPath, "demo", "--no-banner", "--policy", "allow", "--conversation-id", "cmd-test")
	require.NoError(t, err)
	assert.Contains(t, out, "Demo completed successfully!")

	out, err = run(t, "--config", cfgPath, "checkpoints", "list", "--json")
	require.NoError(t, err)
	var sums []domain.CheckpointSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sums))
	require.Len(t, sums, 1)
	assert.Equal(t, "cmd-test", sums[0].ConversationID)

	out, err = run(t, "--config", cfgPath, "checkpoints", "rollback", sums[0].CheckpointID)
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back to checkpoint: "+sums[0].CheckpointID)

	_, err = run(t, "--config", cfgPath, "checkpoints", "inspect", "missing")
	assert.Error(t, err)

	out, err = run(t, "--config", cfgPath, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "greeting --> processing")
	assert.NotContains(t, out, "classDef")

	out, err = run(t, "--config", cfgPath, "graph", "--checkpoint", sums[0].CheckpointID)
	require.NoError(t, err)
	assert.Contains(t, out, "class finalize visited;")

	out, err = run(t, "--config", cfgPath, "checkpoints", "rm", sums[0].CheckpointID)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed checkpoint")
}

func TestDemo_DeniedByDefault(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "wayz.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log_level: error\nstore:\n  backend: memory\n"), 0644))

	out, err := run(t, "--config", cfgPath, "demo", "--no-banner", "--policy", "deny")
	require.Error(t, err)
	assert.Contains(t, out, wayz.DeniedMessage)
}
