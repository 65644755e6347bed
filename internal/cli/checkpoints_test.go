package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/internal/config"
	"github.com/aretw0/wayz/internal/presentation/tui"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seeded returns a supervisor holding one checkpoint per conversation id.
func seeded(t *testing.T, conversations ...string) (*wayz.Supervisor, []string) {
	t.Helper()
	app := newTestApp(t, memoryConfig(config.PolicyAllow))

	var ids []string
	for _, c := range conversations {
		state, err := app.Supervisor.RunConversation(context.Background(), c)
		require.NoError(t, err)
		require.Len(t, state.CheckpointIDs, 1)
		ids = append(ids, state.CheckpointIDs[0])
		time.Sleep(5 * time.Millisecond)
	}
	return app.Supervisor, ids
}

func plain() (*tui.Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	return tui.NewPrinter(&buf, false), &buf
}

func TestDecodeInfo(t *testing.T) {
	info, err := DecodeInfo(map[string]any{
		"checkpoint_id":   "c1_abc",
		"conversation_id": "c1",
		"current_step":    "completed",
		"message_count":   float64(3),
		"extra":           true,
	})
	require.NoError(t, err)
	assert.Equal(t, CheckpointInfo{CheckpointID: "c1_abc", ConversationID: "c1", CurrentStep: "completed", MessageCount: 3}, info)

	_, err = DecodeInfo(map[string]any{"message_count": "many"})
	assert.Error(t, err)
}

func TestListCheckpoints(t *testing.T) {
	sup, ids := seeded(t, "alpha", "beta")
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		p, out := plain()
		require.NoError(t, ListCheckpoints(ctx, sup, p, "", false))
		text := out.String()
		assert.Contains(t, text, "ID: "+ids[0])
		assert.Contains(t, text, "ID: "+ids[1])
		assert.Contains(t, text, "  Messages: 3")
		assert.Contains(t, text, "Total: 2 checkpoint(s)")
		assert.Less(t, strings.Index(text, ids[1]), strings.Index(text, ids[0]), "newest first")
	})

	t.Run("filtered json", func(t *testing.T) {
		p, out := plain()
		require.NoError(t, ListCheckpoints(ctx, sup, p, "beta", true))
		var sums []domain.CheckpointSummary
		require.NoError(t, json.Unmarshal(out.Bytes(), &sums))
		require.Len(t, sums, 1)
		assert.Equal(t, ids[1], sums[0].CheckpointID)
	})

	t.Run("empty", func(t *testing.T) {
		p, out := plain()
		require.NoError(t, ListCheckpoints(ctx, sup, p, "nobody", false))
		assert.Equal(t, ">>> No checkpoints found.\n", out.String())
	})
}

func TestInspectCheckpoint(t *testing.T) {
	sup, ids := seeded(t, "alpha")
	ctx := context.Background()

	p, out := plain()
	require.NoError(t, InspectCheckpoint(ctx, sup, p, ids[0]))
	var cp domain.Checkpoint
	require.NoError(t, json.Unmarshal(out.Bytes(), &cp))
	assert.Equal(t, ids[0], cp.ID())
	assert.Equal(t, "alpha", cp.ConversationID())

	err := InspectCheckpoint(ctx, sup, p, "missing")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestRollbackCheckpoint(t *testing.T) {
	sup, ids := seeded(t, "alpha", "beta")
	ctx := context.Background()

	t.Run("by id", func(t *testing.T) {
		p, out := plain()
		state, err := RollbackCheckpoint(ctx, sup, p, nil, ids[0])
		require.NoError(t, err)
		assert.Equal(t, "alpha", state.ConversationID)
		assert.Contains(t, out.String(), "✔ Rolled back to checkpoint: "+ids[0])
		assert.Contains(t, out.String(), "   Messages: 3")
	})

	t.Run("picker", func(t *testing.T) {
		p, out := plain()
		state, err := RollbackCheckpoint(ctx, sup, p, strings.NewReader("2\n"), "")
		require.NoError(t, err)
		assert.Equal(t, "alpha", state.ConversationID, "entry 2 is the older checkpoint")
		assert.Contains(t, out.String(), "1. "+ids[1])
	})

	t.Run("not found", func(t *testing.T) {
		p, _ := plain()
		_, err := RollbackCheckpoint(ctx, sup, p, nil, "missing")
		assert.ErrorIs(t, err, ErrCheckpointNotFound)
	})

	t.Run("no id without terminal", func(t *testing.T) {
		p, _ := plain()
		_, err := RollbackCheckpoint(ctx, sup, p, nil, "")
		assert.Error(t, err)
	})
}

func TestPick(t *testing.T) {
	sums := []domain.CheckpointSummary{{CheckpointID: "a"}, {CheckpointID: "b"}}

	tests := []struct {
		input string
		want  string
		err   error
	}{
		{"1\n", "a", nil},
		{" 2 ", "b", nil},
		{"q\n", "", ErrCancelled},
		{"Q\n", "", ErrCancelled},
		{"", "", ErrCancelled},
		{"3\n", "", ErrInvalidChoice},
		{"0\n", "", ErrInvalidChoice},
		{"two\n", "", ErrInvalidChoice},
	}
	for _, tt := range tests {
		p, _ := plain()
		got, err := Pick(strings.NewReader(tt.input), p, sums)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}

	p, _ := plain()
	_, err := Pick(strings.NewReader("1\n"), p, nil)
	assert.ErrorIs(t, err, ErrNoCheckpoints)
}

func TestRemoveCheckpoints(t *testing.T) {
	sup, ids := seeded(t, "alpha")
	ctx := context.Background()

	p, out := plain()
	err := RemoveCheckpoints(ctx, sup, p, []string{ids[0], "missing"})
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
	assert.Contains(t, out.String(), "✔ Removed checkpoint '"+ids[0]+"'")
	assert.Contains(t, out.String(), "✘ Checkpoint 'missing' not found")

	sums, err := sup.ListCheckpoints(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestCleanupCheckpoints(t *testing.T) {
	sup, _ := seeded(t, "alpha", "beta")
	ctx := context.Background()

	p, out := plain()
	require.NoError(t, CleanupCheckpoints(ctx, sup, p, time.Hour))
	assert.Contains(t, out.String(), "Removed 0 checkpoint(s)")

	time.Sleep(20 * time.Millisecond)
	p, out = plain()
	require.NoError(t, CleanupCheckpoints(ctx, sup, p, 10*time.Millisecond))
	assert.Contains(t, out.String(), "Removed 2 checkpoint(s) older than 10ms")
}
