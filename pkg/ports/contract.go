package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/wayz/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract verifies that a CheckpointStore implementation
// adheres to the interface contract. newStore must return an empty store.
func RunCheckpointStoreContract(t *testing.T, newStore func(t *testing.T) CheckpointStore) {
	ctx := context.Background()

	sample := func(conv, step string) *domain.State {
		s := domain.NewState(conv)
		s.CurrentStep = step
		s.Metadata["count"] = 42
		s.AddMessage(domain.NewMessage(domain.PerformativeInform, "wayz", "user", map[string]any{"text": "hi"}, conv))
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		store := newStore(t)
		state := sample("conv-1", "greeting")

		require.NoError(t, store.Save(ctx, "cp-1", state, map[string]any{"note": "first", "checkpoint_id": "spoofed"}))

		cp, ok, err := store.Load(ctx, "cp-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "cp-1", cp.ID(), "generated id must win over caller metadata")
		assert.Equal(t, "first", cp.Metadata["note"])
		_, parsed := cp.Summary("").Time()
		assert.True(t, parsed, "timestamp must be parseable")

		require.NotNil(t, cp.State)
		assert.Equal(t, "conv-1", cp.State.ConversationID)
		assert.Equal(t, "greeting", cp.State.CurrentStep)
		require.Len(t, cp.State.Messages, 1)
		text, _ := cp.State.Messages[0].Text()
		assert.Equal(t, "hi", text)
		// JSON backends decode numbers as float64.
		assert.EqualValues(t, 42, cp.State.Metadata["count"])
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "cp-1", sample("conv-1", "greeting"), nil))
		require.NoError(t, store.Save(ctx, "cp-1", sample("conv-1", "completed"), nil))

		state, ok, err := store.Rollback(ctx, "cp-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "completed", state.CurrentStep)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		store := newStore(t)
		cp, ok, err := store.Load(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, cp)

		state, ok, err := store.Rollback(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, state)
	})

	t.Run("List", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "a-1", sample("conv-a", "greeting"), nil))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, store.Save(ctx, "b-1", sample("conv-b", "greeting"), nil))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, store.Save(ctx, "a-2", sample("conv-a", "completed"), nil))

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a-2", all[0].CheckpointID, "newest first")
		assert.Equal(t, "a-1", all[2].CheckpointID)

		filtered, err := store.List(ctx, "conv-a")
		require.NoError(t, err)
		require.Len(t, filtered, 2)
		assert.Equal(t, "a-2", filtered[0].CheckpointID)
		assert.Equal(t, "completed", filtered[0].CurrentStep)
		assert.Equal(t, "conv-a", filtered[1].ConversationID)

		none, err := store.List(ctx, "conv-z")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Rollback Leaves Store Intact", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "cp-1", sample("conv-1", "processing"), nil))

		state, ok, err := store.Rollback(ctx, "cp-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "processing", state.CurrentStep)

		_, ok, err = store.Load(ctx, "cp-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "cp-1", sample("conv-1", "greeting"), nil))

		deleted, err := store.Delete(ctx, "cp-1")
		require.NoError(t, err)
		assert.True(t, deleted)

		_, ok, err := store.Load(ctx, "cp-1")
		require.NoError(t, err)
		assert.False(t, ok, "Load after Delete should report absence")

		deleted, err = store.Delete(ctx, "cp-1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("Cleanup", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "cp-1", sample("conv-1", "greeting"), nil))
		require.NoError(t, store.Save(ctx, "cp-2", sample("conv-1", "completed"), nil))

		removed, err := store.Cleanup(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, removed, "fresh checkpoints survive")

		time.Sleep(20 * time.Millisecond)
		removed, err = store.Cleanup(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Dot-Prefixed Ids", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, ".conv_1234abcd", sample(".conv", "completed"), nil))

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, ".conv_1234abcd", all[0].CheckpointID)

		removed, err := store.Cleanup(ctx, -time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, ok, err := store.Load(ctx, ".conv_1234abcd")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
