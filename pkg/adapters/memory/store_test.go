package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/wayz/pkg/adapters/memory"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, func(t *testing.T) ports.CheckpointStore {
		return memory.NewStore()
	})
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	state := domain.NewState("c1")
	state.Metadata["k"] = "v"

	require.NoError(t, store.Save(ctx, "cp", state, nil))
	state.Metadata["k"] = "mutated after save"

	loaded, ok, err := store.Rollback(ctx, "cp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", loaded.Metadata["k"])

	loaded.Metadata["k"] = "mutated after load"
	again, _, _ := store.Rollback(ctx, "cp")
	assert.Equal(t, "v", again.Metadata["k"])
}
