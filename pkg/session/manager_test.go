package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/wayz/pkg/adapters/memory"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/ports"
	"github.com/aretw0/wayz/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates write latency and records overlapping writes per id.
type SlowStore struct {
	ports.CheckpointStore
	active   atomic.Int32
	overlaps atomic.Int32
}

func (s *SlowStore) Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error {
	if s.active.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	defer s.active.Add(-1)
	time.Sleep(5 * time.Millisecond)
	return s.CheckpointStore.Save(ctx, id, state, metadata)
}

func TestManager_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, func(t *testing.T) ports.CheckpointStore {
		return session.NewManager(memory.NewStore())
	})
}

func TestManager_SerializesSameID(t *testing.T) {
	store := &SlowStore{CheckpointStore: memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.Save(ctx, "race", domain.NewState("c1"), nil))
		}()
	}
	wg.Wait()

	assert.Zero(t, store.overlaps.Load(), "writes to one id must not overlap")
	_, ok, err := manager.Load(ctx, "race")
	require.NoError(t, err)
	assert.True(t, ok)
}

type fakeLocker struct {
	locked   []string
	unlocked int
	err      error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, key)
	return func(context.Context) error {
		f.unlocked++
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, "cp-1", domain.NewState("c1"), nil))
	deleted, err := manager.Delete(ctx, "cp-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.Equal(t, []string{"cp-1", "cp-1"}, locker.locked)
	assert.Equal(t, 2, locker.unlocked)
}

func TestManager_LockFailureSkipsWrite(t *testing.T) {
	backend := memory.NewStore()
	manager := session.NewManager(backend, session.WithLocker(&fakeLocker{err: errors.New("redis down")}))
	ctx := context.Background()

	err := manager.Save(ctx, "cp-1", domain.NewState("c1"), nil)
	assert.ErrorContains(t, err, "redis down")

	_, ok, _ := backend.Load(ctx, "cp-1")
	assert.False(t, ok)
}
