package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes writes to the same checkpoint id and otherwise delegates to
// a CheckpointStore. It implements ports.CheckpointStore itself, so it can be
// dropped in front of any backend.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.CheckpointStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager in front of store.
func NewManager(store ports.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Save persists a checkpoint while holding the lock for its id.
func (m *Manager) Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Save(ctx, id, state, metadata)
	})
}

// Delete removes a checkpoint while holding the lock for its id.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		deleted, err = m.store.Delete(ctx, id)
		return err
	})
	return deleted, err
}

// Load delegates to the store.
func (m *Manager) Load(ctx context.Context, id string) (*domain.Checkpoint, bool, error) {
	return m.store.Load(ctx, id)
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error) {
	return m.store.List(ctx, conversationID)
}

// Rollback delegates to the store.
func (m *Manager) Rollback(ctx context.Context, id string) (*domain.State, bool, error) {
	return m.store.Rollback(ctx, id)
}

// Cleanup delegates to the store.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return m.store.Cleanup(ctx, maxAge)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}

// WithLock executes fn while holding the lock for id.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"checkpoint_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
