package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/wayz/pkg/domain"
)

type entry struct {
	data    []byte
	modTime time.Time
}

// Store implements ports.CheckpointStore in memory.
// Checkpoints are kept as encoded JSON, so callers never share memory with the
// store and values come back exactly as a durable backend would return them.
// Safe for concurrent use.
type Store struct {
	data map[string]entry
	mu   sync.RWMutex
	now  func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Save persists the checkpoint in memory.
func (s *Store) Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error {
	if err := domain.ValidateCheckpointID(id); err != nil {
		return err
	}
	now := s.now()
	data, err := json.Marshal(domain.NewCheckpoint(id, state, metadata, now))
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = entry{data: data, modTime: now}
	return nil
}

// Load retrieves a copy of the checkpoint.
func (s *Store) Load(ctx context.Context, id string) (*domain.Checkpoint, bool, error) {
	s.mu.RLock()
	e, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	cp, err := decode(e.data)
	if err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

func decode(data []byte) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// List returns summaries, newest first.
func (s *Store) List(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error) {
	s.mu.RLock()
	snapshot := make(map[string][]byte, len(s.data))
	for id, e := range s.data {
		snapshot[id] = e.data
	}
	s.mu.RUnlock()

	sums := make([]domain.CheckpointSummary, 0, len(snapshot))
	for id, data := range snapshot {
		cp, err := decode(data)
		if err != nil {
			continue
		}
		if conversationID != "" && cp.ConversationID() != conversationID {
			continue
		}
		sums = append(sums, cp.Summary(id))
	}
	domain.SortSummaries(sums)
	return sums, nil
}

// Rollback returns a copy of the stored state.
func (s *Store) Rollback(ctx context.Context, id string) (*domain.State, bool, error) {
	cp, ok, err := s.Load(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cp.State, cp.State != nil, nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	delete(s.data, id)
	return ok, nil
}

// Cleanup removes checkpoints saved more than maxAge ago.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if e.modTime.Before(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}
