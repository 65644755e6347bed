package ports

import (
	"context"
	"time"

	"github.com/aretw0/wayz/pkg/domain"
)

// CheckpointStore persists state snapshots with metadata.
// Implementations do not order concurrent writes: two saves of the same id race
// and the last one wins.
type CheckpointStore interface {
	// Save persists state under id, merging metadata with the generated
	// checkpoint_id and timestamp fields. An existing id is overwritten.
	Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error

	// Load returns the checkpoint for id. A missing id reports false with a nil error.
	Load(ctx context.Context, id string) (*domain.Checkpoint, bool, error)

	// List returns summaries newest first. Unreadable entries are skipped.
	// A non-empty conversationID restricts the result to that conversation.
	List(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error)

	// Rollback returns the state portion of a checkpoint without modifying the store.
	Rollback(ctx context.Context, id string) (*domain.State, bool, error)

	// Delete removes a checkpoint and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Cleanup removes checkpoints whose storage modification time is older than maxAge
	// and returns how many were removed. Per-entry failures are skipped.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}
