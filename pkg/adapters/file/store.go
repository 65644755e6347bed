package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
)

const (
	ext    = ".json"
	tmpExt = ".tmp"
)

// DefaultDir is used when no directory is configured.
var DefaultDir = filepath.Join(".wayz", "checkpoints")

// Store implements ports.CheckpointStore using the local filesystem.
// Each checkpoint is one JSON document named <id>.json in a flat directory.
type Store struct {
	BasePath string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Store rooted at basePath.
// If basePath is empty, it defaults to DefaultDir. The directory is created on first save.
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = DefaultDir
	}
	s := &Store{BasePath: basePath, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) path(id string) string {
	return filepath.Join(s.BasePath, id+ext)
}

// Save persists the checkpoint to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error {
	if err := domain.ValidateCheckpointID(id); err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(domain.NewCheckpoint(id, state, metadata, s.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Same directory keeps the rename on one filesystem. The suffix keeps
	// temp files out of listings.
	tmpFile, err := os.CreateTemp(s.BasePath, "."+id+"-*"+tmpExt)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	destPath := s.path(id)
	if err := os.Rename(tmpPath, destPath); err != nil {
		// Windows refuses to rename over an existing file.
		if _, statErr := os.Stat(destPath); statErr == nil {
			if err := os.Remove(destPath); err != nil {
				return fmt.Errorf("failed to remove existing checkpoint for overwrite: %w", err)
			}
			err = os.Rename(tmpPath, destPath)
		}
		if err != nil {
			return fmt.Errorf("failed to rename temp file to checkpoint: %w", err)
		}
	}

	s.logger.Debug("checkpoint saved", "checkpoint_id", id, "path", destPath)
	return nil
}

// Load reads the checkpoint file. A missing file reports false.
func (s *Store) Load(ctx context.Context, id string) (*domain.Checkpoint, bool, error) {
	if err := domain.ValidateCheckpointID(id); err != nil {
		return nil, false, err
	}
	cp, err := s.read(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return cp, true, nil
}

func (s *Store) read(path string) (*domain.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", filepath.Base(path), err)
	}
	return &cp, nil
}

// List returns checkpoint summaries, newest first. Unreadable files are skipped.
func (s *Store) List(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error) {
	names, err := s.entries(ext)
	if err != nil {
		return nil, err
	}

	sums := make([]domain.CheckpointSummary, 0, len(names))
	for _, name := range names {
		cp, err := s.read(filepath.Join(s.BasePath, name))
		if err != nil {
			s.logger.Debug("skipping unreadable checkpoint", "file", name, "error", err)
			continue
		}
		if conversationID != "" && cp.ConversationID() != conversationID {
			continue
		}
		sums = append(sums, cp.Summary(strings.TrimSuffix(name, ext)))
	}
	domain.SortSummaries(sums)
	return sums, nil
}

// entries lists file names in the base directory with the given extension.
func (s *Store) entries(extension string) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != extension {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Rollback returns the stored state without touching the file.
func (s *Store) Rollback(ctx context.Context, id string) (*domain.State, bool, error) {
	cp, ok, err := s.Load(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	if cp.State == nil {
		return nil, false, fmt.Errorf("checkpoint %s has no state", id)
	}
	return cp.State, true, nil
}

// Delete removes the checkpoint file and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := domain.ValidateCheckpointID(id); err != nil {
		return false, err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return true, nil
}

// Cleanup removes checkpoint files whose modification time is older than maxAge.
// Temp files orphaned by an interrupted Save are swept with the same cutoff but
// are not counted.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	names, err := s.entries(ext)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if s.removeOlder(name, cutoff) {
			removed++
		}
	}

	if temps, err := s.entries(tmpExt); err == nil {
		for _, name := range temps {
			if s.removeOlder(name, cutoff) {
				s.logger.Debug("removed orphaned temp file", "file", name)
			}
		}
	}

	if removed > 0 {
		s.logger.Info("checkpoints cleaned up", "removed", removed, "max_age", maxAge)
	}
	return removed, nil
}

// removeOlder deletes the named file when its modification time is before cutoff.
func (s *Store) removeOlder(name string, cutoff time.Time) bool {
	path := filepath.Join(s.BasePath, name)
	info, err := os.Stat(path)
	if err != nil || !info.ModTime().Before(cutoff) {
		return false
	}
	if err := os.Remove(path); err != nil {
		s.logger.Warn("failed to remove expired file", "file", name, "error", err)
		return false
	}
	return true
}
