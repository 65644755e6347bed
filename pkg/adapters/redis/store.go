package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the adapter writes.
const DefaultPrefix = "wayz:"

// Store implements ports.CheckpointStore using Redis.
//
// Each checkpoint is a JSON string at <prefix>checkpoint:<id>. A sorted set at
// <prefix>checkpoints indexes ids by save time and drives List and Cleanup.
type Store struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for checkpoints. Zero keeps them until deleted.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(id string) string {
	return s.prefix + "checkpoint:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "checkpoints"
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// Save persists the checkpoint and indexes it by save time.
func (s *Store) Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error {
	if err := domain.ValidateCheckpointID(id); err != nil {
		return err
	}
	now := s.now()
	data, err := json.Marshal(domain.NewCheckpoint(id, state, metadata, now))
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score(now), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint. A missing or expired key reports false.
func (s *Store) Load(ctx context.Context, id string) (*domain.Checkpoint, bool, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get from redis: %w", err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(val, &cp); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, true, nil
}

// List returns summaries newest first. Index entries whose key has expired are pruned.
func (s *Store) List(ctx context.Context, conversationID string) ([]domain.CheckpointSummary, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(ids) == 0 {
		return []domain.CheckpointSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	var stale []any
	sums := make([]domain.CheckpointSummary, 0, len(ids))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var cp domain.Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			s.logger.Debug("skipping unreadable checkpoint", "checkpoint_id", ids[i], "error", err)
			continue
		}
		if conversationID != "" && cp.ConversationID() != conversationID {
			continue
		}
		sums = append(sums, cp.Summary(ids[i]))
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			s.logger.Warn("failed to prune expired checkpoints", "error", err)
		}
	}

	domain.SortSummaries(sums)
	return sums, nil
}

// Rollback returns the stored state without modifying Redis.
func (s *Store) Rollback(ctx context.Context, id string) (*domain.State, bool, error) {
	cp, ok, err := s.Load(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cp.State, cp.State != nil, nil
}

// Delete removes the checkpoint and its index entry.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete from redis: %w", err)
	}
	return del.Val() > 0, nil
}

// Cleanup removes checkpoints indexed before now minus maxAge.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := score(s.now().Add(-maxAge))
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%f", cutoff),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint index: %w", err)
	}

	removed := 0
	for _, id := range ids {
		deleted, err := s.Delete(ctx, id)
		if err != nil {
			s.logger.Warn("failed to remove expired checkpoint", "checkpoint_id", id, "error", err)
			continue
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
