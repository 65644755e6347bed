package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Reserved checkpoint metadata keys. Stores always set these, overriding caller values.
const (
	MetaCheckpointID = "checkpoint_id"
	MetaTimestamp    = "timestamp"
)

// TimestampLayout is the UTC ISO-8601 layout used for checkpoint timestamps.
const TimestampLayout = time.RFC3339Nano

// Checkpoint is the persisted unit: a state snapshot plus metadata.
type Checkpoint struct {
	State    *State         `json:"state"`
	Metadata map[string]any `json:"metadata"`
}

// NewCheckpoint merges caller metadata with the generated id and timestamp fields.
// The caller's map is not modified.
func NewCheckpoint(id string, state *State, metadata map[string]any, now time.Time) *Checkpoint {
	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetaTimestamp] = now.UTC().Format(TimestampLayout)
	meta[MetaCheckpointID] = id
	return &Checkpoint{State: state, Metadata: meta}
}

// ID returns the stored checkpoint id.
func (c *Checkpoint) ID() string {
	id, _ := c.Metadata[MetaCheckpointID].(string)
	return id
}

// Timestamp returns the raw stored timestamp, or "" when absent.
func (c *Checkpoint) Timestamp() string {
	ts, _ := c.Metadata[MetaTimestamp].(string)
	return ts
}

// ConversationID returns the conversation of the stored state, or "".
func (c *Checkpoint) ConversationID() string {
	if c.State == nil {
		return ""
	}
	return c.State.ConversationID
}

// Summary describes the checkpoint for listings. fallbackID is used when the
// metadata carries no id (e.g. a hand-edited file).
func (c *Checkpoint) Summary(fallbackID string) CheckpointSummary {
	id := c.ID()
	if id == "" {
		id = fallbackID
	}
	sum := CheckpointSummary{
		CheckpointID:   id,
		Timestamp:      c.Timestamp(),
		ConversationID: c.ConversationID(),
		Metadata:       c.Metadata,
	}
	if c.State != nil {
		sum.CurrentStep = c.State.CurrentStep
	}
	return sum
}

// CheckpointSummary is a listing entry.
type CheckpointSummary struct {
	CheckpointID   string         `json:"checkpoint_id"`
	Timestamp      string         `json:"timestamp,omitempty"`
	ConversationID string         `json:"conversation_id"`
	CurrentStep    string         `json:"current_step,omitempty"`
	Metadata       map[string]any `json:"metadata"`
}

// Time parses the summary timestamp.
func (s CheckpointSummary) Time() (time.Time, bool) {
	if s.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(TimestampLayout, s.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SortSummaries orders summaries newest first. Entries without a parseable
// timestamp go last, ordered by id for determinism.
func SortSummaries(sums []CheckpointSummary) {
	sort.SliceStable(sums, func(i, j int) bool {
		ti, okI := sums[i].Time()
		tj, okJ := sums[j].Time()
		switch {
		case okI && okJ:
			if ti.Equal(tj) {
				return sums[i].CheckpointID < sums[j].CheckpointID
			}
			return ti.After(tj)
		case okI != okJ:
			return okI
		default:
			return sums[i].CheckpointID < sums[j].CheckpointID
		}
	})
}

// ValidateCheckpointID rejects ids that are empty or could escape a storage namespace.
func ValidateCheckpointID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidCheckpointID, id)
	}
	return nil
}
