package domain

import (
	"reflect"
)

// StateDiff represents the changes between two snapshots of the same conversation.
type StateDiff struct {
	// ConversationID is always present to identify the target.
	ConversationID string `json:"conversation_id"`

	CurrentStep *string `json:"current_step,omitempty"`
	Error       *string `json:"error,omitempty"`

	// Metadata contains only changed, added or deleted keys.
	// Deleted keys are present with a nil value.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Messages and Checkpoints hold items appended after the old snapshot.
	Messages    []Message `json:"messages,omitempty"`
	Checkpoints []string  `json:"checkpoints,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, the diff represents the entire newState.
// It returns nil when nothing changed.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{ConversationID: newState.ConversationID}

	if oldState == nil || oldState.CurrentStep != newState.CurrentStep {
		step := newState.CurrentStep
		diff.CurrentStep = &step
	}
	if oldState == nil || oldState.Error != newState.Error {
		errMsg := newState.Error
		diff.Error = &errMsg
	}

	diff.Metadata = diffMetadata(oldState, newState)

	var oldMessages []Message
	var oldCheckpoints []string
	if oldState != nil {
		oldMessages = oldState.Messages
		oldCheckpoints = oldState.CheckpointIDs
	}
	diff.Messages = appended(oldMessages, newState.Messages)
	diff.Checkpoints = appended(oldCheckpoints, newState.CheckpointIDs)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffMetadata(old *State, new *State) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Metadata {
			delta[k] = v
		}
	} else {
		for k, newVal := range new.Metadata {
			oldVal, exists := old.Metadata[k]
			if !exists || !reflect.DeepEqual(oldVal, newVal) {
				delta[k] = newVal
			}
		}
		for k := range old.Metadata {
			if _, exists := new.Metadata[k]; !exists {
				delta[k] = nil
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// appended assumes append-only collections; a shrunk or equal-length
// collection yields nothing.
func appended[T any](old, new []T) []T {
	if len(new) <= len(old) {
		return nil
	}
	return new[len(old):]
}

// IsEmpty checks if the diff contains any changes.
func (d *StateDiff) IsEmpty() bool {
	return d.CurrentStep == nil &&
		d.Error == nil &&
		len(d.Metadata) == 0 &&
		len(d.Messages) == 0 &&
		len(d.Checkpoints) == 0
}
