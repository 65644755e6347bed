package domain

import (
	"encoding/json"
	"errors"
)

// State is the mutable record threaded through a single run.
// Nodes receive it, mutate it, and hand it back to the runner.
type State struct {
	// ConversationID identifies the run. It must not change after creation.
	ConversationID string `json:"conversation_id"`

	// Messages is the ordered message history. Append-only during a run.
	Messages []Message `json:"messages"`

	// Metadata is free-form, node-owned data.
	Metadata map[string]any `json:"metadata"`

	// CheckpointIDs lists checkpoints taken for this conversation, oldest first.
	CheckpointIDs []string `json:"checkpoints"`

	// CurrentStep is the name of the node being (or last) executed.
	CurrentStep string `json:"current_step,omitempty"`

	// Error holds the first failure of the run. Once set, no further node executes.
	Error string `json:"error,omitempty"`
}

// NewState creates an empty state for a conversation.
func NewState(conversationID string) *State {
	return &State{
		ConversationID: conversationID,
		Messages:       []Message{},
		Metadata:       make(map[string]any),
		CheckpointIDs:  []string{},
	}
}

// AddMessage appends a message to the history.
func (s *State) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// AddCheckpoint records a checkpoint id.
func (s *State) AddCheckpoint(id string) {
	s.CheckpointIDs = append(s.CheckpointIDs, id)
}

// Fail records msg as the run error unless one is already set.
// The first failure wins.
func (s *State) Fail(msg string) {
	if s.Error == "" {
		s.Error = msg
	}
}

// Failed reports whether the run has recorded an error.
func (s *State) Failed() bool {
	return s.Error != ""
}

// Clone returns a copy that shares no mutable JSON-shaped data with s.
// Metadata and message contents are deep-copied; values of other types are shared.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, msg := range s.Messages {
		msg.Content = CopyValue(msg.Content)
		msg.Metadata = CopyMap(msg.Metadata)
		out.Messages[i] = msg
	}
	out.CheckpointIDs = append([]string(nil), s.CheckpointIDs...)
	if out.CheckpointIDs == nil {
		out.CheckpointIDs = []string{}
	}
	out.Metadata = CopyMap(s.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return &out
}

var errMissingConversationID = errors.New("state: conversation_id is required")

// UnmarshalJSON decodes a state snapshot, defaulting absent collections to empty.
func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	var raw struct {
		plain
		ConversationID *string `json:"conversation_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ConversationID == nil {
		return errMissingConversationID
	}
	*s = State(raw.plain)
	s.ConversationID = *raw.ConversationID
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	if s.CheckpointIDs == nil {
		s.CheckpointIDs = []string{}
	}
	return nil
}
