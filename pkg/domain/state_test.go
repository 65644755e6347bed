package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_FirstFailureWins(t *testing.T) {
	s := NewState("c1")
	assert.False(t, s.Failed())

	s.Fail("first")
	s.Fail("second")

	assert.True(t, s.Failed())
	assert.Equal(t, "first", s.Error)
}

func TestState_CloneIsolatesCollections(t *testing.T) {
	s := NewState("c1")
	s.AddMessage(NewMessage(PerformativeInform, "a", "b", map[string]any{"text": "hi"}, "c1"))
	s.Metadata["k"] = "v"

	c := s.Clone()
	c.AddMessage(Message{})
	c.AddCheckpoint("cp")
	c.Metadata["k"] = "changed"

	assert.Len(t, s.Messages, 1)
	assert.Empty(t, s.CheckpointIDs)
	assert.Equal(t, "v", s.Metadata["k"])
}

func TestState_CloneCopiesNestedValues(t *testing.T) {
	s := NewState("c1")
	s.Metadata["nested"] = map[string]any{"list": []any{map[string]any{"k": "v"}}}
	msg := NewMessage(PerformativeInform, "a", "b", map[string]any{"text": "hi"}, "c1")
	msg.Metadata = map[string]any{"m": map[string]any{"x": 1}}
	s.AddMessage(msg)

	c := s.Clone()
	c.Metadata["nested"].(map[string]any)["list"].([]any)[0].(map[string]any)["k"] = "changed"
	c.Messages[0].Content.(map[string]any)["text"] = "changed"
	c.Messages[0].Metadata["m"].(map[string]any)["x"] = 2

	assert.Equal(t, "v", s.Metadata["nested"].(map[string]any)["list"].([]any)[0].(map[string]any)["k"])
	text, _ := s.Messages[0].Text()
	assert.Equal(t, "hi", text)
	assert.Equal(t, 1, s.Messages[0].Metadata["m"].(map[string]any)["x"])
}

func TestState_SnapshotJSON(t *testing.T) {
	t.Run("defaults absent collections", func(t *testing.T) {
		var s State
		require.NoError(t, json.Unmarshal([]byte(`{"conversation_id":"c1"}`), &s))
		assert.Equal(t, "c1", s.ConversationID)
		assert.NotNil(t, s.Messages)
		assert.NotNil(t, s.Metadata)
		assert.NotNil(t, s.CheckpointIDs)
		assert.Empty(t, s.CurrentStep)
		assert.Empty(t, s.Error)
	})

	t.Run("requires conversation id", func(t *testing.T) {
		var s State
		assert.Error(t, json.Unmarshal([]byte(`{"messages":[]}`), &s))
	})

	t.Run("uses snapshot keys", func(t *testing.T) {
		s := NewState("c1")
		s.AddCheckpoint("cp-1")
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Equal(t, []any{"cp-1"}, raw["checkpoints"])
		assert.NotContains(t, raw, "current_step")
		assert.NotContains(t, raw, "error")
	})

	t.Run("round trip", func(t *testing.T) {
		s := NewState("c1")
		s.AddMessage(NewMessage(PerformativeRequest, "user", "wayz", map[string]any{"text": "hello"}, "c1"))
		s.Metadata["count"] = float64(2)
		s.CurrentStep = "processing"
		s.Error = "boom"

		data, err := json.Marshal(s)
		require.NoError(t, err)
		var back State
		require.NoError(t, json.Unmarshal(data, &back))

		assert.Equal(t, s.ConversationID, back.ConversationID)
		assert.Equal(t, s.CurrentStep, back.CurrentStep)
		assert.Equal(t, s.Error, back.Error)
		assert.Equal(t, s.Metadata, back.Metadata)
		require.Len(t, back.Messages, 1)
		text, ok := back.Messages[0].Text()
		assert.True(t, ok)
		assert.Equal(t, "hello", text)
		assert.True(t, s.Messages[0].Timestamp.Equal(back.Messages[0].Timestamp))
	})
}

func TestMessage_CreateReply(t *testing.T) {
	orig := NewMessage(PerformativeRequest, "alice", "bob", "ping", "conv")
	orig.Protocol = "fipa-query"

	reply := orig.CreateReply(PerformativeAgree, "pong", "bob")

	assert.Equal(t, "bob", reply.Sender)
	assert.Equal(t, "alice", reply.Receiver)
	assert.Equal(t, "conv", reply.ConversationID)
	assert.Equal(t, orig.MessageID, reply.ReplyTo)
	assert.Equal(t, "fipa-query", reply.Protocol)
	assert.Equal(t, DefaultLanguage, reply.Language)
	assert.NotEqual(t, orig.MessageID, reply.MessageID)
}

func TestMessage_RejectsUnknownPerformative(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"performative":"shout","sender":"a"}`), &m)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"performative":"refuse","timestamp":"2024-01-02T03:04:05Z"}`), &m))
	assert.Equal(t, PerformativeRefuse, m.Performative)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), m.Timestamp)
}

func TestSortSummaries(t *testing.T) {
	sums := []CheckpointSummary{
		{CheckpointID: "old", Timestamp: "2024-01-01T00:00:00Z"},
		{CheckpointID: "none"},
		{CheckpointID: "new", Timestamp: "2024-03-01T00:00:00.5Z"},
		{CheckpointID: "garbage", Timestamp: "yesterday"},
		{CheckpointID: "mid", Timestamp: "2024-02-01T00:00:00Z"},
	}

	SortSummaries(sums)

	ids := make([]string, len(sums))
	for i, s := range sums {
		ids[i] = s.CheckpointID
	}
	assert.Equal(t, []string{"new", "mid", "old", "garbage", "none"}, ids)
}

func TestNewCheckpoint_GeneratedFieldsWin(t *testing.T) {
	caller := map[string]any{"checkpoint_id": "spoofed", "note": "x"}
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("X", 3600))

	cp := NewCheckpoint("real", NewState("c"), caller, now)

	assert.Equal(t, "real", cp.ID())
	assert.Equal(t, "2024-05-06T06:08:09Z", cp.Timestamp())
	assert.Equal(t, "x", cp.Metadata["note"])
	assert.Equal(t, "spoofed", caller["checkpoint_id"], "caller map must not be mutated")
}

func TestValidateCheckpointID(t *testing.T) {
	for _, id := range []string{"conv_1a2b3c4d", "a.b", "x-y"} {
		assert.NoError(t, ValidateCheckpointID(id), id)
	}
	for _, id := range []string{"", ".", "..", "../etc/passwd", `a\b`, "a/b"} {
		assert.ErrorIs(t, ValidateCheckpointID(id), ErrInvalidCheckpointID, id)
	}
}
