package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/wayz/internal/logging"
	"github.com/aretw0/wayz/pkg/domain"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// StreamManager fans out conversation events to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Event]struct{} // ConversationID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for conversationID. The returned
// func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(conversationID string) (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, 16)
	if _, ok := sm.subscribers[conversationID]; !ok {
		sm.subscribers[conversationID] = make(map[chan<- Event]struct{})
	}
	sm.subscribers[conversationID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[conversationID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, conversationID)
				}
			}
		})
	}
}

// Broadcast sends an event to every subscriber of conversationID.
// Slow subscribers miss events rather than block the run.
func (sm *StreamManager) Broadcast(conversationID string, ev Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[conversationID] {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping event", "conversation_id", conversationID, "event", ev.Name)
		}
	}
}

// BroadcastJSON marshals v as the event data.
func (sm *StreamManager) BroadcastJSON(conversationID, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		sm.logger.Error("SSE: Failed to encode event", "event", name, "error", err)
		return
	}
	sm.Broadcast(conversationID, Event{Name: name, Data: string(data)})
}

type nodePayload struct {
	Node     string  `json:"node"`
	Attempt  int     `json:"attempt"`
	Outcome  string  `json:"outcome,omitempty"`
	Duration float64 `json:"duration_seconds,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Hooks streams node completions, retries and saved checkpoints of each
// conversation to its subscribers. Register them on the Supervisor.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	node := func(name string) func(context.Context, *domain.NodeEvent) {
		return func(_ context.Context, e *domain.NodeEvent) {
			p := nodePayload{Node: e.Node, Attempt: e.Attempt, Outcome: e.Outcome, Duration: e.Duration.Seconds()}
			if e.Err != nil {
				p.Error = e.Err.Error()
			}
			sm.BroadcastJSON(e.ConversationID, name, p)
		}
	}
	return domain.LifecycleHooks{
		OnNodeRetry: node("node_retry"),
		OnNodeLeave: node("node"),
		OnCheckpointSaved: func(_ context.Context, e *domain.CheckpointEvent) {
			sm.BroadcastJSON(e.ConversationID, "checkpoint", map[string]string{"checkpoint_id": e.CheckpointID})
		},
	}
}
