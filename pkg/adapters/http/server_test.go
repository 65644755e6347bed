package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/pkg/adapters/memory"
	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/policy"
	"github.com/aretw0/wayz/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupervisor(t *testing.T, enforcer ports.PolicyEnforcer, opts ...wayz.Option) *wayz.Supervisor {
	t.Helper()
	sup, err := wayz.New(enforcer, memory.NewStore(), opts...)
	require.NoError(t, err)
	return sup
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndInfo(t *testing.T) {
	h := NewHandler(newSupervisor(t, policy.DenyAll{}))

	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", "")
	info := decode[map[string]string](t, w)
	assert.Equal(t, "wayz-http", info["app"])
	assert.Equal(t, wayz.Version, info["version"])
}

func TestRunConversation(t *testing.T) {
	h := NewHandler(newSupervisor(t, policy.AllowAll{}))

	t.Run("default run checkpoints", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/conversations/c1/run", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		state := decode[domain.State](t, w)
		assert.Equal(t, "c1", state.ConversationID)
		assert.Len(t, state.Messages, 3)
		assert.Len(t, state.CheckpointIDs, 1)
	})

	t.Run("options", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/conversations/c2/run", `{"auto_checkpoint":false,"metadata":{"user":"u1"}}`)
		require.Equal(t, http.StatusOK, w.Code)
		state := decode[domain.State](t, w)
		assert.Empty(t, state.CheckpointIDs)
		assert.Equal(t, "u1", state.Metadata["user"])
	})

	t.Run("bad body", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/conversations/c3/run", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRunConversation_Denied(t *testing.T) {
	h := NewHandler(newSupervisor(t, policy.DenyAll{}))

	w := do(t, h, http.MethodPost, "/conversations/c1/run", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	state := decode[domain.State](t, w)
	assert.Equal(t, wayz.DeniedMessage, state.Error)
	assert.Empty(t, state.Messages)
}

func TestRunConversation_PolicyUnavailable(t *testing.T) {
	broken := policy.EnforcerFunc(func(context.Context, string, string, map[string]any) (bool, error) {
		return false, domain.ErrPolicyUnavailable
	})
	h := NewHandler(newSupervisor(t, broken))

	w := do(t, h, http.MethodPost, "/conversations/c1/run", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "policy service unavailable")
}

func TestCheckpointRoutes(t *testing.T) {
	sup := newSupervisor(t, policy.AllowAll{})
	h := NewHandler(sup)
	ctx := context.Background()

	a, err := sup.RunConversation(ctx, "alpha")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	b, err := sup.RunConversation(ctx, "beta")
	require.NoError(t, err)
	idA, idB := a.CheckpointIDs[0], b.CheckpointIDs[0]

	t.Run("list", func(t *testing.T) {
		sums := decode[[]domain.CheckpointSummary](t, do(t, h, http.MethodGet, "/checkpoints", ""))
		require.Len(t, sums, 2)
		assert.Equal(t, idB, sums[0].CheckpointID)

		sums = decode[[]domain.CheckpointSummary](t, do(t, h, http.MethodGet, "/checkpoints?conversation_id=alpha", ""))
		require.Len(t, sums, 1)
		assert.Equal(t, idA, sums[0].CheckpointID)

		w := do(t, h, http.MethodGet, "/checkpoints?conversation_id=nobody", "")
		assert.Equal(t, "[]\n", w.Body.String())
	})

	t.Run("get", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/checkpoints/"+idA, "")
		require.Equal(t, http.StatusOK, w.Code)
		cp := decode[domain.Checkpoint](t, w)
		assert.Equal(t, idA, cp.ID())
		assert.EqualValues(t, 3, cp.Metadata["message_count"])

		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/checkpoints/missing", "").Code)
	})

	t.Run("rollback", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/checkpoints/"+idA+"/rollback", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alpha", decode[domain.State](t, w).ConversationID)

		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/checkpoints/missing/rollback", "").Code)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/checkpoints/"+idA, "").Code)
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/checkpoints/"+idA, "").Code)
	})
}

type failingSupervisor struct{ Supervisor }

func (failingSupervisor) ListCheckpoints(context.Context, string) ([]domain.CheckpointSummary, error) {
	return nil, errors.New("disk on fire")
}

func (failingSupervisor) LoadCheckpoint(_ context.Context, id string) (*domain.Checkpoint, bool, error) {
	return nil, false, domain.ValidateCheckpointID(id)
}

func TestCheckpointRoutes_Errors(t *testing.T) {
	h := NewHandler(failingSupervisor{})

	w := do(t, h, http.MethodGet, "/checkpoints", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "disk on fire", decode[map[string]string](t, w)["error"])

	w = do(t, h, http.MethodGet, "/checkpoints/..", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "wayz_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := NewHandler(newSupervisor(t, policy.DenyAll{}), WithGatherer(reg))
	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wayz_test_total 1")

	h = NewHandler(newSupervisor(t, policy.DenyAll{}))
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewHandler(newSupervisor(t, policy.DenyAll{}))
	w := do(t, h, http.MethodOptions, "/checkpoints", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents(t *testing.T) {
	streams := NewStreamManager(nil)
	sup := newSupervisor(t, policy.AllowAll{}, wayz.WithHooks(streams.Hooks()))
	srv := httptest.NewServer(NewHandler(sup, WithStreams(streams)))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/conversations/c1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan())
		return lines.Text()
	}
	require.Equal(t, "event: ping", next())

	go func() {
		r, err := http.Post(srv.URL+"/conversations/c1/run", "application/json", nil)
		if err == nil {
			r.Body.Close()
		}
	}()

	var events []string
	for len(events) < 5 {
		line := next()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"node", "node", "node", "checkpoint", "state"}, events)
}

func TestStreamManager_DropsForSlowSubscriber(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("c1")

	for i := 0; i < 20; i++ {
		sm.Broadcast("c1", Event{Name: "tick"})
	}
	assert.Len(t, ch, cap(ch))

	cancel()
	cancel()
	sm.Broadcast("c1", Event{Name: "after"})

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 16, n, "buffered events survive, later ones never arrive")
}
