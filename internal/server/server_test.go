package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/runner"
	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

type staticStore struct {
	threads []checkpoint.ThreadMeta
}

func (s staticStore) ListThreads(context.Context) ([]checkpoint.ThreadMeta, error) {
	return s.threads, nil
}

func (s staticStore) LoadThread(context.Context, string) (checkpoint.Thread, error) {
	return checkpoint.Thread{}, checkpoint.ErrThreadNotFound
}

func (s staticStore) SaveThread(context.Context, checkpoint.Thread) error { return nil }

func (s staticStore) DeleteThread(context.Context, string) error { return checkpoint.ErrThreadNotFound }

func newTestServer(t *testing.T, gatherer prometheus.Gatherer) (*Server, *runner.Manager, *httptest.Server) {
	t.Helper()
	store := staticStore{threads: []checkpoint.ThreadMeta{{ID: "t1", Title: "fix tests"}}}
	mgr := runner.NewManager(runner.ManagerConfig{
		Session: runner.SessionConfig{
			Model:        "test-model",
			Tools:        engine.ToolRegistry{},
			Engine:       engine.DefaultConfig(),
			Checkpointer: store,
			Timeouts:     broker.DefaultTimeouts(),
			Workspace: workspace.Options{
				Root:    t.TempDir(),
				Sandbox: sandbox.Config{Mode: sandbox.ModeHost},
			},
			Logger: zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	})
	t.Cleanup(func() { _ = mgr.CloseAll() })

	srv := New(Config{Manager: mgr, Store: store, Gatherer: gatherer, Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, mgr, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestWebSocketListThreads(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"list_threads"}`)))

	ev := readEvent(t, conn)
	assert.Equal(t, "threads", ev["type"])
	threads := ev["threads"].([]any)
	require.Len(t, threads, 1)
	assert.Equal(t, "t1", threads[0].(map[string]any)["id"])
}

func TestWebSocketInvalidCommand(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "invalid_command", ev["kind"])
}

func TestDisconnectClosesSessions(t *testing.T) {
	srv, mgr, ts := newTestServer(t, nil)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start_session","session_id":"s1"}`)))
	ev := readEvent(t, conn)
	assert.Equal(t, "status", ev["type"])
	assert.Equal(t, "session_ready", ev["status"])
	assert.Equal(t, 1, srv.Clients())

	_, ok := mgr.Get("s1")
	require.True(t, ok)

	conn.Close()
	require.Eventually(t, func() bool {
		_, ok := mgr.Get("s1")
		return !ok && srv.Clients() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "stagehand_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	_, _, ts := newTestServer(t, reg)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "stagehand_test_total 1")
}

func TestMetricsDisabled(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenAndServeStopsOnContext(t *testing.T) {
	srv := New(Config{Addr: "127.0.0.1:0", Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
