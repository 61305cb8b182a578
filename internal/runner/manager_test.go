package runner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
)

func TestManagerResumesThread(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.SaveThread(context.Background(), checkpoint.Thread{
		ID: "s9",
		Messages: []engine.ChatMessage{
			{Role: engine.RoleUser, Content: "hi"},
			{Role: engine.RoleAssistant, Content: "hello"},
		},
		Stats: engine.Stats{InputTokens: 7},
	}))

	m := NewManager(ManagerConfig{Session: testSessionConfig(t, &scriptedLLM{}, store), Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.CloseAll() })

	s, err := m.Open(context.Background(), "s9")
	require.NoError(t, err)
	assert.Equal(t, "s9", s.ThreadID())
	assert.Len(t, s.History(), 2)
	assert.Equal(t, 7, s.Stats().InputTokens)

	again, err := m.Open(context.Background(), "s9")
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestManagerOpenNewSession(t *testing.T) {
	m := NewManager(ManagerConfig{Session: testSessionConfig(t, &scriptedLLM{}, newMemStore()), Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.CloseAll() })

	s, err := m.Open(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Empty(t, s.History())
	assert.Equal(t, []string{s.ID()}, m.Sessions())

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestManagerCloseAndReset(t *testing.T) {
	m := NewManager(ManagerConfig{Session: testSessionConfig(t, &scriptedLLM{}, newMemStore()), Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.CloseAll() })

	s, err := m.Open(context.Background(), "a")
	require.NoError(t, err)
	before := s.ThreadID()
	require.NoError(t, m.Reset("a"))
	assert.NotEqual(t, before, s.ThreadID())

	require.NoError(t, m.Close("a"))
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.ErrorIs(t, m.Close("a"), ErrSessionNotFound)
	assert.ErrorIs(t, m.Reset("a"), ErrSessionNotFound)
}

func TestManagerCloseAll(t *testing.T) {
	m := NewManager(ManagerConfig{Session: testSessionConfig(t, &scriptedLLM{}, newMemStore()), Logger: zerolog.Nop()})

	a, err := m.Open(context.Background(), "a")
	require.NoError(t, err)
	_, err = m.Open(context.Background(), "b")
	require.NoError(t, err)

	require.NoError(t, m.CloseAll())
	assert.Empty(t, m.Sessions())
	_, err = a.Submit("late")
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = m.Open(context.Background(), "c")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.NoError(t, m.CloseAll())
}

func TestManagerReapsIdleSessions(t *testing.T) {
	m := NewManager(ManagerConfig{
		Session: testSessionConfig(t, &scriptedLLM{}, newMemStore()),
		IdleTTL: 30 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(func() { _ = m.CloseAll() })

	_, err := m.Open(context.Background(), "idle")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := m.Get("idle")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerKeepsRunningSessions(t *testing.T) {
	llm := &scriptedLLM{}
	llm.push(askTurns("Wait?")...)
	rr := newRecordingRenderer()
	cfg := testSessionConfig(t, llm, newMemStore())
	cfg.Renderers = append(cfg.Renderers, rr)
	m := NewManager(ManagerConfig{Session: cfg, IdleTTL: 20 * time.Millisecond, Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.CloseAll() })

	s, err := m.Open(context.Background(), "busy")
	require.NoError(t, err)
	ch, err := s.Submit("work")
	require.NoError(t, err)
	awaitDecision(t, rr)

	time.Sleep(100 * time.Millisecond)
	_, ok := m.Get("busy")
	assert.True(t, ok)

	s.Cancel()
	awaitResult(t, ch)
}

func TestManagerEngineConfigAppliesToNewSessions(t *testing.T) {
	m := NewManager(ManagerConfig{Session: testSessionConfig(t, &scriptedLLM{}, newMemStore()), Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.CloseAll() })

	before, err := m.Open(context.Background(), "before")
	require.NoError(t, err)

	cfg := testEngineConfig()
	cfg.RecursionLimit = 7
	m.SetEngineConfig(cfg)

	after, err := m.Open(context.Background(), "after")
	require.NoError(t, err)
	assert.Equal(t, 7, after.cfg.Engine.RecursionLimit)
	assert.NotEqual(t, 7, before.cfg.Engine.RecursionLimit)
}

// gatedStore holds LoadThread for one id until released.
type gatedStore struct {
	*memStore
	slowID  string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) LoadThread(ctx context.Context, id string) (checkpoint.Thread, error) {
	if id == g.slowID {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.memStore.LoadThread(ctx, id)
}

func TestManagerOpenDoesNotBlockOtherSessions(t *testing.T) {
	store := &gatedStore{memStore: newMemStore(), slowID: "slow", entered: make(chan struct{}, 2), release: make(chan struct{})}
	m := NewManager(ManagerConfig{Session: testSessionConfig(t, &scriptedLLM{}, store), Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.CloseAll() })

	fast, err := m.Open(context.Background(), "fast")
	require.NoError(t, err)

	type opened struct {
		s   *Session
		err error
	}
	results := make(chan opened, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := m.Open(context.Background(), "slow")
			results <- opened{s, err}
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-store.entered:
		case <-time.After(waitFor):
			t.Fatal("slow open never reached the store")
		}
	}

	got, ok := m.Get("fast")
	require.True(t, ok)
	assert.Same(t, fast, got)
	other, err := m.Open(context.Background(), "other")
	require.NoError(t, err)
	assert.NotNil(t, other)

	close(store.release)
	var first, second opened
	for i, dst := range []*opened{&first, &second} {
		select {
		case *dst = <-results:
		case <-time.After(waitFor):
			t.Fatalf("open %d did not return", i)
		}
	}
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Same(t, first.s, second.s)
	assert.Len(t, m.Sessions(), 3)
}
