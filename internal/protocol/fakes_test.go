package protocol

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/runner"
	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
	"github.com/ChamsBouzaiene/stagehand/internal/tools/interaction"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []engine.LLMResponse
}

func (s *scriptedLLM) push(rs ...engine.LLMResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, rs...)
}

func (s *scriptedLLM) Chat(ctx context.Context, _ string, _ []engine.ChatMessage, _ []engine.ToolSchema, _ engine.ChatOptions) (engine.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return engine.LLMResponse{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return engine.LLMResponse{}, errors.New("script exhausted")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *scriptedLLM) Stream(context.Context, string, []engine.ChatMessage, []engine.ToolSchema, engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	deltaCh := make(chan engine.StreamEvent)
	errCh := make(chan error, 1)
	close(deltaCh)
	errCh <- errors.New("streaming not scripted")
	close(errCh)
	return deltaCh, errCh
}

func turn(calls ...engine.ToolCall) engine.LLMResponse {
	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, ToolCalls: calls},
		ToolCalls: calls,
		Usage:     engine.Usage{Prompt: 10, Completion: 5, Total: 15},
	}
}

func tc(id, name string, args map[string]any) engine.ToolCall {
	return engine.ToolCall{ID: id, Name: name, Args: args}
}

func simpleTask() []engine.LLMResponse {
	return []engine.LLMResponse{
		turn(tc("b1", engine.ToolBuildStages, map[string]any{"stage_names": []any{"Answer"}})),
		turn(tc("e1", engine.ToolEndCurrentStage, map[string]any{})),
		turn(tc("f1", engine.ToolFinishTask, map[string]any{"reason": "answered"})),
	}
}

type memStore struct {
	mu      sync.Mutex
	threads map[string]checkpoint.Thread
}

func newMemStore() *memStore {
	return &memStore{threads: make(map[string]checkpoint.Thread)}
}

func (m *memStore) ListThreads(context.Context) ([]checkpoint.ThreadMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]checkpoint.ThreadMeta, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, checkpoint.ThreadMeta{ID: t.ID, Title: t.Title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) LoadThread(_ context.Context, id string) (checkpoint.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return checkpoint.Thread{}, checkpoint.ErrThreadNotFound
	}
	return t, nil
}

func (m *memStore) SaveThread(_ context.Context, t checkpoint.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[t.ID] = t
	return nil
}

func (m *memStore) DeleteThread(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[id]; !ok {
		return checkpoint.ErrThreadNotFound
	}
	delete(m.threads, id)
	return nil
}

func (m *memStore) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.threads[id]
	return ok
}

func newTestManager(t *testing.T, llm engine.LLMClient, store checkpoint.Store) *runner.Manager {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Stream = false
	cfg.Retry.MaxRetries = 0

	reg := engine.ToolRegistry{}
	for _, tool := range engine.PlanTools() {
		reg.Register(tool)
	}
	reg.Register(interaction.NewAskUserTool())

	mgr := runner.NewManager(runner.ManagerConfig{
		Session: runner.SessionConfig{
			LLM:          llm,
			Model:        "test-model",
			Tools:        reg,
			Engine:       cfg,
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
	return mgr
}
