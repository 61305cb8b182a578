package runner

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
	"github.com/ChamsBouzaiene/stagehand/internal/events"
	"github.com/ChamsBouzaiene/stagehand/internal/sandbox"
	"github.com/ChamsBouzaiene/stagehand/internal/tools/interaction"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

// scriptedLLM replays responses in order and records the messages it saw.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []engine.LLMResponse
	seen      [][]engine.ChatMessage
	panicMsg  string
}

func (s *scriptedLLM) push(rs ...engine.LLMResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, rs...)
}

func (s *scriptedLLM) Chat(ctx context.Context, _ string, msgs []engine.ChatMessage, _ []engine.ToolSchema, _ engine.ChatOptions) (engine.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return engine.LLMResponse{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.seen = append(s.seen, append([]engine.ChatMessage(nil), msgs...))
	if len(s.responses) == 0 {
		return engine.LLMResponse{}, errors.New("script exhausted")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, model string, msgs []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	deltaCh := make(chan engine.StreamEvent)
	errCh := make(chan error, 1)
	go func() {
		defer close(deltaCh)
		defer close(errCh)
		errCh <- errors.New("streaming not scripted")
	}()
	return deltaCh, errCh
}

func (s *scriptedLLM) lastSeen() []engine.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		return nil
	}
	return s.seen[len(s.seen)-1]
}

// blockingLLM never answers; calls return once their context is cancelled.
type blockingLLM struct{}

func (blockingLLM) Chat(ctx context.Context, _ string, _ []engine.ChatMessage, _ []engine.ToolSchema, _ engine.ChatOptions) (engine.LLMResponse, error) {
	<-ctx.Done()
	return engine.LLMResponse{}, ctx.Err()
}

func (blockingLLM) Stream(ctx context.Context, _ string, _ []engine.ChatMessage, _ []engine.ToolSchema, _ engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	deltaCh := make(chan engine.StreamEvent)
	errCh := make(chan error, 1)
	go func() {
		defer close(deltaCh)
		defer close(errCh)
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
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

// simpleTask plans one stage, ends it and finishes.
func simpleTask() []engine.LLMResponse {
	return []engine.LLMResponse{
		turn(tc("b1", engine.ToolBuildStages, map[string]any{"stage_names": []any{"Answer"}})),
		turn(tc("e1", engine.ToolEndCurrentStage, map[string]any{})),
		turn(tc("f1", engine.ToolFinishTask, map[string]any{"reason": "answered"})),
	}
}

// memStore is an in-memory checkpointer.
type memStore struct {
	mu      sync.Mutex
	threads map[string]checkpoint.Thread
	saves   int
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
	t.Messages = append([]engine.ChatMessage(nil), t.Messages...)
	m.threads[t.ID] = t
	m.saves++
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

func (m *memStore) get(id string) (checkpoint.Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	return t, ok
}

// recordingRenderer keeps the lifecycle kinds it saw and signals decisions.
type recordingRenderer struct {
	events.NopRenderer

	mu        sync.Mutex
	kinds     []events.Kind
	fatal     []error
	finished  []events.TaskFinished
	decisions chan events.InteractionRequest
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{decisions: make(chan events.InteractionRequest, 4)}
}

func (r *recordingRenderer) add(k events.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, k)
}

func (r *recordingRenderer) OnTaskStarted(context.Context, events.TaskStarted) {
	r.add(events.KindTaskStarted)
}

func (r *recordingRenderer) OnTaskFinished(_ context.Context, p events.TaskFinished) {
	r.add(events.KindTaskFinished)
	r.mu.Lock()
	r.finished = append(r.finished, p)
	r.mu.Unlock()
}

func (r *recordingRenderer) OnFatalError(_ context.Context, _, _ string, err error) {
	r.add(events.KindFatalError)
	r.mu.Lock()
	r.fatal = append(r.fatal, err)
	r.mu.Unlock()
}

func (r *recordingRenderer) OnStagesBuilt(context.Context, events.StagesBuilt) {
	r.add(events.KindStagesBuilt)
}

func (r *recordingRenderer) OnRequestUserDecision(_ context.Context, req events.InteractionRequest) {
	r.add(events.KindDecisionRequested)
	r.decisions <- req
}

func (r *recordingRenderer) snapshot() ([]events.Kind, []error, []events.TaskFinished) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Kind(nil), r.kinds...), append([]error(nil), r.fatal...), append([]events.TaskFinished(nil), r.finished...)
}

func testEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Stream = false
	cfg.Retry.MaxRetries = 0
	return cfg
}

func testRegistry() engine.ToolRegistry {
	reg := engine.ToolRegistry{}
	for _, t := range engine.PlanTools() {
		reg.Register(t)
	}
	reg.Register(interaction.NewAskUserTool())
	return reg
}

func testSessionConfig(t *testing.T, llm engine.LLMClient, store checkpoint.Store) SessionConfig {
	t.Helper()
	return SessionConfig{
		LLM:          llm,
		Model:        "test-model",
		Tools:        testRegistry(),
		Engine:       testEngineConfig(),
		Checkpointer: store,
		Timeouts:     broker.DefaultTimeouts(),
		Workspace: workspace.Options{
			Root:    t.TempDir(),
			Sandbox: sandbox.Config{Mode: sandbox.ModeHost},
		},
		Logger: zerolog.Nop(),
	}
}
