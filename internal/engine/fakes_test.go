package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
)

type llmRequest struct {
	messages []ChatMessage
	schemas  []ToolSchema
	opts     ChatOptions
}

func (r llmRequest) toolNames() []string {
	names := make([]string, len(r.schemas))
	for i, s := range r.schemas {
		names[i] = s.Name
	}
	return names
}

// scriptedLLM replays responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []LLMResponse
	fallback  *LLMResponse
	requests  []llmRequest
}

func (s *scriptedLLM) next(messages []ChatMessage, schemas []ToolSchema, opts ChatOptions) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, llmRequest{
		messages: append([]ChatMessage(nil), messages...),
		schemas:  append([]ToolSchema(nil), schemas...),
		opts:     opts,
	})
	if len(s.responses) == 0 {
		if s.fallback != nil {
			return *s.fallback, nil
		}
		return LLMResponse{}, errors.New("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) Chat(ctx context.Context, _ string, messages []ChatMessage, schemas []ToolSchema, opts ChatOptions) (LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return LLMResponse{}, err
	}
	return s.next(messages, schemas, opts)
}

func (s *scriptedLLM) Stream(ctx context.Context, _ string, messages []ChatMessage, schemas []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error) {
	deltaCh := make(chan StreamEvent, 64)
	errCh := make(chan error, 1)
	resp, err := s.next(messages, schemas, opts)
	go func() {
		defer close(deltaCh)
		defer close(errCh)
		if err != nil {
			errCh <- err
			return
		}
		// Deliver text in small pieces so tags get split across deltas.
		text := resp.Assistant.Content
		for len(text) > 0 {
			n := min(3, len(text))
			deltaCh <- StreamEvent{Type: StreamTextDelta, Text: text[:n]}
			text = text[n:]
		}
		for _, c := range resp.ToolCalls {
			deltaCh <- StreamEvent{Type: StreamToolCall, ToolCall: c}
		}
		deltaCh <- StreamEvent{Type: StreamUsage, Usage: resp.Usage}
	}()
	return deltaCh, errCh
}

func (s *scriptedLLM) recorded() []llmRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llmRequest(nil), s.requests...)
}

func textTurn(text string) LLMResponse {
	return LLMResponse{
		Assistant: ChatMessage{Role: RoleAssistant, Content: text},
		Usage:     Usage{Prompt: 10, Completion: 5, Total: 15},
	}
}

func callTurn(calls ...ToolCall) LLMResponse {
	return LLMResponse{
		Assistant: ChatMessage{Role: RoleAssistant, ToolCalls: calls},
		ToolCalls: calls,
		Usage:     Usage{Prompt: 10, Completion: 5, Total: 15},
	}
}

func call(id, name string, args map[string]any) ToolCall {
	return ToolCall{ID: id, Name: name, Args: args}
}

// recordingEmitter keeps every event in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Dispatch(_ context.Context, ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) kinds() []events.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Kind, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Kind
	}
	return out
}

func (e *recordingEmitter) ofKind(k events.Kind) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, ev := range e.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func staticTool(name, envelope string) Tool {
	return Tool{
		Name:       name,
		SchemaJSON: `{"type":"object"}`,
		Fn: func(context.Context, map[string]any) (string, error) {
			return envelope, nil
		},
	}
}

func testRegistry(extra ...Tool) ToolRegistry {
	reg := ToolRegistry{}
	for _, t := range PlanTools() {
		reg.Register(t)
	}
	reg.Register(staticTool("list_files", toolresponse.OK("3 files", map[string]any{"files": []string{"a", "b", "c"}})))
	reg.Register(staticTool("flaky", toolresponse.Fail("service unavailable")))
	for _, t := range extra {
		reg.Register(t)
	}
	return reg
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Stream = false
	cfg.Retry.MaxRetries = 0
	return cfg
}
