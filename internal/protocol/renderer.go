package protocol

import (
	"context"
	"sync"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
)

// maxToolOutput bounds the tool output carried by tool end events.
const maxToolOutput = 4000

// Renderer turns lifecycle callbacks into protocol events for one session.
type Renderer struct {
	SessionID string
	Emit      func(Event)

	mu    sync.Mutex
	total int
}

var _ events.Renderer = (*Renderer)(nil)

// NewRenderer returns a renderer that forwards to emit.
func NewRenderer(sessionID string, emit func(Event)) *Renderer {
	return &Renderer{SessionID: sessionID, Emit: emit}
}

func (r *Renderer) setTotal(n int) {
	r.mu.Lock()
	r.total = n
	r.mu.Unlock()
}

func (r *Renderer) currentTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *Renderer) OnTaskStarted(_ context.Context, p events.TaskStarted) {
	r.Emit(NewTaskStartedEvent(r.SessionID, p.ThreadID, p.Task))
}

func (r *Renderer) OnTaskFinished(_ context.Context, p events.TaskFinished) {
	r.Emit(NewTaskFinishedEvent(r.SessionID, p.ThreadID, string(p.Outcome), p.Error,
		p.TaskCompleted, p.InputTokens, p.OutputTokens, p.Duration))
}

func (r *Renderer) OnLLMStart(_ context.Context, runID string, p events.ModelStart) {
	r.Emit(NewLLMStartEvent(r.SessionID, runID, p.Node, p.Model, p.Tools))
}

func (r *Renderer) OnLLMChunk(_ context.Context, runID, text, reasoning string) {
	if text == "" && reasoning == "" {
		return
	}
	r.Emit(NewLLMChunkEvent(r.SessionID, runID, text, reasoning))
}

func (r *Renderer) OnLLMEnd(_ context.Context, runID string, p events.ModelEnd) {
	r.Emit(NewLLMEndEvent(r.SessionID, runID, p.Node, p.Text, p.ToolCalls,
		p.InputTokens, p.OutputTokens, p.FinishReason))
}

func (r *Renderer) OnToolStart(_ context.Context, runID, name string, args map[string]any) {
	r.Emit(NewToolStartEvent(r.SessionID, runID, name, args))
}

func (r *Renderer) OnToolEnd(_ context.Context, runID, name, output string, success bool, summary string) {
	r.Emit(NewToolEndEvent(r.SessionID, runID, name, success, summary, truncate(output, maxToolOutput)))
}

func (r *Renderer) OnToolError(_ context.Context, runID, name string, err error) {
	r.Emit(NewToolErrorEvent(r.SessionID, runID, name, errString(err)))
}

func (r *Renderer) OnFatalError(_ context.Context, _, name string, err error) {
	r.Emit(NewErrorEvent(r.SessionID, errString(err), ErrorEngine, name))
}

func (r *Renderer) OnStagesBuilt(_ context.Context, p events.StagesBuilt) {
	r.setTotal(len(p.Names))
	r.Emit(NewStagesEvent(r.SessionID, StagesBuilt, p.Names, 0, len(p.Names), false))
}

func (r *Renderer) OnStageStarted(_ context.Context, p events.StageStarted) {
	r.setTotal(p.Total)
	r.Emit(NewStagesEvent(r.SessionID, StagesStarted, []string{p.Name}, p.Index, p.Total, false))
}

func (r *Renderer) OnStagesCompleted(_ context.Context, p events.StagesCompleted) {
	r.Emit(NewStagesEvent(r.SessionID, StagesCompleted, p.Names, p.To, r.currentTotal(), p.Done))
}

func (r *Renderer) OnStagesEdited(_ context.Context, p events.StagesEdited) {
	r.setTotal(p.Total)
	r.Emit(NewStagesEvent(r.SessionID, StagesEdited, p.Names, p.Current, p.Total, false))
}

func (r *Renderer) OnRequestConfirmation(_ context.Context, req events.InteractionRequest) {
	r.request(req)
}

func (r *Renderer) OnResolveConfirmation(_ context.Context, res events.InteractionResolution) {
	r.resolved(res)
}

func (r *Renderer) OnRequestUserDecision(_ context.Context, req events.InteractionRequest) {
	r.request(req)
}

func (r *Renderer) OnResolveUserDecision(_ context.Context, res events.InteractionResolution) {
	r.resolved(res)
}

func (r *Renderer) request(req events.InteractionRequest) {
	r.Emit(NewInteractionRequestEvent(r.SessionID, req.RequestID, req.Kind, req.Prompt, req.Payload, req.Timeout))
}

func (r *Renderer) resolved(res events.InteractionResolution) {
	r.Emit(NewInteractionResolvedEvent(r.SessionID, res.RequestID, res.Kind, res.Status, res.Value))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
