package events

import "context"

// Renderer is the event sink implemented by UI collaborators (terminal,
// NDJSON stdio, websocket). Methods are called from the dispatcher goroutine
// of a run, one at a time, in production order.
type Renderer interface {
	OnTaskStarted(ctx context.Context, p TaskStarted)
	OnTaskFinished(ctx context.Context, p TaskFinished)

	OnLLMStart(ctx context.Context, runID string, p ModelStart)
	OnLLMChunk(ctx context.Context, runID, text, reasoning string)
	OnLLMEnd(ctx context.Context, runID string, p ModelEnd)

	OnToolStart(ctx context.Context, runID, name string, args map[string]any)
	OnToolEnd(ctx context.Context, runID, name, output string, success bool, summary string)
	OnToolError(ctx context.Context, runID, name string, err error)
	OnFatalError(ctx context.Context, runID, name string, err error)

	OnStagesBuilt(ctx context.Context, p StagesBuilt)
	OnStageStarted(ctx context.Context, p StageStarted)
	OnStagesCompleted(ctx context.Context, p StagesCompleted)
	OnStagesEdited(ctx context.Context, p StagesEdited)

	OnRequestConfirmation(ctx context.Context, req InteractionRequest)
	OnResolveConfirmation(ctx context.Context, res InteractionResolution)
	OnRequestUserDecision(ctx context.Context, req InteractionRequest)
	OnResolveUserDecision(ctx context.Context, res InteractionResolution)
}

// NopRenderer lets you implement only the callbacks you need.
type NopRenderer struct{}

func (NopRenderer) OnTaskStarted(context.Context, TaskStarted)                      {}
func (NopRenderer) OnTaskFinished(context.Context, TaskFinished)                    {}
func (NopRenderer) OnLLMStart(context.Context, string, ModelStart)                  {}
func (NopRenderer) OnLLMChunk(context.Context, string, string, string)              {}
func (NopRenderer) OnLLMEnd(context.Context, string, ModelEnd)                      {}
func (NopRenderer) OnToolStart(context.Context, string, string, map[string]any)     {}
func (NopRenderer) OnToolEnd(context.Context, string, string, string, bool, string) {}
func (NopRenderer) OnToolError(context.Context, string, string, error)              {}
func (NopRenderer) OnFatalError(context.Context, string, string, error)             {}
func (NopRenderer) OnStagesBuilt(context.Context, StagesBuilt)                      {}
func (NopRenderer) OnStageStarted(context.Context, StageStarted)                    {}
func (NopRenderer) OnStagesCompleted(context.Context, StagesCompleted)              {}
func (NopRenderer) OnStagesEdited(context.Context, StagesEdited)                    {}
func (NopRenderer) OnRequestConfirmation(context.Context, InteractionRequest)       {}
func (NopRenderer) OnResolveConfirmation(context.Context, InteractionResolution)    {}
func (NopRenderer) OnRequestUserDecision(context.Context, InteractionRequest)       {}
func (NopRenderer) OnResolveUserDecision(context.Context, InteractionResolution)    {}

// MultiRenderer fans every callback out to each renderer in order.
type MultiRenderer []Renderer

func (rs MultiRenderer) OnTaskStarted(ctx context.Context, p TaskStarted) {
	for _, r := range rs {
		r.OnTaskStarted(ctx, p)
	}
}
func (rs MultiRenderer) OnTaskFinished(ctx context.Context, p TaskFinished) {
	for _, r := range rs {
		r.OnTaskFinished(ctx, p)
	}
}
func (rs MultiRenderer) OnLLMStart(ctx context.Context, runID string, p ModelStart) {
	for _, r := range rs {
		r.OnLLMStart(ctx, runID, p)
	}
}
func (rs MultiRenderer) OnLLMChunk(ctx context.Context, runID, text, reasoning string) {
	for _, r := range rs {
		r.OnLLMChunk(ctx, runID, text, reasoning)
	}
}
func (rs MultiRenderer) OnLLMEnd(ctx context.Context, runID string, p ModelEnd) {
	for _, r := range rs {
		r.OnLLMEnd(ctx, runID, p)
	}
}
func (rs MultiRenderer) OnToolStart(ctx context.Context, runID, name string, args map[string]any) {
	for _, r := range rs {
		r.OnToolStart(ctx, runID, name, args)
	}
}
func (rs MultiRenderer) OnToolEnd(ctx context.Context, runID, name, output string, success bool, summary string) {
	for _, r := range rs {
		r.OnToolEnd(ctx, runID, name, output, success, summary)
	}
}
func (rs MultiRenderer) OnToolError(ctx context.Context, runID, name string, err error) {
	for _, r := range rs {
		r.OnToolError(ctx, runID, name, err)
	}
}
func (rs MultiRenderer) OnFatalError(ctx context.Context, runID, name string, err error) {
	for _, r := range rs {
		r.OnFatalError(ctx, runID, name, err)
	}
}
func (rs MultiRenderer) OnStagesBuilt(ctx context.Context, p StagesBuilt) {
	for _, r := range rs {
		r.OnStagesBuilt(ctx, p)
	}
}
func (rs MultiRenderer) OnStageStarted(ctx context.Context, p StageStarted) {
	for _, r := range rs {
		r.OnStageStarted(ctx, p)
	}
}
func (rs MultiRenderer) OnStagesCompleted(ctx context.Context, p StagesCompleted) {
	for _, r := range rs {
		r.OnStagesCompleted(ctx, p)
	}
}
func (rs MultiRenderer) OnStagesEdited(ctx context.Context, p StagesEdited) {
	for _, r := range rs {
		r.OnStagesEdited(ctx, p)
	}
}
func (rs MultiRenderer) OnRequestConfirmation(ctx context.Context, req InteractionRequest) {
	for _, r := range rs {
		r.OnRequestConfirmation(ctx, req)
	}
}
func (rs MultiRenderer) OnResolveConfirmation(ctx context.Context, res InteractionResolution) {
	for _, r := range rs {
		r.OnResolveConfirmation(ctx, res)
	}
}
func (rs MultiRenderer) OnRequestUserDecision(ctx context.Context, req InteractionRequest) {
	for _, r := range rs {
		r.OnRequestUserDecision(ctx, req)
	}
}
func (rs MultiRenderer) OnResolveUserDecision(ctx context.Context, res InteractionResolution) {
	for _, r := range rs {
		r.OnResolveUserDecision(ctx, res)
	}
}
