package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogRenderer writes lifecycle events to a structured logger. Token stream
// chunks are logged at trace level only.
type LogRenderer struct {
	L zerolog.Logger
}

func (h LogRenderer) OnTaskStarted(_ context.Context, p TaskStarted) {
	h.L.Info().Str("session", p.SessionID).Str("thread", p.ThreadID).Str("task", preview(p.Task, 120)).Msg("task started")
}

func (h LogRenderer) OnTaskFinished(_ context.Context, p TaskFinished) {
	ev := h.L.Info()
	if p.Outcome == OutcomeFailed {
		ev = h.L.Error()
	}
	ev.Str("session", p.SessionID).
		Str("outcome", string(p.Outcome)).
		Bool("task_completed", p.TaskCompleted).
		Int("input_tokens", p.InputTokens).
		Int("output_tokens", p.OutputTokens).
		Dur("duration", p.Duration).
		Str("error", p.Error).
		Msg("task finished")
}

func (h LogRenderer) OnLLMStart(_ context.Context, runID string, p ModelStart) {
	h.L.Debug().Str("run", runID).Str("node", p.Node).Str("model", p.Model).
		Int("messages", p.Messages).Strs("tools", p.Tools).Msg("model call")
}

func (h LogRenderer) OnLLMChunk(_ context.Context, runID, text, reasoning string) {
	h.L.Trace().Str("run", runID).Str("text", text).Str("reasoning", reasoning).Msg("model chunk")
}

func (h LogRenderer) OnLLMEnd(_ context.Context, runID string, p ModelEnd) {
	h.L.Debug().Str("run", runID).Str("node", p.Node).Str("finish", p.FinishReason).
		Strs("tool_calls", p.ToolCalls).Int("input_tokens", p.InputTokens).Int("output_tokens", p.OutputTokens).
		Msg("model done")
}

func (h LogRenderer) OnToolStart(_ context.Context, runID, name string, args map[string]any) {
	h.L.Debug().Str("run", runID).Str("tool", name).Interface("args", args).Msg("tool start")
}

func (h LogRenderer) OnToolEnd(_ context.Context, runID, name, output string, success bool, summary string) {
	h.L.Debug().Str("run", runID).Str("tool", name).Bool("success", success).
		Str("summary", summary).Str("output", preview(output, 200)).Msg("tool end")
}

func (h LogRenderer) OnToolError(_ context.Context, runID, name string, err error) {
	h.L.Warn().Str("run", runID).Str("tool", name).Err(err).Msg("tool error")
}

func (h LogRenderer) OnFatalError(_ context.Context, runID, name string, err error) {
	h.L.Error().Str("run", runID).Str("name", name).Err(err).Msg("fatal error")
}

func (h LogRenderer) OnStagesBuilt(_ context.Context, p StagesBuilt) {
	h.L.Info().Strs("stages", p.Names).Msg("plan built")
}

func (h LogRenderer) OnStageStarted(_ context.Context, p StageStarted) {
	h.L.Info().Int("index", p.Index).Int("total", p.Total).Str("stage", p.Name).Msg("stage started")
}

func (h LogRenderer) OnStagesCompleted(_ context.Context, p StagesCompleted) {
	h.L.Info().Int("from", p.From).Int("to", p.To).Strs("stages", p.Names).Bool("done", p.Done).Msg("stages completed")
}

func (h LogRenderer) OnStagesEdited(_ context.Context, p StagesEdited) {
	h.L.Info().Strs("stages", p.Names).Int("current", p.Current).Msg("plan edited")
}

func (h LogRenderer) OnRequestConfirmation(_ context.Context, req InteractionRequest) {
	h.L.Info().Str("request", req.RequestID).Str("prompt", req.Prompt).Dur("timeout", req.Timeout).Msg("confirmation requested")
}

func (h LogRenderer) OnResolveConfirmation(_ context.Context, res InteractionResolution) {
	h.L.Info().Str("request", res.RequestID).Str("status", res.Status).Msg("confirmation resolved")
}

func (h LogRenderer) OnRequestUserDecision(_ context.Context, req InteractionRequest) {
	h.L.Info().Str("request", req.RequestID).Str("kind", req.Kind).Str("prompt", req.Prompt).Dur("timeout", req.Timeout).Msg("decision requested")
}

func (h LogRenderer) OnResolveUserDecision(_ context.Context, res InteractionResolution) {
	h.L.Info().Str("request", res.RequestID).Str("kind", res.Kind).Str("status", res.Status).Msg("decision resolved")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
