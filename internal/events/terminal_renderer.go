package events

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	termTitle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	termStage     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	termDone      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	termFail      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	termDim       = lipgloss.NewStyle().Faint(true)
	termReasoning = lipgloss.NewStyle().Italic(true).Faint(true)
	termPrompt    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

// TerminalRenderer prints a human-readable transcript of a run. Interaction
// requests are forwarded on Prompts (when set) so the caller can read an answer.
type TerminalRenderer struct {
	NopRenderer
	W       io.Writer
	Prompts chan<- InteractionRequest
}

func (t *TerminalRenderer) OnTaskStarted(_ context.Context, p TaskStarted) {
	fmt.Fprintln(t.W, termTitle.Render("▶ "+p.Task))
}

func (t *TerminalRenderer) OnTaskFinished(_ context.Context, p TaskFinished) {
	line := fmt.Sprintf("■ %s (tokens in=%d out=%d, %s)", p.Outcome, p.InputTokens, p.OutputTokens, p.Duration.Round(1e6))
	switch p.Outcome {
	case OutcomeCompleted:
		fmt.Fprintln(t.W, termDone.Render(line))
	case OutcomeFailed:
		fmt.Fprintln(t.W, termFail.Render(line+": "+p.Error))
	default:
		fmt.Fprintln(t.W, termDim.Render(line))
	}
}

func (t *TerminalRenderer) OnLLMChunk(_ context.Context, _ string, text, reasoning string) {
	if reasoning != "" {
		fmt.Fprint(t.W, termReasoning.Render(reasoning))
	}
	if text != "" {
		fmt.Fprint(t.W, text)
	}
}

func (t *TerminalRenderer) OnLLMEnd(_ context.Context, _ string, p ModelEnd) {
	if p.Text != "" || p.Reasoning != "" {
		fmt.Fprintln(t.W)
	}
}

func (t *TerminalRenderer) OnToolStart(_ context.Context, _ string, name string, args map[string]any) {
	fmt.Fprintln(t.W, termDim.Render(fmt.Sprintf("  → %s %s", name, compactArgs(args))))
}

func (t *TerminalRenderer) OnToolEnd(_ context.Context, _ string, name, _ string, success bool, summary string) {
	if success {
		fmt.Fprintln(t.W, termDone.Render(fmt.Sprintf("  ✓ %s: %s", name, summary)))
		return
	}
	fmt.Fprintln(t.W, termFail.Render(fmt.Sprintf("  ✗ %s: %s", name, summary)))
}

func (t *TerminalRenderer) OnToolError(_ context.Context, _ string, name string, err error) {
	fmt.Fprintln(t.W, termFail.Render(fmt.Sprintf("  ✗ %s raised: %v", name, err)))
}

func (t *TerminalRenderer) OnFatalError(_ context.Context, _ string, name string, err error) {
	fmt.Fprintln(t.W, termFail.Bold(true).Render(fmt.Sprintf("fatal error in %s: %v", name, err)))
}

func (t *TerminalRenderer) OnStagesBuilt(_ context.Context, p StagesBuilt) {
	var b strings.Builder
	b.WriteString(termTitle.Render("Plan"))
	for i, n := range p.Names {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, n)
	}
	fmt.Fprintln(t.W, b.String())
}

func (t *TerminalRenderer) OnStageStarted(_ context.Context, p StageStarted) {
	fmt.Fprintln(t.W, termStage.Render(fmt.Sprintf("Stage %d/%d: %s", p.Index+1, p.Total, p.Name)))
}

func (t *TerminalRenderer) OnStagesCompleted(_ context.Context, p StagesCompleted) {
	for _, n := range p.Names {
		fmt.Fprintln(t.W, termDone.Render("  ✔ "+n))
	}
}

func (t *TerminalRenderer) OnStagesEdited(_ context.Context, p StagesEdited) {
	rest := p.Names[min(p.Current, len(p.Names)):]
	fmt.Fprintln(t.W, termStage.Render("Plan revised: "+strings.Join(rest, " → ")))
}

func (t *TerminalRenderer) OnRequestConfirmation(_ context.Context, req InteractionRequest) {
	fmt.Fprintln(t.W, termPrompt.Render(fmt.Sprintf("? %s [y/N] (%s)", req.Prompt, req.Timeout)))
	t.forward(req)
}

func (t *TerminalRenderer) OnRequestUserDecision(_ context.Context, req InteractionRequest) {
	fmt.Fprintln(t.W, termPrompt.Render(fmt.Sprintf("? %s (%s)", req.Prompt, req.Timeout)))
	t.forward(req)
}

func (t *TerminalRenderer) OnResolveConfirmation(_ context.Context, res InteractionResolution) {
	fmt.Fprintln(t.W, termDim.Render("  "+res.Status))
}

func (t *TerminalRenderer) OnResolveUserDecision(_ context.Context, res InteractionResolution) {
	fmt.Fprintln(t.W, termDim.Render("  "+res.Status))
}

func (t *TerminalRenderer) forward(req InteractionRequest) {
	if t.Prompts == nil {
		return
	}
	select {
	case t.Prompts <- req:
	default:
	}
}

func compactArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%s", k, preview(fmt.Sprint(v), 40)))
	}
	return strings.Join(parts, " ")
}
