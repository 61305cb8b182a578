package engine

import (
	"fmt"
	"maps"
)

// Stats are the run counters. They combine by field-wise addition.
type Stats struct {
	ToolCallCounts              map[string]int `json:"tool_call_counts,omitempty"`
	InputTokens                 int            `json:"input_tokens"`
	OutputTokens                int            `json:"output_tokens"`
	Failures                    int            `json:"failures"`
	FailuresSinceLastReflection int            `json:"failures_since_last_reflection"`
}

// Merge returns s plus delta. Tool counts add per key. A reflection resets
// FailuresSinceLastReflection by passing its negated value in delta.
func (s Stats) Merge(delta Stats) Stats {
	out := Stats{
		InputTokens:                 s.InputTokens + delta.InputTokens,
		OutputTokens:                s.OutputTokens + delta.OutputTokens,
		Failures:                    s.Failures + delta.Failures,
		FailuresSinceLastReflection: s.FailuresSinceLastReflection + delta.FailuresSinceLastReflection,
	}
	if len(s.ToolCallCounts) > 0 || len(delta.ToolCallCounts) > 0 {
		out.ToolCallCounts = make(map[string]int, len(s.ToolCallCounts)+len(delta.ToolCallCounts))
		maps.Copy(out.ToolCallCounts, s.ToolCallCounts)
		for name, n := range delta.ToolCallCounts {
			out.ToolCallCounts[name] += n
		}
	}
	return out
}

// Plan is the stage tracker triple.
type Plan struct {
	Current int      `json:"current_stage"`
	Total   int      `json:"total_stages"`
	Names   []string `json:"stage_names,omitempty"`
}

// AgentState is owned by exactly one in-flight run.
type AgentState struct {
	Messages      []ChatMessage `json:"messages"`
	Stats         Stats         `json:"stats"`
	CurrentStage  int           `json:"current_stage"`
	TotalStages   int           `json:"total_stages"`
	StageNames    []string      `json:"stage_names,omitempty"`
	TaskCompleted bool          `json:"task_completed"`
}

// NewState returns a fresh state seeded with messages.
func NewState(messages []ChatMessage) *AgentState {
	return &AgentState{Messages: append([]ChatMessage(nil), messages...)}
}

// Plan returns a copy of the stage triple.
func (s *AgentState) Plan() Plan {
	return Plan{
		Current: s.CurrentStage,
		Total:   s.TotalStages,
		Names:   append([]string(nil), s.StageNames...),
	}
}

// LastAssistant returns the most recent assistant message.
func (s *AgentState) LastAssistant() (ChatMessage, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return ChatMessage{}, false
}

// Snapshot returns a deep enough copy for persistence and callers outside the run.
func (s *AgentState) Snapshot() AgentState {
	out := *s
	out.Messages = append([]ChatMessage(nil), s.Messages...)
	out.StageNames = append([]string(nil), s.StageNames...)
	out.Stats = Stats{}.Merge(s.Stats)
	return out
}

// Update is the partial state a node returns.
type Update struct {
	Messages      []ChatMessage
	Stats         Stats
	Plan          *Plan
	TaskCompleted *bool
}

// Validate checks every message u would append.
func (u Update) Validate() error {
	for i, m := range u.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// Apply folds u into s: messages append, stats merge, the plan and the
// completion flag are replaced when present.
func (s *AgentState) Apply(u Update) {
	s.Messages = append(s.Messages, u.Messages...)
	s.Stats = s.Stats.Merge(u.Stats)
	if u.Plan != nil {
		s.CurrentStage = u.Plan.Current
		s.TotalStages = u.Plan.Total
		s.StageNames = append([]string(nil), u.Plan.Names...)
	}
	if u.TaskCompleted != nil {
		s.TaskCompleted = *u.TaskCompleted
	}
}
