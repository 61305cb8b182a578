// Package events defines the lifecycle events a run emits, the Renderer
// contract UI collaborators implement, and the Dispatcher that connects them.
package events

import "time"

// Kind identifies a lifecycle event.
type Kind string

const (
	KindTaskStarted  Kind = "task-started"
	KindTaskFinished Kind = "task-finished"

	KindModelStart  Kind = "model-start"
	KindModelStream Kind = "model-stream"
	KindModelEnd    Kind = "model-end"

	KindToolStart Kind = "tool-start"
	KindToolEnd   Kind = "tool-end"
	KindToolError Kind = "tool-error"

	KindFatalError Kind = "fatal-error"

	KindStagesBuilt     Kind = "stages-built"
	KindStageStarted    Kind = "stage-started"
	KindStagesCompleted Kind = "stages-completed"
	KindStagesEdited    Kind = "stages-edited"

	KindConfirmationRequested Kind = "confirmation-requested"
	KindConfirmationResolved  Kind = "confirmation-resolved"
	KindDecisionRequested     Kind = "decision-requested"
	KindDecisionResolved      Kind = "decision-resolved"
)

// Kinds lists every recognized kind.
var Kinds = []Kind{
	KindTaskStarted, KindTaskFinished,
	KindModelStart, KindModelStream, KindModelEnd,
	KindToolStart, KindToolEnd, KindToolError,
	KindFatalError,
	KindStagesBuilt, KindStageStarted, KindStagesCompleted, KindStagesEdited,
	KindConfirmationRequested, KindConfirmationResolved,
	KindDecisionRequested, KindDecisionResolved,
}

// Event is one lifecycle notification. Name is the tool or node name when the
// event concerns one, and RunID identifies the tool call or model invocation.
type Event struct {
	Kind    Kind
	Name    string
	RunID   string
	Payload any
}

// Outcome is how a task ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// TaskStarted is the payload of KindTaskStarted.
type TaskStarted struct {
	SessionID string
	ThreadID  string
	Task      string
}

// TaskFinished is the payload of KindTaskFinished.
type TaskFinished struct {
	SessionID     string
	ThreadID      string
	Outcome       Outcome
	Error         string
	TaskCompleted bool
	InputTokens   int
	OutputTokens  int
	Duration      time.Duration
}

// ModelStart is the payload of KindModelStart.
type ModelStart struct {
	Node     string
	Model    string
	Messages int
	Tools    []string
}

// ModelChunk is the payload of KindModelStream. Text and Reasoning are
// already separated so renderers never parse provider chunk shapes.
type ModelChunk struct {
	Text      string
	Reasoning string
}

// ModelEnd is the payload of KindModelEnd.
type ModelEnd struct {
	Node         string
	Text         string
	Reasoning    string
	ToolCalls    []string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// ToolStart is the payload of KindToolStart.
type ToolStart struct {
	Args map[string]any
}

// ToolEnd is the payload of KindToolEnd.
type ToolEnd struct {
	Output  string
	Success bool
	Summary string
}

// ToolError is the payload of KindToolError.
type ToolError struct {
	Err error
}

// FatalError is the payload of KindFatalError.
type FatalError struct {
	Err error
}

// StagesBuilt is the payload of KindStagesBuilt.
type StagesBuilt struct {
	Names []string
}

// StageStarted is the payload of KindStageStarted.
type StageStarted struct {
	Index int
	Name  string
	Total int
}

// StagesCompleted is the payload of KindStagesCompleted. The finished stages
// are the half-open index range [From, To).
type StagesCompleted struct {
	From  int
	To    int
	Names []string
	Done  bool
}

// StagesEdited is the payload of KindStagesEdited.
type StagesEdited struct {
	Names   []string
	Current int
	Total   int
}

// InteractionRequest is the payload of the *-requested interaction kinds.
type InteractionRequest struct {
	RequestID string
	Kind      string
	Prompt    string
	Payload   map[string]any
	Timeout   time.Duration
}

// InteractionResolution is the payload of the *-resolved interaction kinds.
type InteractionResolution struct {
	RequestID string
	Kind      string
	Status    string
	Value     string
}
