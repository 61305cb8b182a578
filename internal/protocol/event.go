package protocol

import (
	"encoding/json"
	"time"

	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
)

// EventType enumerates agent -> client events.
type EventType string

const (
	EventStatus              EventType = "status"
	EventTaskStarted         EventType = "task_started"
	EventTaskFinished        EventType = "task_finished"
	EventLLMStart            EventType = "llm_start"
	EventLLMChunk            EventType = "llm_chunk"
	EventLLMEnd              EventType = "llm_end"
	EventTool                EventType = "tool"
	EventStages              EventType = "stages"
	EventInteractionRequest  EventType = "interaction_request"
	EventInteractionResolved EventType = "interaction_resolved"
	EventError               EventType = "error"
	EventThreads             EventType = "threads"
	EventHistory             EventType = "history"
)

// Tool phases.
const (
	ToolPhaseStart = "start"
	ToolPhaseEnd   = "end"
	ToolPhaseError = "error"
)

// Stage actions.
const (
	StagesBuilt     = "built"
	StagesStarted   = "started"
	StagesCompleted = "completed"
	StagesEdited    = "edited"
)

// Error kinds.
const (
	ErrorInvalidCommand  = "invalid_command"
	ErrorSessionNotFound = "session_not_found"
	ErrorSession         = "session_error"
	ErrorBusy            = "busy"
	ErrorUnknownRequest  = "unknown_request"
	ErrorStore           = "store_error"
	ErrorEngine          = "engine_error"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

func (eventBase) isEvent() {}

// GetType implements Event.
func (b eventBase) GetType() EventType { return b.Type }

// StatusEvent communicates coarse session state.
type StatusEvent struct {
	eventBase
	Status   string `json:"status"`
	ThreadID string `json:"thread_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// NewStatusEvent constructs a status event.
func NewStatusEvent(sessionID, status, threadID, detail string) StatusEvent {
	return StatusEvent{
		eventBase: eventBase{Type: EventStatus, SessionID: sessionID},
		Status:    status,
		ThreadID:  threadID,
		Detail:    detail,
	}
}

// TaskStartedEvent marks the start of a task.
type TaskStartedEvent struct {
	eventBase
	ThreadID string `json:"thread_id"`
	Task     string `json:"task"`
}

// NewTaskStartedEvent constructs a task_started event.
func NewTaskStartedEvent(sessionID, threadID, task string) TaskStartedEvent {
	return TaskStartedEvent{
		eventBase: eventBase{Type: EventTaskStarted, SessionID: sessionID},
		ThreadID:  threadID,
		Task:      task,
	}
}

// TaskFinishedEvent is always the last event of a task.
type TaskFinishedEvent struct {
	eventBase
	ThreadID      string `json:"thread_id"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"`
	TaskCompleted bool   `json:"task_completed"`
	InputTokens   int    `json:"input_tokens"`
	OutputTokens  int    `json:"output_tokens"`
	DurationMS    int64  `json:"duration_ms"`
}

// NewTaskFinishedEvent constructs a task_finished event.
func NewTaskFinishedEvent(sessionID, threadID, outcome, errMsg string, completed bool, in, out int, d time.Duration) TaskFinishedEvent {
	return TaskFinishedEvent{
		eventBase:     eventBase{Type: EventTaskFinished, SessionID: sessionID},
		ThreadID:      threadID,
		Outcome:       outcome,
		Error:         errMsg,
		TaskCompleted: completed,
		InputTokens:   in,
		OutputTokens:  out,
		DurationMS:    d.Milliseconds(),
	}
}

// LLMStartEvent marks a model invocation.
type LLMStartEvent struct {
	eventBase
	RunID string   `json:"run_id"`
	Node  string   `json:"node"`
	Model string   `json:"model,omitempty"`
	Tools []string `json:"tools,omitempty"`
}

// NewLLMStartEvent constructs an llm_start event.
func NewLLMStartEvent(sessionID, runID, node, model string, tools []string) LLMStartEvent {
	return LLMStartEvent{
		eventBase: eventBase{Type: EventLLMStart, SessionID: sessionID},
		RunID:     runID,
		Node:      node,
		Model:     model,
		Tools:     tools,
	}
}

// LLMChunkEvent streams visible text and reasoning separately.
type LLMChunkEvent struct {
	eventBase
	RunID     string `json:"run_id"`
	Text      string `json:"text,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// NewLLMChunkEvent constructs an llm_chunk event.
func NewLLMChunkEvent(sessionID, runID, text, reasoning string) LLMChunkEvent {
	return LLMChunkEvent{
		eventBase: eventBase{Type: EventLLMChunk, SessionID: sessionID},
		RunID:     runID,
		Text:      text,
		Reasoning: reasoning,
	}
}

// LLMEndEvent closes a model invocation.
type LLMEndEvent struct {
	eventBase
	RunID        string   `json:"run_id"`
	Node         string   `json:"node"`
	Text         string   `json:"text,omitempty"`
	ToolCalls    []string `json:"tool_calls,omitempty"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

// NewLLMEndEvent constructs an llm_end event.
func NewLLMEndEvent(sessionID, runID, node, text string, calls []string, in, out int, reason string) LLMEndEvent {
	return LLMEndEvent{
		eventBase:    eventBase{Type: EventLLMEnd, SessionID: sessionID},
		RunID:        runID,
		Node:         node,
		Text:         text,
		ToolCalls:    calls,
		InputTokens:  in,
		OutputTokens: out,
		FinishReason: reason,
	}
}

// ToolEvent tracks tool invocation lifecycle.
type ToolEvent struct {
	eventBase
	CallID  string         `json:"call_id"`
	Tool    string         `json:"tool"`
	Phase   string         `json:"phase"`
	Args    map[string]any `json:"args,omitempty"`
	Success *bool          `json:"success,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Output  string         `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// NewToolStartEvent constructs a tool event for the start phase.
func NewToolStartEvent(sessionID, callID, tool string, args map[string]any) ToolEvent {
	return ToolEvent{
		eventBase: eventBase{Type: EventTool, SessionID: sessionID},
		CallID:    callID,
		Tool:      tool,
		Phase:     ToolPhaseStart,
		Args:      args,
	}
}

// NewToolEndEvent constructs a tool event for the end phase.
func NewToolEndEvent(sessionID, callID, tool string, success bool, summary, output string) ToolEvent {
	return ToolEvent{
		eventBase: eventBase{Type: EventTool, SessionID: sessionID},
		CallID:    callID,
		Tool:      tool,
		Phase:     ToolPhaseEnd,
		Success:   &success,
		Summary:   summary,
		Output:    output,
	}
}

// NewToolErrorEvent constructs a tool event for the error phase.
func NewToolErrorEvent(sessionID, callID, tool, errMsg string) ToolEvent {
	return ToolEvent{
		eventBase: eventBase{Type: EventTool, SessionID: sessionID},
		CallID:    callID,
		Tool:      tool,
		Phase:     ToolPhaseError,
		Error:     errMsg,
	}
}

// StagesEvent reports plan changes. Current is the zero-based index of the
// active stage, equal to Total once every stage has ended.
type StagesEvent struct {
	eventBase
	Action  string   `json:"action"`
	Names   []string `json:"names,omitempty"`
	Current int      `json:"current"`
	Total   int      `json:"total"`
	Done    bool     `json:"done,omitempty"`
}

// NewStagesEvent constructs a stages event.
func NewStagesEvent(sessionID, action string, names []string, current, total int, done bool) StagesEvent {
	return StagesEvent{
		eventBase: eventBase{Type: EventStages, SessionID: sessionID},
		Action:    action,
		Names:     names,
		Current:   current,
		Total:     total,
		Done:      done,
	}
}

// InteractionRequestEvent asks the client to resolve a request.
type InteractionRequestEvent struct {
	eventBase
	RequestID string         `json:"request_id"`
	Kind      string         `json:"kind"`
	Prompt    string         `json:"prompt"`
	Payload   map[string]any `json:"payload,omitempty"`
	TimeoutMS int64          `json:"timeout_ms,omitempty"`
}

// NewInteractionRequestEvent constructs an interaction_request event.
func NewInteractionRequestEvent(sessionID, requestID, kind, prompt string, payload map[string]any, timeout time.Duration) InteractionRequestEvent {
	return InteractionRequestEvent{
		eventBase: eventBase{Type: EventInteractionRequest, SessionID: sessionID},
		RequestID: requestID,
		Kind:      kind,
		Prompt:    prompt,
		Payload:   payload,
		TimeoutMS: timeout.Milliseconds(),
	}
}

// InteractionResolvedEvent reports how a request ended.
type InteractionResolvedEvent struct {
	eventBase
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Value     string `json:"value,omitempty"`
}

// NewInteractionResolvedEvent constructs an interaction_resolved event.
func NewInteractionResolvedEvent(sessionID, requestID, kind, status, value string) InteractionResolvedEvent {
	return InteractionResolvedEvent{
		eventBase: eventBase{Type: EventInteractionResolved, SessionID: sessionID},
		RequestID: requestID,
		Kind:      kind,
		Status:    status,
		Value:     value,
	}
}

// ErrorEvent reports protocol, session and engine failures.
type ErrorEvent struct {
	eventBase
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(sessionID, message, kind, details string) ErrorEvent {
	return ErrorEvent{
		eventBase: eventBase{Type: EventError, SessionID: sessionID},
		Message:   message,
		Kind:      kind,
		Details:   details,
	}
}

// ThreadsEvent lists stored threads.
type ThreadsEvent struct {
	eventBase
	Threads []checkpoint.ThreadMeta `json:"threads"`
}

// NewThreadsEvent constructs a threads event.
func NewThreadsEvent(threads []checkpoint.ThreadMeta) ThreadsEvent {
	if threads == nil {
		threads = []checkpoint.ThreadMeta{}
	}
	return ThreadsEvent{
		eventBase: eventBase{Type: EventThreads},
		Threads:   threads,
	}
}

// HistoryMessage is one visible turn of a resumed thread.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEvent replays a resumed thread to the client.
type HistoryEvent struct {
	eventBase
	ThreadID string           `json:"thread_id"`
	Title    string           `json:"title,omitempty"`
	Messages []HistoryMessage `json:"messages"`
}

// NewHistoryEvent constructs a history event.
func NewHistoryEvent(sessionID, threadID, title string, msgs []HistoryMessage) HistoryEvent {
	return HistoryEvent{
		eventBase: eventBase{Type: EventHistory, SessionID: sessionID},
		ThreadID:  threadID,
		Title:     title,
		Messages:  msgs,
	}
}
