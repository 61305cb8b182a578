package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	// ToolCallID links a tool message to the assistant call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	// ToolCalls are the calls requested by an assistant message. Providers need
	// them back when the history is replayed.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("tool messages must have a ToolCallID")
	}
	return nil
}

// HasToolCalls reports whether m is an assistant turn requesting tools.
func (m ChatMessage) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// Usage holds token accounting returned by providers. Missing usage is all zeros.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// ToolCall represents a function/tool the assistant requested.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	// Error is set by the provider when the call could not be decoded
	// (truncated stream, invalid JSON arguments).
	Error string `json:"error,omitempty"`
}

// LLMResponse is a normalized result of one chat call.
type LLMResponse struct {
	Assistant    ChatMessage
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter"
}

// LLMClient abstracts the chosen SDK (OpenAI, Anthropic, ...).
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (LLMResponse, error)
	// Stream delivers events on the first channel and at most one error on the
	// second. Both channels are closed when the call ends.
	Stream(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error)
}

// ToolChoiceMode constrains which tool the model may call.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceTool     ToolChoiceMode = "tool"
	ToolChoiceNone     ToolChoiceMode = "none"
)

// ToolChoice is forwarded to the provider. Name is only used with ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// ChatOptions keeps knobs forwarded to the SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
	ToolChoice      ToolChoice
}

// ToolSchema is the JSON schema the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// StreamEvent represents a streaming event from the LLM.
type StreamEvent struct {
	Type         string   // "text_delta" | "tool_call" | "usage" | "finish"
	Text         string   // for text_delta
	ToolCall     ToolCall // for tool_call
	Usage        Usage    // for usage
	FinishReason string   // for finish
}

const (
	StreamTextDelta = "text_delta"
	StreamToolCall  = "tool_call"
	StreamUsage     = "usage"
	StreamFinish    = "finish"
)
