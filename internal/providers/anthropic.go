package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
)

// AnthropicClient implements engine.LLMClient on the Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	logger zerolog.Logger
}

// NewAnthropicClient creates a client. baseURL is optional.
func NewAnthropicClient(apiKey, baseURL string, logger zerolog.Logger) *AnthropicClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey, opts...),
		logger: logger.With().Str("component", "anthropic").Logger(),
	}
}

// buildAnthropicRequest converts the engine history. System messages become
// the system prompt, tool results become user turns, and consecutive turns of
// the same role are merged because the API requires strict alternation.
func buildAnthropicRequest(model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (anthropic.MessagesRequest, error) {
	var system []anthropic.MessageSystemPart
	var msgs []anthropic.Message

	appendTurn := func(role anthropic.ChatRole, content ...anthropic.MessageContent) {
		if len(content) == 0 {
			return
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content = append(msgs[n-1].Content, content...)
			return
		}
		msgs = append(msgs, anthropic.Message{Role: role, Content: content})
	}

	for _, m := range pairedHistory(messages) {
		switch m.Role {
		case engine.RoleSystem:
			system = append(system, anthropic.MessageSystemPart{Type: "text", Text: m.Content})
		case engine.RoleUser:
			appendTurn(anthropic.RoleUser, anthropic.NewTextMessageContent(m.Content))
		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if m.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(m.Content))
			}
			for _, c := range m.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(c.ID, c.Name, json.RawMessage(encodeArgs(c.Args))))
			}
			appendTurn(anthropic.RoleAssistant, content...)
		case engine.RoleTool:
			appendTurn(anthropic.RoleUser, anthropic.NewToolResultMessageContent(m.ToolCallID, toolResultContent(m.Content), false))
		}
	}

	maxTokens := defaultMaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	temperature := defaultTemperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if len(system) > 0 {
		req.MultiSystem = system
	}

	// Tools stay defined with ToolChoiceNone: the API rejects tool_use and
	// tool_result blocks in a request without tools.
	if len(schemas) == 0 {
		return req, nil
	}
	objs, err := schemaObjects(schemas)
	if err != nil {
		return anthropic.MessagesRequest{}, err
	}
	for i, ts := range schemas {
		req.Tools = append(req.Tools, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: objs[i],
		})
	}
	switch opts.ToolChoice.Mode {
	case engine.ToolChoiceTool:
		req.ToolChoice = &anthropic.ToolChoice{Type: "tool", Name: opts.ToolChoice.Name}
	case engine.ToolChoiceRequired:
		req.ToolChoice = &anthropic.ToolChoice{Type: "any"}
	case engine.ToolChoiceNone:
		req.ToolChoice = &anthropic.ToolChoice{Type: "none"}
	default:
		req.ToolChoice = &anthropic.ToolChoice{Type: "auto"}
	}
	return req, nil
}

func anthropicToolCall(block anthropic.MessageContent) (engine.ToolCall, bool) {
	if block.MessageContentToolUse == nil || block.ID == "" || block.Name == "" {
		return engine.ToolCall{}, false
	}
	args, problem := decodeArgs(string(block.Input))
	return engine.ToolCall{ID: block.ID, Name: block.Name, Args: args, Error: problem}, true
}

func anthropicUsage(u anthropic.MessagesUsage) engine.Usage {
	return engine.Usage{
		Prompt:     u.InputTokens,
		Completion: u.OutputTokens,
		Total:      u.InputTokens + u.OutputTokens,
	}
}

// Chat implements engine.LLMClient.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	req, err := buildAnthropicRequest(model, messages, schemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return engine.LLMResponse{}, wrapError(err)
	}

	var text string
	var calls []engine.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				text += *block.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if tc, ok := anthropicToolCall(block); ok {
				calls = append(calls, tc)
			}
		}
	}

	return engine.LLMResponse{
		Assistant:    engine.ChatMessage{Role: engine.RoleAssistant, Content: text, ToolCalls: calls},
		ToolCalls:    calls,
		Usage:        anthropicUsage(resp.Usage),
		FinishReason: finishReason(len(calls) > 0, string(resp.StopReason)),
	}, nil
}

// Stream implements engine.LLMClient. The SDK streams through callbacks,
// which are adapted to the channel contract here.
func (c *AnthropicClient) Stream(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		base, err := buildAnthropicRequest(model, messages, schemas, opts)
		if err != nil {
			errCh <- err
			return
		}

		send := func(ev engine.StreamEvent) {
			select {
			case eventCh <- ev:
			case <-ctx.Done():
			}
		}

		var streamErr error
		var calls int
		req := anthropic.MessagesStreamRequest{MessagesRequest: base}
		req.OnError = func(e anthropic.ErrorResponse) {
			if e.Error != nil {
				streamErr = fmt.Errorf("anthropic stream: %s", e.Error.Message)
			} else {
				streamErr = fmt.Errorf("anthropic stream: %s", e.Type)
			}
		}
		req.OnContentBlockDelta = func(d anthropic.MessagesEventContentBlockDeltaData) {
			if d.Delta.Type == "text_delta" && d.Delta.Text != nil && *d.Delta.Text != "" {
				send(engine.StreamEvent{Type: engine.StreamTextDelta, Text: *d.Delta.Text})
			}
		}
		req.OnContentBlockStop = func(_ anthropic.MessagesEventContentBlockStopData, block anthropic.MessageContent) {
			if block.Type != anthropic.MessagesContentTypeToolUse {
				return
			}
			if tc, ok := anthropicToolCall(block); ok {
				calls++
				if tc.Error != "" {
					c.logger.Warn().Str("tool", tc.Name).Str("id", tc.ID).Msg(tc.Error)
				}
				send(engine.StreamEvent{Type: engine.StreamToolCall, ToolCall: tc})
			}
		}

		resp, err := c.client.CreateMessagesStream(ctx, req)
		if err != nil {
			errCh <- wrapError(err)
			return
		}
		if streamErr != nil {
			errCh <- wrapError(streamErr)
			return
		}

		send(engine.StreamEvent{Type: engine.StreamUsage, Usage: anthropicUsage(resp.Usage)})
		send(engine.StreamEvent{Type: engine.StreamFinish, FinishReason: finishReason(calls > 0, string(resp.StopReason))})
		errCh <- nil
	}()

	return eventCh, errCh
}
