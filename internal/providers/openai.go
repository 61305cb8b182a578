package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
)

// OpenAIClient implements engine.LLMClient on the chat completions API. It
// serves every OpenAI-compatible endpoint through baseURL.
type OpenAIClient struct {
	client *openai.Client
	logger zerolog.Logger
}

// NewOpenAIClient creates a client. baseURL is optional.
func NewOpenAIClient(apiKey, baseURL string, logger zerolog.Logger) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		logger: logger.With().Str("component", "openai").Logger(),
	}
}

func buildOpenAIRequest(model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (openai.ChatCompletionRequest, error) {
	var system []string
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	for _, m := range pairedHistory(messages) {
		switch m.Role {
		case engine.RoleSystem:
			system = append(system, m.Content)
		case engine.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case engine.RoleAssistant:
			// Some compatible servers reject a null content next to tool calls.
			content := m.Content
			if content == "" {
				content = " "
			}
			var calls []openai.ToolCall
			for _, c := range m.ToolCalls {
				calls = append(calls, openai.ToolCall{
					ID:   c.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      c.Name,
						Arguments: encodeArgs(c.Args),
					},
				})
			}
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content, ToolCalls: calls})
		case engine.RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: m.ToolCallID,
				Content:    toolResultContent(m.Content),
			})
		}
	}
	if len(system) > 0 {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: strings.Join(system, "\n\n"),
		}}, msgs...)
	}

	req := openai.ChatCompletionRequest{Model: model, Messages: msgs}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Temperature = &t
	}

	if len(schemas) == 0 {
		return req, nil
	}
	objs, err := schemaObjects(schemas)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	for i, ts := range schemas {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  objs[i],
			},
		})
	}
	switch opts.ToolChoice.Mode {
	case engine.ToolChoiceTool:
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: opts.ToolChoice.Name},
		}
	case engine.ToolChoiceRequired:
		req.ToolChoice = "required"
	case engine.ToolChoiceNone:
		req.ToolChoice = "none"
	default:
		req.ToolChoice = "auto"
	}
	return req, nil
}

// Chat implements engine.LLMClient.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	req, err := buildOpenAIRequest(model, messages, schemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return engine.LLMResponse{}, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, errors.New("empty response from model")
	}

	choice := resp.Choices[0]
	var calls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args, problem := decodeArgs(tc.Function.Arguments)
		calls = append(calls, engine.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args, Error: problem})
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: choice.Message.Content, ToolCalls: calls},
		ToolCalls: calls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: finishReason(len(calls) > 0, string(choice.FinishReason)),
	}, nil
}

// callAccumulator collects the deltas of one streamed tool call. OpenAI
// sends the id and name once and the arguments in fragments, keyed by index.
type callAccumulator struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

type callAccumulators map[int]*callAccumulator

func (a callAccumulators) add(d openai.ToolCall) {
	idx := len(a)
	if d.Index != nil {
		idx = *d.Index
	} else if d.ID != "" {
		for _, acc := range a {
			if acc.id == d.ID {
				idx = acc.index
				break
			}
		}
	}
	acc, ok := a[idx]
	if !ok {
		acc = &callAccumulator{index: idx}
		a[idx] = acc
	}
	if d.ID != "" {
		acc.id = d.ID
	}
	if d.Function.Name != "" {
		acc.name = d.Function.Name
	}
	acc.args.WriteString(d.Function.Arguments)
}

// calls returns the completed calls in index order. Calls without a name
// are dropped; calls with broken arguments carry an Error.
func (a callAccumulators) calls() []engine.ToolCall {
	idxs := make([]int, 0, len(a))
	for i := range a {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	out := make([]engine.ToolCall, 0, len(idxs))
	for _, i := range idxs {
		acc := a[i]
		if acc.name == "" {
			continue
		}
		id := acc.id
		if id == "" {
			id = fmt.Sprintf("call_%d", acc.index)
		}
		args, problem := decodeArgs(acc.args.String())
		if acc.args.Len() == 0 {
			problem = "No arguments received. Retry with complete arguments."
		}
		out = append(out, engine.ToolCall{ID: id, Name: acc.name, Args: args, Error: problem})
	}
	return out
}

// Stream implements engine.LLMClient.
func (c *OpenAIClient) Stream(ctx context.Context, model string, messages []engine.ChatMessage, schemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		req, err := buildOpenAIRequest(model, messages, schemas, opts)
		if err != nil {
			errCh <- err
			return
		}
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errCh <- wrapError(err)
			return
		}
		defer stream.Close()

		send := func(ev engine.StreamEvent) bool {
			select {
			case eventCh <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		accs := callAccumulators{}
		var usage engine.Usage
		var rawFinish string
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- wrapError(err)
				return
			}
			// The usage chunk arrives last and has no choices.
			if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
				usage = engine.Usage{
					Prompt:     chunk.Usage.PromptTokens,
					Completion: chunk.Usage.CompletionTokens,
					Total:      chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				rawFinish = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				if !send(engine.StreamEvent{Type: engine.StreamTextDelta, Text: choice.Delta.Content}) {
					return
				}
			}
			for _, d := range choice.Delta.ToolCalls {
				accs.add(d)
			}
		}

		calls := accs.calls()
		for _, tc := range calls {
			if tc.Error != "" {
				c.logger.Warn().Str("tool", tc.Name).Str("id", tc.ID).Msg(tc.Error)
			}
			if !send(engine.StreamEvent{Type: engine.StreamToolCall, ToolCall: tc}) {
				return
			}
		}
		if !send(engine.StreamEvent{Type: engine.StreamUsage, Usage: usage}) {
			return
		}
		if !send(engine.StreamEvent{Type: engine.StreamFinish, FinishReason: finishReason(len(calls) > 0, rawFinish)}) {
			return
		}
		errCh <- nil
	}()

	return eventCh, errCh
}
