package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
)

// build asks for a fresh plan. The stage triple and completion flag are reset
// in the same update so a retried build never sees stale plan state.
func (r *run) build(ctx context.Context) (Update, error) {
	tool, _ := r.g.lookupTool(ToolBuildStages)

	system := buildSystemPrompt(r.g.cfg.SystemPrompt)
	choice := ToolChoice{Mode: ToolChoiceTool, Name: ToolBuildStages}
	msg, usage, err := r.callModel(ctx, NodeBuild, system, nil, []ToolSchema{tool.Schema()}, choice)
	if err != nil {
		return Update{}, err
	}

	notDone := false
	return Update{
		Messages:      []ChatMessage{msg},
		Stats:         usage,
		Plan:          &Plan{},
		TaskCompleted: &notDone,
	}, nil
}

// modelTurn is the free-choice turn with the current stage in the system prompt.
func (r *run) modelTurn(ctx context.Context) (Update, error) {
	system := stageSystemPrompt(r.g.cfg.SystemPrompt, r.st)
	msg, usage, err := r.callModel(ctx, NodeModel, system, nil, r.g.tools.Schemas(), ToolChoice{Mode: ToolChoiceAuto})
	if err != nil {
		return Update{}, err
	}
	return Update{Messages: []ChatMessage{msg}, Stats: usage}, nil
}

// proceed forces the model to either end the current stage or replan.
func (r *run) proceed(ctx context.Context) (Update, error) {
	if limit := r.g.cfg.MaxProceedRetries; limit > 0 && r.proceedStreak > limit+1 {
		return Update{}, wrapWithContext(ErrProceedStalled, r.steps, NodeProceed, "llm_call", "")
	}

	schemas := r.g.progressTools().Schemas()

	system := stageSystemPrompt(r.g.cfg.SystemPrompt, r.st) + "\n\n" + proceedMessage(r.proceedStreak)
	msg, usage, err := r.callModel(ctx, NodeProceed, system, nil, schemas, ToolChoice{Mode: ToolChoiceRequired})
	if err != nil {
		return Update{}, err
	}
	return Update{Messages: []ChatMessage{msg}, Stats: usage}, nil
}

// reflect appends a self-critique request, calls the model with tools bound
// but not callable and resets the failures-since-reflection counter by a negative delta.
func (r *run) reflect(ctx context.Context) (Update, error) {
	f := r.st.Stats.FailuresSinceLastReflection
	prompt := ChatMessage{Role: RoleUser, Content: reflectionMessage(r.st.Stats)}

	system := stageSystemPrompt(r.g.cfg.SystemPrompt, r.st)
	msg, usage, err := r.callModel(ctx, NodeReflection, system, []ChatMessage{prompt}, r.g.tools.Schemas(), ToolChoice{Mode: ToolChoiceNone})
	if err != nil {
		return Update{}, err
	}
	// Reflection must not act; any tool calls it produced anyway are dropped.
	msg.ToolCalls = nil

	usage.FailuresSinceLastReflection = -f
	r.g.logger.Info().Int("failures", r.st.Stats.Failures).Int("since_last", f).Msg("reflection")
	return Update{Messages: []ChatMessage{prompt, msg}, Stats: usage}, nil
}

// modelResult is one model invocation with reasoning already separated.
type modelResult struct {
	text      string
	reasoning string
	toolCalls []ToolCall
	usage     Usage
	finish    string
}

// callModel runs one model invocation and emits model-start, model-stream and
// model-end. The returned Stats carry only token usage.
func (r *run) callModel(ctx context.Context, node Node, system string, extra []ChatMessage, schemas []ToolSchema, choice ToolChoice) (ChatMessage, Stats, error) {
	msgs := make([]ChatMessage, 0, len(r.st.Messages)+len(extra)+1)
	msgs = append(msgs, ChatMessage{Role: RoleSystem, Content: system})
	msgs = append(msgs, r.st.Messages...)
	msgs = append(msgs, extra...)

	opts := ChatOptions{
		Temperature:     r.g.cfg.Temperature,
		MaxOutputTokens: r.g.cfg.MaxOutputTokens,
	}
	if len(schemas) > 0 {
		opts.ToolChoice = choice
	}

	runID := uuid.NewString()
	toolNames := make([]string, len(schemas))
	for i, s := range schemas {
		toolNames[i] = s.Name
	}
	r.g.emit.Dispatch(ctx, events.Event{
		Kind: events.KindModelStart, Name: string(node), RunID: runID,
		Payload: events.ModelStart{Node: string(node), Model: r.g.model, Messages: len(msgs), Tools: toolNames},
	})

	var (
		res modelResult
		err error
	)
	if r.g.cfg.Stream {
		res, err = r.streamModel(ctx, node, runID, msgs, schemas, opts)
	} else {
		res, err = r.chatModel(ctx, node, runID, msgs, schemas, opts)
	}
	if err != nil {
		return ChatMessage{}, Stats{}, wrapWithContext(err, r.steps, node, "llm_call", "")
	}

	for i := range res.toolCalls {
		if res.toolCalls[i].ID == "" {
			res.toolCalls[i].ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
		}
	}

	callNames := make([]string, len(res.toolCalls))
	for i, c := range res.toolCalls {
		callNames[i] = c.Name
	}
	r.g.emit.Dispatch(ctx, events.Event{
		Kind: events.KindModelEnd, Name: string(node), RunID: runID,
		Payload: events.ModelEnd{
			Node:         string(node),
			Text:         res.text,
			Reasoning:    res.reasoning,
			ToolCalls:    callNames,
			InputTokens:  res.usage.Prompt,
			OutputTokens: res.usage.Completion,
			FinishReason: res.finish,
		},
	})

	msg := ChatMessage{Role: RoleAssistant, Content: res.text, ToolCalls: res.toolCalls}
	return msg, Stats{InputTokens: res.usage.Prompt, OutputTokens: res.usage.Completion}, nil
}

func (r *run) chatModel(ctx context.Context, node Node, runID string, msgs []ChatMessage, schemas []ToolSchema, opts ChatOptions) (modelResult, error) {
	resp, err := RetryLLMCall(ctx, r.g.cfg.Retry, r.g.llm, r.g.model, msgs, schemas, opts,
		func(attempt int, delay time.Duration, err error) {
			r.g.logger.Warn().Err(err).Str("node", string(node)).Int("attempt", attempt).
				Dur("delay", delay).Msg("retrying model call")
		})
	if err != nil {
		return modelResult{}, err
	}

	text, reasoning := events.SplitReasoning(resp.Assistant.Content)
	if text != "" || reasoning != "" {
		r.g.emit.Dispatch(ctx, events.Event{
			Kind: events.KindModelStream, Name: string(node), RunID: runID,
			Payload: events.ModelChunk{Text: text, Reasoning: reasoning},
		})
	}

	calls := resp.ToolCalls
	if len(calls) == 0 {
		calls = resp.Assistant.ToolCalls
	}
	return modelResult{
		text:      text,
		reasoning: reasoning,
		toolCalls: append([]ToolCall(nil), calls...),
		usage:     resp.Usage,
		finish:    resp.FinishReason,
	}, nil
}

func (r *run) streamModel(ctx context.Context, node Node, runID string, msgs []ChatMessage, schemas []ToolSchema, opts ChatOptions) (modelResult, error) {
	deltaCh, errCh := r.g.llm.Stream(ctx, r.g.model, msgs, schemas, opts)

	var (
		res                modelResult
		split              events.ReasoningSplitter
		textBuf, reasonBuf strings.Builder
	)
	emitChunk := func(text, reasoning string) {
		textBuf.WriteString(text)
		reasonBuf.WriteString(reasoning)
		if text == "" && reasoning == "" {
			return
		}
		r.g.emit.Dispatch(ctx, events.Event{
			Kind: events.KindModelStream, Name: string(node), RunID: runID,
			Payload: events.ModelChunk{Text: text, Reasoning: reasoning},
		})
	}

	for deltaCh != nil || errCh != nil {
		select {
		case ev, ok := <-deltaCh:
			if !ok {
				deltaCh = nil
				continue
			}
			switch ev.Type {
			case StreamTextDelta:
				emitChunk(split.Push(ev.Text))
			case StreamToolCall:
				res.toolCalls = append(res.toolCalls, ev.ToolCall)
			case StreamUsage:
				res.usage = ev.Usage
			case StreamFinish:
				res.finish = ev.FinishReason
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return modelResult{}, err
			}
			// A nil error marks successful completion.
			errCh = nil
		case <-ctx.Done():
			return modelResult{}, ctx.Err()
		}
	}
	emitChunk(split.Flush())

	res.text = textBuf.String()
	res.reasoning = reasonBuf.String()
	return res, nil
}
