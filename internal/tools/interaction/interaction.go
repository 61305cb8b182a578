// Package interaction provides the tools that pause a run for a human:
// ask_user for a free-form decision and request_handoff for work only a
// person can do.
package interaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
)

func request(ctx context.Context, req broker.Request) (broker.Outcome, string, error) {
	b, ok := broker.FromContext(ctx)
	if !ok {
		return broker.Outcome{}, toolresponse.Fail("No user is attached to this session; continue without asking"), nil
	}
	out, err := b.Request(ctx, req)
	if err != nil {
		return broker.Outcome{}, "", err
	}
	return out, "", nil
}

// NewAskUserTool returns ask_user.
func NewAskUserTool() engine.Tool {
	return engine.Tool{
		Name:        "ask_user",
		Description: "Asks the user a question and waits for a free-form answer. Use only when the task cannot proceed without a decision.",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "question": {"type": "string"},
    "options": {"type": "array", "items": {"type": "string"}, "description": "Optional suggested answers"}
  },
  "required": ["question"]
}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			question, _ := args["question"].(string)
			question = strings.TrimSpace(question)
			if question == "" {
				return toolresponse.Fail("Error: question is required"), nil
			}
			payload := map[string]any{}
			if opts, ok := args["options"].([]any); ok && len(opts) > 0 {
				payload["options"] = opts
			}

			out, failed, err := request(ctx, broker.Request{Kind: broker.KindDecision, Prompt: question, Payload: payload})
			if err != nil || failed != "" {
				return failed, err
			}
			switch out.Status {
			case broker.StatusAnswered, broker.StatusApproved:
				return toolresponse.OK("User answered: "+out.Value, map[string]any{"answer": out.Value}), nil
			case broker.StatusTimeout:
				return toolresponse.Fail("The user did not answer in time; make a reasonable choice and state it"), nil
			}
			return toolresponse.Fail("The user declined to answer"), nil
		},
		Category: "interaction",
	}
}

// NewRequestHandoffTool returns request_handoff.
func NewRequestHandoffTool() engine.Tool {
	return engine.Tool{
		Name: "request_handoff",
		Description: "Hands control to the user for a step you cannot perform yourself (logging in, solving a captcha, physical action). " +
			"Blocks until the user resumes or gives up.",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "instructions": {"type": "string", "description": "What the user needs to do"}
  },
  "required": ["instructions"]
}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			instructions, _ := args["instructions"].(string)
			instructions = strings.TrimSpace(instructions)
			if instructions == "" {
				return toolresponse.Fail("Error: instructions are required"), nil
			}

			out, failed, err := request(ctx, broker.Request{Kind: broker.KindHandoff, Prompt: instructions})
			if err != nil || failed != "" {
				return failed, err
			}
			switch out.Status {
			case broker.StatusApproved, broker.StatusAnswered:
				msg := "User finished the handoff; control is back with you"
				if out.Value != "" {
					msg = fmt.Sprintf("%s. Note from user: %s", msg, out.Value)
				}
				return toolresponse.OK(msg, map[string]any{"note": out.Value}), nil
			case broker.StatusTimeout:
				return toolresponse.Fail("Handoff timed out before the user resumed"), nil
			}
			return toolresponse.Fail("User declined the handoff"), nil
		},
		Category: "interaction",
	}
}
