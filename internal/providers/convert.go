package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = float32(0.1)
)

// schemaObjects decodes each tool schema once so both providers can embed it.
func schemaObjects(schemas []engine.ToolSchema) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(schemas))
	for _, ts := range schemas {
		var obj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &obj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// decodeArgs parses raw tool arguments. A non-empty second value describes
// why they could not be used; the engine turns it into a failed envelope.
func decodeArgs(raw string) (map[string]any, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, ""
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		if !strings.HasSuffix(trimmed, "}") {
			return map[string]any{}, fmt.Sprintf("Arguments were cut off after %d bytes; the output limit is probably too low.", len(trimmed))
		}
		return map[string]any{}, fmt.Sprintf("Invalid JSON in arguments: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, ""
}

// encodeArgs is the inverse used when replaying history.
func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// toolResultContent keeps tool messages non-empty; both APIs reject empty results.
func toolResultContent(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

// pairedHistory drops tool results whose call is not in the preceding
// assistant turn. Providers reject such orphans.
func pairedHistory(messages []engine.ChatMessage) []engine.ChatMessage {
	out := make([]engine.ChatMessage, 0, len(messages))
	open := map[string]bool{}
	for _, m := range messages {
		switch m.Role {
		case engine.RoleAssistant:
			open = make(map[string]bool, len(m.ToolCalls))
			for _, c := range m.ToolCalls {
				open[c.ID] = true
			}
		case engine.RoleTool:
			if !open[m.ToolCallID] {
				continue
			}
			delete(open, m.ToolCallID)
		case engine.RoleUser:
			open = map[string]bool{}
		}
		out = append(out, m)
	}
	return out
}

func finishReason(hasCalls bool, raw string) string {
	switch {
	case hasCalls:
		return "tool_calls"
	case raw == "max_tokens" || raw == "length":
		return "length"
	case raw == "content_filter" || raw == "content_filtered" || raw == "refusal":
		return "content_filter"
	default:
		return "stop"
	}
}

var statusHints = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusPaymentRequired,
	http.StatusBadRequest,
}

// extractErrorMetadata finds the HTTP status and Retry-After hint of an SDK
// error, falling back to the error text when the SDK type is unknown.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	var status int
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	msg := err.Error()
	if status == 0 {
		for _, code := range statusHints {
			if strings.Contains(msg, fmt.Sprint(code)) {
				status = code
				break
			}
		}
	}

	var retryAfter string
	lower := strings.ToLower(msg)
	for _, marker := range []string{"retry-after:", "retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			if parts := strings.Fields(msg[idx+len(marker):]); len(parts) > 0 {
				retryAfter = strings.Trim(parts[0], ":,;")
			}
			break
		}
	}
	return status, retryAfter
}

func wrapError(err error) error {
	status, retryAfter := extractErrorMetadata(err)
	return engine.WrapLLMError(err, status, retryAfter)
}
