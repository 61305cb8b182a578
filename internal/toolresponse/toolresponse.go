// Package toolresponse implements the envelope every tool call produces and
// every router parses: {"success": bool, "message": string, "data": {...}}.
package toolresponse

import (
	"encoding/json"
	"fmt"
)

// Response is the decoded form of a tool envelope.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Build serializes an envelope. The data key is present only when data is non-empty.
func Build(success bool, message string, data map[string]any) string {
	raw, err := json.Marshal(Response{Success: success, Message: message, Data: data})
	if err != nil {
		// Unmarshalable data (channels, funcs) must still yield a valid envelope.
		raw, _ = json.Marshal(Response{
			Success: false,
			Message: fmt.Sprintf("Tool response could not be encoded: %v", err),
		})
	}
	return string(raw)
}

// OK builds a successful envelope.
func OK(message string, data map[string]any) string {
	return Build(true, message, data)
}

// Fail builds a failed envelope without data.
func Fail(message string) string {
	return Build(false, message, nil)
}

// Failf is Fail with formatting.
func Failf(format string, args ...any) string {
	return Fail(fmt.Sprintf(format, args...))
}

// FromError converts an error raised by a tool into a failed envelope.
func FromError(err error) string {
	if err == nil {
		return Fail("Error: unknown error")
	}
	return Fail("Error: " + err.Error())
}

// String returns the wire form of r.
func (r Response) String() string {
	return Build(r.Success, r.Message, r.Data)
}

// Parse decodes raw into a Response. It never fails: malformed input yields
// a failed Response describing the problem.
func Parse(raw string) Response {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Response{Message: "Invalid JSON tool response: " + err.Error()}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return Response{Message: "Tool response is not an object: " + jsonType(v)}
	}

	var resp Response
	if s, ok := obj["success"].(bool); ok {
		resp.Success = s
	}
	if m, ok := obj["message"].(string); ok {
		resp.Message = m
	}

	switch d := obj["data"].(type) {
	case nil:
	case map[string]any:
		if len(d) > 0 {
			resp.Data = d
		}
	default:
		resp.Data = map[string]any{"value": d}
	}
	return resp
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
