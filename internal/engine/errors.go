package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrRecursionLimit is returned when a run executes more nodes than allowed.
	ErrRecursionLimit = errors.New("recursion limit reached")
	// ErrProceedStalled is returned when the proceed node exhausts its retries.
	ErrProceedStalled = errors.New("model did not progress or replan")
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// EngineError wraps errors with classification metadata.
type EngineError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int
	RetryAfter  string
	IsRateLimit bool
	IsTimeout   bool
	IsNetwork   bool
	IsAuth      bool
	IsQuota     bool
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Class)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// ClassifyLLMError classifies an error from an LLM provider call.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Class
	}

	// A cancelled run must stop immediately.
	if errors.Is(err, context.Canceled) {
		return RetryClassNonRetryable
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case containsAny(errStr, "429", "rate limit", "too many requests"):
		return RetryClassRetryable
	case containsAny(errStr, "500", "502", "503", "504", "529",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded"):
		return RetryClassRetryable
	case containsAny(errStr, "context deadline exceeded", "deadline exceeded"):
		return RetryClassMaybe
	case containsAny(errStr, "timeout", "connection reset", "connection refused",
		"no such host", "network", "dns", "temporary failure", "unexpected eof"):
		return RetryClassRetryable
	case containsAny(errStr, "context length", "token limit", "maximum context length"):
		return RetryClassMaybe
	}

	// Authentication, bad requests, quota and safety refusals are never retried,
	// and neither is anything unrecognized.
	return RetryClassNonRetryable
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ExtractRetryAfter extracts the Retry-After value from an error.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.RetryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(engineErr.RetryAfter, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, engineErr.RetryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	if idx := strings.Index(errStr, "retry after "); idx >= 0 {
		var seconds int
		if _, err := fmt.Sscanf(errStr[idx:], "retry after %d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// WrapLLMError wraps an LLM provider error with classification metadata.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}

	class := ClassifyLLMError(err)
	switch {
	case httpStatus == http.StatusTooManyRequests || httpStatus >= 500:
		class = RetryClassRetryable
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden ||
		httpStatus == http.StatusBadRequest || httpStatus == http.StatusPaymentRequired:
		class = RetryClassNonRetryable
	}

	return &EngineError{
		Err:         err,
		Class:       class,
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsTimeout:   httpStatus == http.StatusGatewayTimeout || httpStatus == http.StatusRequestTimeout,
		IsNetwork:   httpStatus == 0 || httpStatus >= 500,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
		IsQuota:     httpStatus == http.StatusPaymentRequired,
	}
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
	IsGuarded   bool // True if this was a "maybe" class error with limited retries
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// EngineContextError wraps errors with execution context (step, node, tool, operation).
type EngineContextError struct {
	Err       error
	Step      int
	Node      Node
	ToolName  string
	Operation string // "llm_call", "tool_execution", "plan_update", ...
}

func (e *EngineContextError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("[step=%d node=%s op=%s tool=%s] %v",
			e.Step, e.Node, e.Operation, e.ToolName, e.Err)
	}
	return fmt.Sprintf("[step=%d node=%s op=%s] %v",
		e.Step, e.Node, e.Operation, e.Err)
}

func (e *EngineContextError) Unwrap() error {
	return e.Err
}

func wrapWithContext(err error, step int, node Node, operation, toolName string) error {
	if err == nil {
		return nil
	}
	return &EngineContextError{
		Err:       err,
		Step:      step,
		Node:      node,
		ToolName:  toolName,
		Operation: operation,
	}
}
