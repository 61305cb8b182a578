// Package protocol defines the JSON commands clients send and the events the
// agent streams back. The stdio transport frames them as NDJSON and the
// websocket transport as one message per frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CommandType enumerates all supported client -> agent commands.
type CommandType string

const (
	CommandStartSession   CommandType = "start_session"
	CommandUserMessage    CommandType = "user_message"
	CommandCancelRequest  CommandType = "cancel_request"
	CommandResolveRequest CommandType = "resolve_request"
	CommandListThreads    CommandType = "list_threads"
	CommandDeleteThread   CommandType = "delete_thread"
	CommandResetSession   CommandType = "reset_session"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// StartSessionCommand opens a session, resuming its thread when one exists.
// An empty SessionID creates a new session.
type StartSessionCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
}

func (c StartSessionCommand) GetType() CommandType { return CommandStartSession }

// UserMessageCommand submits the next task.
type UserMessageCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
}

func (c UserMessageCommand) GetType() CommandType { return CommandUserMessage }

// CancelRequestCommand cancels the running task of a session.
type CancelRequestCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
}

func (c CancelRequestCommand) GetType() CommandType { return CommandCancelRequest }

// ResolveRequestCommand answers a pending confirmation, decision or handoff.
// Status is approved, rejected or answered.
type ResolveRequestCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id"`
	Status    string      `json:"status"`
	Value     string      `json:"value,omitempty"`
}

func (c ResolveRequestCommand) GetType() CommandType { return CommandResolveRequest }

// ListThreadsCommand asks for the stored threads.
type ListThreadsCommand struct {
	Type CommandType `json:"type"`
}

func (c ListThreadsCommand) GetType() CommandType { return CommandListThreads }

// DeleteThreadCommand removes a stored thread.
type DeleteThreadCommand struct {
	Type     CommandType `json:"type"`
	ThreadID string      `json:"thread_id"`
}

func (c DeleteThreadCommand) GetType() CommandType { return CommandDeleteThread }

// ResetSessionCommand starts a new empty thread in a session.
type ResetSessionCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
}

func (c ResetSessionCommand) GetType() CommandType { return CommandResetSession }

type rawCommand struct {
	Type CommandType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandStartSession:
		var cmd StartSessionCommand
		return cmd, decodeInto(data, &cmd, base.Type)
	case CommandUserMessage:
		var cmd UserMessageCommand
		if err := decodeInto(data, &cmd, base.Type); err != nil {
			return nil, err
		}
		if cmd.SessionID == "" {
			return nil, errors.New("user_message requires session_id")
		}
		if cmd.Message == "" {
			return nil, errors.New("user_message requires message")
		}
		return cmd, nil
	case CommandCancelRequest:
		var cmd CancelRequestCommand
		if err := decodeInto(data, &cmd, base.Type); err != nil {
			return nil, err
		}
		if cmd.SessionID == "" {
			return nil, errors.New("cancel_request requires session_id")
		}
		return cmd, nil
	case CommandResolveRequest:
		var cmd ResolveRequestCommand
		if err := decodeInto(data, &cmd, base.Type); err != nil {
			return nil, err
		}
		if cmd.SessionID == "" || cmd.RequestID == "" {
			return nil, errors.New("resolve_request requires session_id and request_id")
		}
		if cmd.Status == "" {
			return nil, errors.New("resolve_request requires status")
		}
		return cmd, nil
	case CommandListThreads:
		var cmd ListThreadsCommand
		return cmd, decodeInto(data, &cmd, base.Type)
	case CommandDeleteThread:
		var cmd DeleteThreadCommand
		if err := decodeInto(data, &cmd, base.Type); err != nil {
			return nil, err
		}
		if cmd.ThreadID == "" {
			return nil, errors.New("delete_thread requires thread_id")
		}
		return cmd, nil
	case CommandResetSession:
		var cmd ResetSessionCommand
		if err := decodeInto(data, &cmd, base.Type); err != nil {
			return nil, err
		}
		if cmd.SessionID == "" {
			return nil, errors.New("reset_session requires session_id")
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type: %q", base.Type)
	}
}

func decodeInto(data []byte, dst any, t CommandType) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", t, err)
	}
	return nil
}
