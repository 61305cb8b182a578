package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/runner"
)

// Session statuses reported in status events.
const (
	StatusReady           = "session_ready"
	StatusRunning         = "running"
	StatusIdle            = "idle"
	StatusCancelRequested = "cancel_requested"
	StatusNothingToCancel = "nothing_to_cancel"
	StatusReset           = "session_reset"
	StatusResolved        = "request_resolved"
	StatusThreadDeleted   = "thread_deleted"
)

// Handler executes commands for one client connection. Events go to Emit,
// which must be safe for concurrent use.
type Handler struct {
	mgr    *runner.Manager
	store  checkpoint.Store
	emit   func(Event)
	logger zerolog.Logger

	mu    sync.Mutex
	owned map[string]struct{}
}

// NewHandler returns a handler. store may be nil, in which case the thread
// commands report an error.
func NewHandler(mgr *runner.Manager, store checkpoint.Store, emit func(Event), logger zerolog.Logger) *Handler {
	return &Handler{
		mgr:    mgr,
		store:  store,
		emit:   emit,
		logger: logger.With().Str("component", "protocol").Logger(),
		owned:  make(map[string]struct{}),
	}
}

// HandleLine decodes and executes one raw command. Decode failures are
// reported as invalid_command error events.
func (h *Handler) HandleLine(ctx context.Context, line []byte) {
	cmd, err := DecodeCommand(line)
	if err != nil {
		h.emit(NewErrorEvent("", "invalid command", ErrorInvalidCommand, err.Error()))
		return
	}
	h.Handle(ctx, cmd)
}

// Handle executes cmd.
func (h *Handler) Handle(ctx context.Context, cmd Command) {
	h.logger.Debug().Str("command", string(cmd.GetType())).Msg("handling command")
	switch c := cmd.(type) {
	case StartSessionCommand:
		h.startSession(ctx, c)
	case UserMessageCommand:
		h.userMessage(c)
	case CancelRequestCommand:
		h.cancel(c)
	case ResolveRequestCommand:
		h.resolve(c)
	case ListThreadsCommand:
		h.listThreads(ctx)
	case DeleteThreadCommand:
		h.deleteThread(ctx, c)
	case ResetSessionCommand:
		h.reset(c)
	default:
		h.emit(NewErrorEvent("", fmt.Sprintf("unsupported command %q", cmd.GetType()), ErrorInvalidCommand, ""))
	}
}

// Sessions lists the ids of the sessions this handler opened.
func (h *Handler) Sessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.owned))
	for id := range h.owned {
		ids = append(ids, id)
	}
	return ids
}

// Close closes every session this handler opened.
func (h *Handler) Close() error {
	h.mu.Lock()
	ids := make([]string, 0, len(h.owned))
	for id := range h.owned {
		ids = append(ids, id)
	}
	h.owned = make(map[string]struct{})
	h.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := h.mgr.Close(id); err != nil && !errors.Is(err, runner.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) startSession(ctx context.Context, c StartSessionCommand) {
	s, err := h.mgr.Open(ctx, c.SessionID)
	if err != nil {
		h.emit(NewErrorEvent(c.SessionID, "failed to open session", ErrorSession, err.Error()))
		return
	}
	s.SetRenderer(NewRenderer(s.ID(), h.emit))

	h.mu.Lock()
	h.owned[s.ID()] = struct{}{}
	h.mu.Unlock()

	h.emit(NewStatusEvent(s.ID(), StatusReady, s.ThreadID(), ""))
	if hist := s.History(); len(hist) > 0 {
		h.emit(NewHistoryEvent(s.ID(), s.ThreadID(), checkpoint.TitleFrom(hist), visibleHistory(hist)))
	}
}

func (h *Handler) session(id string) (*runner.Session, bool) {
	s, ok := h.mgr.Get(id)
	if !ok {
		h.emit(NewErrorEvent(id, "session not found", ErrorSessionNotFound, "send start_session first"))
	}
	return s, ok
}

func (h *Handler) userMessage(c UserMessageCommand) {
	s, ok := h.session(c.SessionID)
	if !ok {
		return
	}
	done, err := s.Submit(c.Message)
	switch {
	case errors.Is(err, runner.ErrAlreadyRunning):
		h.emit(NewErrorEvent(c.SessionID, "a task is already running", ErrorBusy, ""))
		return
	case err != nil:
		h.emit(NewErrorEvent(c.SessionID, "failed to submit task", ErrorSession, err.Error()))
		return
	}
	h.emit(NewStatusEvent(c.SessionID, StatusRunning, s.ThreadID(), ""))

	go func() {
		res := <-done
		h.logger.Debug().Str("session", c.SessionID).Str("outcome", string(res.Outcome)).Msg("task ended")
		h.emit(NewStatusEvent(c.SessionID, StatusIdle, s.ThreadID(), string(res.Outcome)))
	}()
}

func (h *Handler) cancel(c CancelRequestCommand) {
	s, ok := h.session(c.SessionID)
	if !ok {
		return
	}
	if s.Cancel() {
		h.emit(NewStatusEvent(c.SessionID, StatusCancelRequested, s.ThreadID(), ""))
		return
	}
	h.emit(NewStatusEvent(c.SessionID, StatusNothingToCancel, s.ThreadID(), ""))
}

func (h *Handler) resolve(c ResolveRequestCommand) {
	s, ok := h.session(c.SessionID)
	if !ok {
		return
	}
	status, err := parseStatus(c.Status)
	if err != nil {
		h.emit(NewErrorEvent(c.SessionID, err.Error(), ErrorInvalidCommand, ""))
		return
	}
	if !s.Broker().Resolve(c.RequestID, status, c.Value) {
		h.emit(NewErrorEvent(c.SessionID, "no pending request "+c.RequestID, ErrorUnknownRequest, ""))
		return
	}
	h.emit(NewStatusEvent(c.SessionID, StatusResolved, s.ThreadID(), c.RequestID))
}

func (h *Handler) listThreads(ctx context.Context) {
	if h.store == nil {
		h.emit(NewErrorEvent("", "no checkpoint store configured", ErrorStore, ""))
		return
	}
	threads, err := h.store.ListThreads(ctx)
	if err != nil {
		h.emit(NewErrorEvent("", "failed to list threads", ErrorStore, err.Error()))
		return
	}
	h.emit(NewThreadsEvent(threads))
}

func (h *Handler) deleteThread(ctx context.Context, c DeleteThreadCommand) {
	if h.store == nil {
		h.emit(NewErrorEvent("", "no checkpoint store configured", ErrorStore, ""))
		return
	}
	if s, ok := h.mgr.FindByThread(c.ThreadID); ok {
		if s.Running() {
			h.emit(NewErrorEvent(s.ID(), "thread is in use by a running task", ErrorBusy, ""))
			return
		}
		// Closing flushes the session, so it must happen before the delete.
		if err := h.mgr.Close(s.ID()); err != nil {
			h.logger.Warn().Err(err).Str("session", s.ID()).Msg("close before delete")
		}
		h.mu.Lock()
		delete(h.owned, s.ID())
		h.mu.Unlock()
	}
	if err := h.store.DeleteThread(ctx, c.ThreadID); err != nil {
		kind := ErrorStore
		if errors.Is(err, checkpoint.ErrThreadNotFound) {
			kind = ErrorSessionNotFound
		}
		h.emit(NewErrorEvent("", "failed to delete thread", kind, err.Error()))
		return
	}
	h.emit(NewStatusEvent("", StatusThreadDeleted, c.ThreadID, ""))
}

func (h *Handler) reset(c ResetSessionCommand) {
	if err := h.mgr.Reset(c.SessionID); err != nil {
		kind := ErrorSession
		if errors.Is(err, runner.ErrSessionNotFound) {
			kind = ErrorSessionNotFound
		}
		h.emit(NewErrorEvent(c.SessionID, "failed to reset session", kind, err.Error()))
		return
	}
	threadID := ""
	if s, ok := h.mgr.Get(c.SessionID); ok {
		threadID = s.ThreadID()
	}
	h.emit(NewStatusEvent(c.SessionID, StatusReset, threadID, ""))
}

func parseStatus(s string) (broker.Status, error) {
	switch st := broker.Status(s); st {
	case broker.StatusApproved, broker.StatusRejected, broker.StatusAnswered:
		return st, nil
	default:
		return "", fmt.Errorf("invalid resolution status %q", s)
	}
}

// visibleHistory keeps the user and assistant turns that carry text.
func visibleHistory(msgs []engine.ChatMessage) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		if m.Role != engine.RoleUser && m.Role != engine.RoleAssistant {
			continue
		}
		out = append(out, HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
