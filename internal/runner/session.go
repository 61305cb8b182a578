package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/events"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

var (
	// ErrAlreadyRunning is returned by Submit while a task is in flight.
	ErrAlreadyRunning = errors.New("session is already running a task")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrShutdownTimeout is returned by Close when the worker does not stop in time.
	ErrShutdownTimeout = errors.New("session worker did not stop in time")
)

const cancelledNote = "[System note: the user cancelled the previous task before it finished. " +
	"Confirm whether they want to resume it or start something new.]"

// SessionConfig is shared by every session a Manager opens.
type SessionConfig struct {
	LLM             engine.LLMClient
	Model           string
	Tools           engine.ToolRegistry
	Engine          engine.Config
	Checkpointer    checkpoint.Store
	Timeouts        broker.Timeouts
	Workspace       workspace.Options
	Renderers       []events.Renderer // always attached, e.g. logging and metrics
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

type task struct {
	text   string
	result chan Result
}

// Session is one conversation thread with its own worker goroutine, broker
// and workspace. At most one task runs at a time.
type Session struct {
	id     string
	cfg    SessionConfig
	ws     *workspace.Workspace
	broker *broker.Broker
	logger zerolog.Logger

	tasks      chan task
	workerDone chan struct{}

	mu            sync.Mutex
	threadID      string
	messages      []engine.ChatMessage
	stats         engine.Stats
	renderer      events.Renderer
	active        *Runner
	running       bool
	cancelPending bool
	taskDone      chan struct{}
	closed        bool
	lastCancelled bool
	lastActive    time.Time
	createdAt     time.Time
}

// newSession starts the worker. thread may be empty for a fresh thread.
func newSession(id string, thread checkpoint.Thread, ws *workspace.Workspace, cfg SessionConfig) *Session {
	if thread.ID == "" {
		thread.ID = id
	}
	s := &Session{
		id:         id,
		cfg:        cfg,
		ws:         ws,
		logger:     cfg.Logger.With().Str("component", "session").Str("session", id).Logger(),
		tasks:      make(chan task, 1),
		workerDone: make(chan struct{}),
		threadID:   thread.ID,
		messages:   thread.Messages,
		stats:      thread.Stats,
		lastActive: time.Now(),
		createdAt:  time.Now(),
	}
	s.broker = broker.New(nil, cfg.Timeouts, cfg.Logger)
	go s.worker()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Broker is where transports resolve interaction requests.
func (s *Session) Broker() *broker.Broker { return s.broker }

// ThreadID is the checkpoint thread the session writes to.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// SetRenderer attaches the transport renderer used by subsequent runs.
func (s *Session) SetRenderer(r events.Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer = r
}

// History returns a copy of the conversation so far.
func (s *Session) History() []engine.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.ChatMessage(nil), s.messages...)
}

// Stats returns the accumulated stats of every task in the thread.
func (s *Session) Stats() engine.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return engine.Stats{}.Merge(s.stats)
}

// Running reports whether a task is in flight.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, !s.running && !s.closed
}

// Submit queues text as the next user message. The returned channel
// receives the result once the run ends.
func (s *Session) Submit(text string) (<-chan Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.running {
		return nil, ErrAlreadyRunning
	}
	s.running = true
	s.cancelPending = false
	s.taskDone = make(chan struct{})
	s.lastActive = time.Now()

	t := task{text: text, result: make(chan Result, 1)}
	s.tasks <- t
	return t.result, nil
}

// Run is Submit followed by waiting for the result.
func (s *Session) Run(ctx context.Context, text string) (Result, error) {
	ch, err := s.Submit(text)
	if err != nil {
		return Result{}, err
	}
	select {
	case res := <-ch:
		if res.Outcome == events.OutcomeCancelled {
			return res, res.Err
		}
		return res, nil
	case <-ctx.Done():
		s.Cancel()
		res := <-ch
		return res, res.Err
	}
}

// Cancel stops the active task, if any. It reports whether one was running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	r, running := s.active, s.running
	if running && r == nil {
		s.cancelPending = true
	}
	s.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
	return running
}

// Reset cancels any active task, waits for it to end and starts a new empty
// thread. The old thread stays in the checkpointer.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	done := s.taskDone
	running := s.running
	s.mu.Unlock()
	if running {
		s.Cancel()
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = uuid.NewString()
	s.messages = nil
	s.stats = engine.Stats{}
	s.lastCancelled = false
	s.lastActive = time.Now()
	return nil
}

func (s *Session) worker() {
	defer close(s.workerDone)
	for t := range s.tasks {
		t.result <- s.execute(t.text)
	}
}

func (s *Session) execute(text string) Result {
	s.mu.Lock()
	content := text
	if s.lastCancelled {
		content = cancelledNote + "\n\n" + text
		s.lastCancelled = false
	}
	msgs := append(append([]engine.ChatMessage(nil), s.messages...), engine.ChatMessage{Role: engine.RoleUser, Content: content})

	renderers := append(events.MultiRenderer(nil), s.cfg.Renderers...)
	if s.renderer != nil {
		renderers = append(renderers, s.renderer)
	}
	r := New(Config{
		SessionID:    s.id,
		ThreadID:     s.threadID,
		Task:         text,
		Messages:     msgs,
		Stats:        s.stats,
		Renderer:     renderers,
		Checkpointer: s.cfg.Checkpointer,
		LLM:          s.cfg.LLM,
		Model:        s.cfg.Model,
		Tools:        s.cfg.Tools,
		Engine:       s.cfg.Engine,
		Broker:       s.broker,
		Workspace:    s.ws,
		Logger:       s.cfg.Logger,
	})
	s.active = r
	if s.cancelPending {
		r.Cancel()
	}
	s.mu.Unlock()

	res, _ := r.Run(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = res.State.Messages
	s.stats = s.stats.Merge(res.State.Stats)
	s.lastCancelled = res.Outcome == events.OutcomeCancelled
	s.active = nil
	s.running = false
	s.cancelPending = false
	close(s.taskDone)
	s.lastActive = time.Now()
	s.logger.Info().Str("outcome", string(res.Outcome)).Int("messages", len(s.messages)).Msg("task done")
	return res
}

// Close tears the session down: cancel the run, queued or active, wait for it
// to end, close the workspace, flush the checkpoint, then stop the worker. The
// shutdown timeout bounds both waits together.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	r, running, done := s.active, s.running, s.taskDone
	if running && r == nil {
		s.cancelPending = true
	}
	s.mu.Unlock()

	if r != nil {
		r.Cancel()
	}
	s.broker.CancelAll()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var errs []error
	timedOut := false
	if running {
		select {
		case <-done:
		case <-deadline.C:
			timedOut = true
		}
	}

	if s.ws != nil {
		if err := s.ws.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close workspace: %w", err))
		}
	}
	if err := s.flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush checkpoint: %w", err))
	}

	close(s.tasks)
	if !timedOut {
		select {
		case <-s.workerDone:
		case <-deadline.C:
			timedOut = true
		}
	}
	if timedOut {
		errs = append(errs, ErrShutdownTimeout)
	}
	s.logger.Debug().Msg("session closed")
	return errors.Join(errs...)
}

func (s *Session) flush() error {
	if s.cfg.Checkpointer == nil {
		return nil
	}
	s.mu.Lock()
	thread := checkpoint.Thread{ID: s.threadID, Messages: s.messages, Stats: s.stats}
	s.mu.Unlock()
	if len(thread.Messages) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()
	return s.cfg.Checkpointer.SaveThread(ctx, thread)
}
