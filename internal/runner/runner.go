// Package runner drives one task through the engine graph (Runner), keeps a
// conversation alive across tasks (Session) and owns the set of live
// sessions (Manager).
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
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

// ErrCancelled is returned by Run when the task was cancelled. It wraps
// context.Canceled.
var ErrCancelled = fmt.Errorf("run cancelled: %w", context.Canceled)

const checkpointTimeout = 5 * time.Second

// Config is everything one run needs. Messages is the full history with the
// new user message last. Stats are the thread totals before this run; the run
// itself starts from zero and checkpoints store the sum.
type Config struct {
	SessionID    string
	ThreadID     string
	Task         string
	Messages     []engine.ChatMessage
	Stats        engine.Stats
	Renderer     events.Renderer
	Checkpointer checkpoint.Store
	LLM          engine.LLMClient
	Model        string
	Tools        engine.ToolRegistry
	Engine       engine.Config
	Broker       *broker.Broker
	Workspace    *workspace.Workspace
	Logger       zerolog.Logger
}

// Result is the end state of a run. State.Stats count this run only.
type Result struct {
	State   engine.AgentState
	Outcome events.Outcome
	Err     error
}

// Runner executes one task. It is single use.
type Runner struct {
	cfg    Config
	graph  *engine.Graph
	state  *engine.AgentState
	disp   *events.Dispatcher
	logger zerolog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
	finished  bool
	snapshot  engine.AgentState
}

// New builds a fresh graph, state and dispatcher for cfg.
func New(cfg Config) *Runner {
	if cfg.ThreadID == "" {
		cfg.ThreadID = uuid.NewString()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = events.NopRenderer{}
	}
	logger := cfg.Logger.With().Str("component", "runner").Str("thread", cfg.ThreadID).Logger()

	disp := events.NewRendererDispatcher(cfg.Renderer, logger)
	st := engine.NewState(cfg.Messages)

	graph := engine.NewGraph(cfg.LLM, cfg.Model, cfg.Tools, cfg.Engine,
		engine.WithEmitter(disp),
		engine.WithLogger(cfg.Logger),
	)

	return &Runner{
		cfg:      cfg,
		graph:    graph,
		state:    st,
		disp:     disp,
		logger:   logger,
		snapshot: st.Snapshot(),
	}
}

// Cancel stops the run. It is safe from any goroutine, idempotent, and a
// no-op once the run has finished.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.cancelled {
		return
	}
	r.cancelled = true
	if r.cancel != nil {
		r.cancel()
	}
}

// Run drives the graph to completion. Cancellation returns the partial state
// with ErrCancelled. Any other failure, panics included, is reported through
// a fatal-error event and Outcome failed, with a nil error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	if r.cancelled {
		cancel()
	}
	r.mu.Unlock()

	if r.cfg.Broker != nil {
		r.cfg.Broker.SetEmitter(r.disp)
		ctx = broker.WithBroker(ctx, r.cfg.Broker)
	}
	if r.cfg.Workspace != nil {
		ctx = workspace.WithWorkspace(ctx, r.cfg.Workspace)
	}

	start := time.Now()
	r.disp.Dispatch(ctx, events.Event{
		Kind:    events.KindTaskStarted,
		Payload: events.TaskStarted{SessionID: r.cfg.SessionID, ThreadID: r.cfg.ThreadID, Task: r.cfg.Task},
	})

	err := r.runGraph(ctx)

	res := Result{Outcome: events.OutcomeCompleted}
	switch {
	case err == nil:
		res.State = r.state.Snapshot()
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		res.Outcome = events.OutcomeCancelled
		res.Err = fmt.Errorf("%w: %w", ErrCancelled, err)
		res.State = r.state.Snapshot()
	default:
		res.Outcome = events.OutcomeFailed
		res.Err = err
		res.State = r.lastSnapshot()
		r.logger.Error().Err(err).Msg("run failed")
		r.disp.Dispatch(ctx, events.Event{Kind: events.KindFatalError, Payload: events.FatalError{Err: err}})
	}

	r.saveCheckpoint(res.State)

	finished := events.TaskFinished{
		SessionID:     r.cfg.SessionID,
		ThreadID:      r.cfg.ThreadID,
		Outcome:       res.Outcome,
		TaskCompleted: res.State.TaskCompleted,
		InputTokens:   res.State.Stats.InputTokens,
		OutputTokens:  res.State.Stats.OutputTokens,
		Duration:      time.Since(start),
	}
	if res.Err != nil {
		finished.Error = res.Err.Error()
	}
	r.disp.Dispatch(ctx, events.Event{Kind: events.KindTaskFinished, Payload: finished})
	r.disp.Close()

	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()

	if res.Outcome == events.OutcomeCancelled {
		return res, res.Err
	}
	return res, nil
}

func (r *Runner) runGraph(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("graph panicked")
			err = fmt.Errorf("graph panic: %v", p)
		}
	}()
	return r.graph.Run(ctx, r.state, r.onStep)
}

func (r *Runner) onStep(node engine.Node, st *engine.AgentState) {
	snap := st.Snapshot()
	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()
	r.saveCheckpoint(snap)
}

func (r *Runner) lastSnapshot() engine.AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// saveCheckpoint is best effort: failures are logged and the run goes on.
func (r *Runner) saveCheckpoint(st engine.AgentState) {
	if r.cfg.Checkpointer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()
	err := r.cfg.Checkpointer.SaveThread(ctx, checkpoint.Thread{
		ID:       r.cfg.ThreadID,
		Messages: st.Messages,
		Stats:    r.cfg.Stats.Merge(st.Stats),
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("checkpoint save failed")
	}
}
