package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
)

// Emitter receives lifecycle events. *events.Dispatcher implements it.
type Emitter interface {
	Dispatch(ctx context.Context, ev events.Event)
}

type nopEmitter struct{}

func (nopEmitter) Dispatch(context.Context, events.Event) {}

// StepFunc is called after every node with the state as it stands.
type StepFunc func(node Node, st *AgentState)

// Graph is the staged control loop. A Graph holds no per-run state and may
// run many states sequentially; concurrent runs need separate states.
type Graph struct {
	llm    LLMClient
	model  string
	tools  ToolRegistry
	cfg    Config
	emit   Emitter
	logger zerolog.Logger
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithEmitter sets the event sink.
func WithEmitter(e Emitter) GraphOption {
	return func(g *Graph) {
		if e != nil {
			g.emit = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) GraphOption {
	return func(g *Graph) { g.logger = l }
}

// NewGraph builds a control loop over llm and the given registry.
func NewGraph(llm LLMClient, model string, tools ToolRegistry, cfg Config, opts ...GraphOption) *Graph {
	g := &Graph{
		llm:    llm,
		model:  model,
		tools:  tools,
		cfg:    cfg.withDefaults(),
		emit:   nopEmitter{},
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	g.logger = g.logger.With().Str("component", "graph").Str("model", model).Logger()
	return g
}

// Config returns the effective configuration.
func (g *Graph) Config() Config { return g.cfg }

// run is the per-invocation bookkeeping of Run.
type run struct {
	g             *Graph
	st            *AgentState
	steps         int
	proceedStreak int
}

// Run drives st from start to end. The state is updated in place, so on any
// error the caller still holds the partial progress. Cancellation is
// returned wrapping ctx.Err().
func (g *Graph) Run(ctx context.Context, st *AgentState, onStep StepFunc) error {
	r := &run{g: g, st: st}
	node := Route(NodeStart, st, g.cfg.ReflectionThreshold)

	for node != NodeEnd {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execution cancelled: %w", err)
		}
		if r.steps >= g.cfg.RecursionLimit {
			return fmt.Errorf("%w: %d node executions without finishing", ErrRecursionLimit, g.cfg.RecursionLimit)
		}
		r.steps++

		if node == NodeProceed {
			r.proceedStreak++
		} else {
			r.proceedStreak = 0
		}

		g.logger.Debug().Int("step", r.steps).Str("node", string(node)).
			Int("stage", st.CurrentStage).Int("total", st.TotalStages).Msg("node start")

		u, err := r.exec(ctx, node)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("execution cancelled: %w", errors.Join(ctx.Err(), err))
			}
			return err
		}
		if err := u.Validate(); err != nil {
			return wrapWithContext(err, r.steps, node, "apply", "")
		}
		st.Apply(u)
		if onStep != nil {
			onStep(node, st)
		}

		node = Route(node, st, g.cfg.ReflectionThreshold)
	}
	return nil
}

func (r *run) exec(ctx context.Context, node Node) (Update, error) {
	switch node {
	case NodeBuild:
		return r.build(ctx)
	case NodeModel:
		return r.modelTurn(ctx)
	case NodeProceed:
		return r.proceed(ctx)
	case NodeTools:
		return r.toolsNode(ctx)
	case NodeReflection:
		return r.reflect(ctx)
	}
	return Update{}, fmt.Errorf("unknown node %q", node)
}
