package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Handler consumes one event. A returned error or a panic is converted into
// a fatal-error event.
type Handler func(ctx context.Context, ev Event) error

type handlerKey struct {
	kind Kind
	name string
}

type queuedEvent struct {
	ctx context.Context
	ev  Event
}

// Dispatcher routes events to handlers registered by (kind, name). Dispatch
// never blocks on handlers and never panics: events are queued and delivered
// in arrival order by a single goroutine per dispatcher.
type Dispatcher struct {
	logger zerolog.Logger

	hmu      sync.RWMutex
	handlers map[handlerKey]Handler

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queuedEvent
	pending int
	closed  bool
	done    chan struct{}
}

// NewDispatcher starts a dispatcher with no handlers.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		handlers: make(map[handlerKey]Handler),
		done:     make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Register installs h for kind. An empty name registers the kind-wide
// fallback; a non-empty name only matches events carrying that name.
func (d *Dispatcher) Register(kind Kind, name string, h Handler) {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	d.handlers[handlerKey{kind, name}] = h
}

// Dispatch queues ev for delivery. After Close, events are delivered inline.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.deliver(ctx, ev)
		return
	}
	d.queue = append(d.queue, queuedEvent{ctx: ctx, ev: ev})
	d.pending++
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Flush blocks until every event queued so far has been handled.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	for d.pending > 0 {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

// Close drains the queue and stops the delivery goroutine.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		q := d.queue[0]
		d.queue[0] = queuedEvent{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(q.ctx, q.ev)

		d.mu.Lock()
		d.pending--
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

func (d *Dispatcher) lookup(kind Kind, name string) Handler {
	d.hmu.RLock()
	defer d.hmu.RUnlock()
	if name != "" {
		if h, ok := d.handlers[handlerKey{kind, name}]; ok {
			return h
		}
	}
	return d.handlers[handlerKey{kind, ""}]
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	h := d.lookup(ev.Kind, ev.Name)
	if h == nil {
		return
	}
	err := safeCall(ctx, h, ev)
	if err == nil {
		return
	}

	if ev.Kind == KindFatalError {
		d.logger.Error().Err(err).Str("name", ev.Name).Msg("fatal-error handler failed")
		return
	}

	d.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Str("name", ev.Name).Msg("handler failed")
	fatal := Event{
		Kind:    KindFatalError,
		Name:    ev.Name,
		RunID:   ev.RunID,
		Payload: FatalError{Err: fmt.Errorf("%s handler: %w", ev.Kind, err)},
	}
	fh := d.lookup(KindFatalError, ev.Name)
	if fh == nil {
		return
	}
	if ferr := safeCall(ctx, fh, fatal); ferr != nil {
		d.logger.Error().Err(ferr).Str("name", ev.Name).Msg("fatal-error handler failed")
	}
}

func safeCall(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

// NewRendererDispatcher returns a dispatcher with every kind wired to the
// matching Renderer callback.
func NewRendererDispatcher(r Renderer, logger zerolog.Logger) *Dispatcher {
	d := NewDispatcher(logger)
	RegisterRenderer(d, r)
	return d
}

// RegisterRenderer installs kind-wide handlers that forward to r.
func RegisterRenderer(d *Dispatcher, r Renderer) {
	d.Register(KindTaskStarted, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(TaskStarted)
		if !ok {
			return payloadError(ev)
		}
		r.OnTaskStarted(ctx, p)
		return nil
	})
	d.Register(KindTaskFinished, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(TaskFinished)
		if !ok {
			return payloadError(ev)
		}
		r.OnTaskFinished(ctx, p)
		return nil
	})
	d.Register(KindModelStart, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(ModelStart)
		if !ok {
			return payloadError(ev)
		}
		r.OnLLMStart(ctx, ev.RunID, p)
		return nil
	})
	d.Register(KindModelStream, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(ModelChunk)
		if !ok {
			return payloadError(ev)
		}
		r.OnLLMChunk(ctx, ev.RunID, p.Text, p.Reasoning)
		return nil
	})
	d.Register(KindModelEnd, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(ModelEnd)
		if !ok {
			return payloadError(ev)
		}
		r.OnLLMEnd(ctx, ev.RunID, p)
		return nil
	})
	d.Register(KindToolStart, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(ToolStart)
		if !ok {
			return payloadError(ev)
		}
		r.OnToolStart(ctx, ev.RunID, ev.Name, p.Args)
		return nil
	})
	d.Register(KindToolEnd, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(ToolEnd)
		if !ok {
			return payloadError(ev)
		}
		r.OnToolEnd(ctx, ev.RunID, ev.Name, p.Output, p.Success, p.Summary)
		return nil
	})
	d.Register(KindToolError, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(ToolError)
		if !ok {
			return payloadError(ev)
		}
		r.OnToolError(ctx, ev.RunID, ev.Name, p.Err)
		return nil
	})
	d.Register(KindFatalError, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(FatalError)
		if !ok {
			return payloadError(ev)
		}
		r.OnFatalError(ctx, ev.RunID, ev.Name, p.Err)
		return nil
	})
	d.Register(KindStagesBuilt, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(StagesBuilt)
		if !ok {
			return payloadError(ev)
		}
		r.OnStagesBuilt(ctx, p)
		return nil
	})
	d.Register(KindStageStarted, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(StageStarted)
		if !ok {
			return payloadError(ev)
		}
		r.OnStageStarted(ctx, p)
		return nil
	})
	d.Register(KindStagesCompleted, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(StagesCompleted)
		if !ok {
			return payloadError(ev)
		}
		r.OnStagesCompleted(ctx, p)
		return nil
	})
	d.Register(KindStagesEdited, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(StagesEdited)
		if !ok {
			return payloadError(ev)
		}
		r.OnStagesEdited(ctx, p)
		return nil
	})
	d.Register(KindConfirmationRequested, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(InteractionRequest)
		if !ok {
			return payloadError(ev)
		}
		r.OnRequestConfirmation(ctx, p)
		return nil
	})
	d.Register(KindConfirmationResolved, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(InteractionResolution)
		if !ok {
			return payloadError(ev)
		}
		r.OnResolveConfirmation(ctx, p)
		return nil
	})
	d.Register(KindDecisionRequested, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(InteractionRequest)
		if !ok {
			return payloadError(ev)
		}
		r.OnRequestUserDecision(ctx, p)
		return nil
	})
	d.Register(KindDecisionResolved, "", func(ctx context.Context, ev Event) error {
		p, ok := ev.Payload.(InteractionResolution)
		if !ok {
			return payloadError(ev)
		}
		r.OnResolveUserDecision(ctx, p)
		return nil
	})
}

func payloadError(ev Event) error {
	return fmt.Errorf("unexpected payload %T for %s", ev.Payload, ev.Kind)
}
