// Package broker correlates out-of-band human interactions (confirmations,
// free-form decisions, handoffs) with the tool calls waiting on them.
package broker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
)

// Kind is the type of interaction.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindDecision     Kind = "decision"
	KindHandoff      Kind = "handoff"
)

// Status is how a request ended.
type Status string

const (
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusAnswered  Status = "answered"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// ErrUnknownKind is returned for requests with an unrecognized kind.
var ErrUnknownKind = errors.New("unknown interaction kind")

// Request describes what is being asked. A zero Timeout uses the broker default for Kind.
type Request struct {
	Kind    Kind
	Prompt  string
	Payload map[string]any
	Timeout time.Duration
}

// Outcome is the resolution delivered to the waiting caller.
type Outcome struct {
	RequestID string
	Status    Status
	Value     string
}

// Timeouts are the per-kind defaults.
type Timeouts struct {
	Confirmation time.Duration `yaml:"confirmation"`
	Decision     time.Duration `yaml:"decision"`
	Handoff      time.Duration `yaml:"handoff"`
}

// DefaultTimeouts returns 60s for confirmations, 3m for decisions and 5m for handoffs.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Confirmation: 60 * time.Second,
		Decision:     3 * time.Minute,
		Handoff:      5 * time.Minute,
	}
}

func (t Timeouts) forKind(k Kind) time.Duration {
	d := DefaultTimeouts()
	switch k {
	case KindConfirmation:
		return firstPositive(t.Confirmation, d.Confirmation)
	case KindDecision:
		return firstPositive(t.Decision, d.Decision)
	case KindHandoff:
		return firstPositive(t.Handoff, d.Handoff)
	}
	return 0
}

func firstPositive(a, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}

// Emitter receives interaction events. *events.Dispatcher implements it.
type Emitter interface {
	Dispatch(ctx context.Context, ev events.Event)
}

// Pending is a request still waiting for an answer.
type Pending struct {
	ID        string
	Request   Request
	CreatedAt time.Time
}

type entry struct {
	Pending
	ctx context.Context
	ch  chan Outcome
}

// Broker tracks any number of concurrently pending requests, each under its
// own id. Every request resolves exactly once.
type Broker struct {
	emit     Emitter
	timeouts Timeouts
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*entry
}

// New creates a broker that announces requests and resolutions through emit.
func New(emit Emitter, timeouts Timeouts, logger zerolog.Logger) *Broker {
	return &Broker{
		emit:     emit,
		timeouts: timeouts,
		logger:   logger.With().Str("component", "broker").Logger(),
		pending:  make(map[string]*entry),
	}
}

// SetEmitter swaps the event sink. Sessions rebind it for every run.
func (b *Broker) SetEmitter(emit Emitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emit = emit
}

// Request registers req, notifies the renderer and blocks until the request
// is resolved, times out or ctx is cancelled. Cancellation returns ctx.Err().
func (b *Broker) Request(ctx context.Context, req Request) (Outcome, error) {
	if req.Timeout <= 0 {
		req.Timeout = b.timeouts.forKind(req.Kind)
	}
	if req.Timeout <= 0 {
		return Outcome{}, ErrUnknownKind
	}

	e := &entry{
		Pending: Pending{ID: uuid.NewString(), Request: req, CreatedAt: time.Now()},
		ctx:     context.WithoutCancel(ctx),
		ch:      make(chan Outcome, 1),
	}

	b.mu.Lock()
	b.pending[e.ID] = e
	emit := b.emit
	b.mu.Unlock()

	b.logger.Debug().Str("request", e.ID).Str("kind", string(req.Kind)).Dur("timeout", req.Timeout).Msg("interaction requested")
	if emit != nil {
		emit.Dispatch(ctx, events.Event{
			Kind: requestedKind(req.Kind),
			Name: string(req.Kind),
			Payload: events.InteractionRequest{
				RequestID: e.ID,
				Kind:      string(req.Kind),
				Prompt:    req.Prompt,
				Payload:   req.Payload,
				Timeout:   req.Timeout,
			},
		})
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	select {
	case out := <-e.ch:
		return out, nil
	case <-timer.C:
		b.finish(e.ID, StatusTimeout, "")
		return <-e.ch, nil
	case <-ctx.Done():
		if b.finish(e.ID, StatusCancelled, "") {
			return Outcome{}, ctx.Err()
		}
		// Resolved concurrently with the cancel: the answer still wins.
		return <-e.ch, nil
	}
}

// Resolve answers a pending request. It returns false, doing nothing, when
// the id is unknown, already resolved or status is not a caller status.
func (b *Broker) Resolve(requestID string, status Status, value string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusAnswered:
	default:
		return false
	}
	return b.finish(requestID, status, value)
}

func (b *Broker) finish(id string, status Status, value string) bool {
	b.mu.Lock()
	e, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	emit := b.emit
	b.mu.Unlock()
	if !ok {
		return false
	}

	out := Outcome{RequestID: id, Status: status, Value: value}
	e.ch <- out

	b.logger.Debug().Str("request", id).Str("status", string(status)).Msg("interaction resolved")
	if emit != nil {
		emit.Dispatch(e.ctx, events.Event{
			Kind: resolvedKind(e.Request.Kind),
			Name: string(e.Request.Kind),
			Payload: events.InteractionResolution{
				RequestID: id,
				Kind:      string(e.Request.Kind),
				Status:    string(status),
				Value:     value,
			},
		})
	}
	return true
}

// Pending lists the open requests, oldest first.
func (b *Broker) Pending() []Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Pending, 0, len(b.pending))
	for _, e := range b.pending {
		out = append(out, e.Pending)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CancelAll resolves every pending request as cancelled.
func (b *Broker) CancelAll() {
	for _, p := range b.Pending() {
		b.finish(p.ID, StatusCancelled, "")
	}
}

func requestedKind(k Kind) events.Kind {
	if k == KindConfirmation {
		return events.KindConfirmationRequested
	}
	return events.KindDecisionRequested
}

func resolvedKind(k Kind) events.Kind {
	if k == KindConfirmation {
		return events.KindConfirmationResolved
	}
	return events.KindDecisionResolved
}

type ctxKey struct{}

// WithBroker returns ctx carrying b for tools.
func WithBroker(ctx context.Context, b *Broker) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the broker injected by the session, if any.
func FromContext(ctx context.Context) (*Broker, bool) {
	b, ok := ctx.Value(ctxKey{}).(*Broker)
	return b, ok && b != nil
}
