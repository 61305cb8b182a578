package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
)

type chanEmitter struct {
	mu  sync.Mutex
	all []events.Event
	req chan events.InteractionRequest
}

func newChanEmitter() *chanEmitter {
	return &chanEmitter{req: make(chan events.InteractionRequest, 8)}
}

func (e *chanEmitter) Dispatch(_ context.Context, ev events.Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
	if r, ok := ev.Payload.(events.InteractionRequest); ok {
		e.req <- r
	}
}

func (e *chanEmitter) kinds() []events.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Kind, len(e.all))
	for i, ev := range e.all {
		out[i] = ev.Kind
	}
	return out
}

func (e *chanEmitter) next(t *testing.T) events.InteractionRequest {
	t.Helper()
	select {
	case r := <-e.req:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no interaction request emitted")
		return events.InteractionRequest{}
	}
}

type result struct {
	out Outcome
	err error
}

func ask(b *Broker, ctx context.Context, req Request) <-chan result {
	ch := make(chan result, 1)
	go func() {
		out, err := b.Request(ctx, req)
		ch <- result{out, err}
	}()
	return ch
}

func TestRequestApproved(t *testing.T) {
	em := newChanEmitter()
	b := New(em, DefaultTimeouts(), zerolog.Nop())

	done := ask(b, context.Background(), Request{Kind: KindConfirmation, Prompt: "run rm -rf build?"})
	r := em.next(t)
	assert.Equal(t, "confirmation", r.Kind)
	assert.Equal(t, 60*time.Second, r.Timeout)
	require.Len(t, b.Pending(), 1)

	assert.True(t, b.Resolve(r.RequestID, StatusApproved, ""))
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StatusApproved, res.out.Status)
	assert.Equal(t, r.RequestID, res.out.RequestID)
	assert.Empty(t, b.Pending())
	assert.Equal(t, []events.Kind{events.KindConfirmationRequested, events.KindConfirmationResolved}, em.kinds())
}

func TestResolveOnlyOnce(t *testing.T) {
	em := newChanEmitter()
	b := New(em, DefaultTimeouts(), zerolog.Nop())

	done := ask(b, context.Background(), Request{Kind: KindDecision, Prompt: "which db?"})
	r := em.next(t)

	assert.True(t, b.Resolve(r.RequestID, StatusAnswered, "sqlite"))
	assert.False(t, b.Resolve(r.RequestID, StatusAnswered, "postgres"))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "sqlite", res.out.Value)
	assert.Equal(t, []events.Kind{events.KindDecisionRequested, events.KindDecisionResolved}, em.kinds())
}

func TestResolveUnknownOrReservedStatus(t *testing.T) {
	b := New(nil, DefaultTimeouts(), zerolog.Nop())
	assert.False(t, b.Resolve("nope", StatusApproved, ""))

	em := newChanEmitter()
	b.SetEmitter(em)
	done := ask(b, context.Background(), Request{Kind: KindConfirmation, Timeout: time.Second})
	r := em.next(t)
	assert.False(t, b.Resolve(r.RequestID, StatusTimeout, ""))
	assert.False(t, b.Resolve(r.RequestID, StatusCancelled, ""))
	assert.True(t, b.Resolve(r.RequestID, StatusRejected, ""))
	assert.Equal(t, StatusRejected, (<-done).out.Status)
}

func TestRequestTimesOut(t *testing.T) {
	em := newChanEmitter()
	b := New(em, Timeouts{Confirmation: 20 * time.Millisecond}, zerolog.Nop())

	out, err := b.Request(context.Background(), Request{Kind: KindConfirmation})
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, out.Status)
	assert.Empty(t, b.Pending())
	assert.False(t, b.Resolve(out.RequestID, StatusApproved, ""))
}

func TestRequestCancelled(t *testing.T) {
	em := newChanEmitter()
	b := New(em, DefaultTimeouts(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := ask(b, ctx, Request{Kind: KindHandoff, Prompt: "log in to the console"})
	r := em.next(t)
	cancel()

	res := <-done
	assert.True(t, errors.Is(res.err, context.Canceled))
	assert.Empty(t, b.Pending())
	assert.False(t, b.Resolve(r.RequestID, StatusApproved, ""))
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	em := newChanEmitter()
	b := New(em, DefaultTimeouts(), zerolog.Nop())

	first := ask(b, context.Background(), Request{Kind: KindDecision, Prompt: "a"})
	r1 := em.next(t)
	second := ask(b, context.Background(), Request{Kind: KindDecision, Prompt: "b"})
	r2 := em.next(t)
	require.NotEqual(t, r1.RequestID, r2.RequestID)
	require.Len(t, b.Pending(), 2)

	require.True(t, b.Resolve(r2.RequestID, StatusAnswered, "two"))
	assert.Equal(t, "two", (<-second).out.Value)
	require.Len(t, b.Pending(), 1)

	require.True(t, b.Resolve(r1.RequestID, StatusAnswered, "one"))
	assert.Equal(t, "one", (<-first).out.Value)
}

func TestCancelAll(t *testing.T) {
	em := newChanEmitter()
	b := New(em, DefaultTimeouts(), zerolog.Nop())

	done := ask(b, context.Background(), Request{Kind: KindConfirmation})
	em.next(t)
	b.CancelAll()

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StatusCancelled, res.out.Status)
}

func TestUnknownKind(t *testing.T) {
	b := New(nil, DefaultTimeouts(), zerolog.Nop())
	_, err := b.Request(context.Background(), Request{Kind: "survey"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	b := New(nil, DefaultTimeouts(), zerolog.Nop())
	got, ok := FromContext(WithBroker(context.Background(), b))
	require.True(t, ok)
	assert.Same(t, b, got)
}
