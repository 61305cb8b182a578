package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

const (
	maxLineBytes    = 1 << 20
	eventBufferSize = 256
)

// Stdio carries the protocol as NDJSON: one command per input line and one
// event per output line. Output is written by a single goroutine.
type Stdio struct {
	in     io.Reader
	writer *bufio.Writer
	logger zerolog.Logger

	events  chan Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	err     error
	errOnce sync.Once
}

// NewStdio starts the output writer.
func NewStdio(in io.Reader, out io.Writer, logger zerolog.Logger) *Stdio {
	s := &Stdio{
		in:     in,
		writer: bufio.NewWriter(out),
		logger: logger.With().Str("component", "stdio").Logger(),
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
	go s.flushEvents()
	return s
}

// Emit queues ev for writing. It blocks while the buffer is full and drops
// the event once the stream is closed or broken.
func (s *Stdio) Emit(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Debug().Str("event", string(ev.GetType())).Msg("dropping event after close")
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run reads commands until in is exhausted or ctx is done. Each line is
// handled on its own goroutine so a cancel_request is never queued behind a
// slow command. Run waits for in-flight handlers before returning.
func (s *Stdio) Run(ctx context.Context, handle func(context.Context, []byte)) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), line...):
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil && !errors.Is(err, io.EOF) {
						s.Emit(NewErrorEvent("", fmt.Sprintf("stdin error: %v", err), ErrorInvalidCommand, ""))
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle(ctx, line)
			}()
		}
	}
}

// Close flushes queued events and stops the writer. Later Emit calls are dropped.
func (s *Stdio) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	<-s.done
	return s.err
}

func (s *Stdio) flushEvents() {
	defer s.errOnce.Do(func() { close(s.done) })
	for ev := range s.events {
		if err := s.writeEvent(ev); err != nil {
			s.err = err
			s.logger.Error().Err(err).Msg("write event")
			s.errOnce.Do(func() { close(s.done) })
			// Keep draining so emitters never block on a dead stream.
			for range s.events {
			}
			return
		}
	}
}

func (s *Stdio) writeEvent(ev Event) error {
	payload, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return s.writer.Flush()
}
