package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChamsBouzaiene/stagehand/internal/checkpoint"
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/workspace"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Session SessionConfig
	// IdleTTL closes sessions idle for longer. Zero disables the reaper.
	IdleTTL time.Duration
	Logger  zerolog.Logger
}

// Manager owns the live sessions of a process.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager starts a manager and, when IdleTTL is set, its reaper.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "manager").Logger(),
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		m.wg.Add(1)
		go m.reap()
	}
	return m
}

// Open returns the live session id, resumes it from the checkpointer, or
// creates it. An empty id creates a new session with a fresh id. Loading and
// workspace setup run without the manager lock so other sessions are never
// held up by them.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	cfg := m.cfg.Session
	m.mu.Unlock()

	var thread checkpoint.Thread
	if cfg.Checkpointer != nil {
		t, err := cfg.Checkpointer.LoadThread(ctx, id)
		switch {
		case err == nil:
			thread = t
		case errors.Is(err, checkpoint.ErrThreadNotFound):
		default:
			return nil, fmt.Errorf("load thread %s: %w", id, err)
		}
	}

	wsOpts := cfg.Workspace
	wsOpts.Logger = cfg.Logger
	ws, err := workspace.Open(ctx, wsOpts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok || m.closed {
		m.mu.Unlock()
		if cerr := ws.Close(); cerr != nil {
			m.logger.Warn().Err(cerr).Str("session", id).Msg("close duplicate workspace")
		}
		if !ok {
			return nil, ErrSessionClosed
		}
		return s, nil
	}
	s := newSession(id, thread, ws, cfg)
	m.sessions[id] = s
	m.mu.Unlock()

	if len(thread.Messages) > 0 {
		m.logger.Info().Str("session", id).Int("messages", len(thread.Messages)).Msg("resumed thread")
	}
	return s, nil
}

// SetEngineConfig replaces the engine settings used by sessions opened from
// now on. Live sessions keep theirs.
func (m *Manager) SetEngineConfig(cfg engine.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Session.Engine = cfg
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// FindByThread returns the live session currently writing thread threadID.
func (m *Manager) FindByThread(threadID string) (*Session, bool) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if s.ThreadID() == threadID {
			return s, true
		}
	}
	return nil, false
}

// Sessions lists the live session ids.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Reset starts a new thread in session id.
func (m *Manager) Reset(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Reset()
}

// Close tears down and forgets session id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Close()
}

// CloseAll stops the reaper and closes every session concurrently.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for id, s := range sessions {
		wg.Add(1)
		go func(id string, s *Session) {
			defer wg.Done()
			if err := s.Close(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("session %s: %w", id, err))
				mu.Unlock()
			}
		}(id, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) reap() {
	defer m.wg.Done()
	interval := max(m.cfg.IdleTTL/2, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.reapIdle(now)
		}
	}
}

func (m *Manager) reapIdle(now time.Time) {
	var idle []string
	m.mu.Lock()
	for id, s := range m.sessions {
		if since, ok := s.idleSince(); ok && now.Sub(since) > m.cfg.IdleTTL {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.logger.Info().Str("session", id).Dur("ttl", m.cfg.IdleTTL).Msg("reaping idle session")
		if err := m.Close(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn().Err(err).Str("session", id).Msg("reap failed")
		}
	}
}
