package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

type runningSession struct {
	session *Session
	cfg     Config
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Sessions owns every running game, keyed by group. One game runs per group.
type Sessions struct {
	ctx context.Context
	g   errgroup.Group

	mu       sync.Mutex
	sessions map[string]*runningSession

	// OnExit is called after a session's Run returns.
	OnExit func(groupID string, err error)
}

// NewSessions ties every session to ctx; cancelling it stops them all.
func NewSessions(ctx context.Context) *Sessions {
	return &Sessions{ctx: ctx, sessions: make(map[string]*runningSession)}
}

// Start creates a session from cfg and runs it in the background.
func (r *Sessions) Start(cfg Config) (*Session, error) {
	s, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rs, ok := r.sessions[cfg.GroupID]; ok && !rs.finished() {
		return nil, ErrSessionActive
	}

	ctx, cancel := context.WithCancel(r.ctx)
	rs := &runningSession{session: s, cfg: cfg, cancel: cancel, done: make(chan struct{})}
	r.sessions[cfg.GroupID] = rs

	r.g.Go(func() error {
		defer close(rs.done)
		defer cancel()
		err := s.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		rs.err = err
		if r.OnExit != nil {
			r.OnExit(cfg.GroupID, err)
		}
		return err
	})
	return s, nil
}

func (rs *runningSession) finished() bool {
	select {
	case <-rs.done:
		return true
	default:
		return false
	}
}

// Get returns the group's session, running or finished.
func (r *Sessions) Get(groupID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.sessions[groupID]
	if !ok {
		return nil, false
	}
	return rs.session, true
}

// Stop cancels the group's session, waits for it, and forgets it.
func (r *Sessions) Stop(groupID string) error {
	r.mu.Lock()
	rs, ok := r.sessions[groupID]
	if ok {
		delete(r.sessions, groupID)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	rs.cancel()
	<-rs.done
	return rs.err
}

// Restart stops the group's session and starts a fresh one with the same
// players and roles.
func (r *Sessions) Restart(groupID string) (*Session, error) {
	r.mu.Lock()
	rs, ok := r.sessions[groupID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := r.Stop(groupID); err != nil {
		return nil, err
	}
	cfg := rs.cfg
	players := make([]Player, len(cfg.Players))
	for i, p := range cfg.Players {
		players[i] = Player{ID: p.ID, Name: p.Name, Role: p.Role}
	}
	cfg.Players = players
	return r.Start(cfg)
}

// Wait blocks until every session has returned and reports the first
// session error.
func (r *Sessions) Wait() error {
	return r.g.Wait()
}
