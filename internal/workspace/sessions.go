package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

var (
	ErrUnknownTool    = errors.New("unknown tool")
	ErrUnknownSession = errors.New("workspace session not found")
)

// Sessions holds every open controller by id.
type Sessions struct {
	opts Options
	ttl  time.Duration

	mu   sync.RWMutex
	byID map[string]*Controller
}

// NewSessions creates a registry whose sessions share opts. Sessions idle
// for longer than ttl are closed by Reap; zero keeps them forever.
func NewSessions(opts Options, ttl time.Duration) *Sessions {
	return &Sessions{opts: opts, ttl: ttl, byID: make(map[string]*Controller)}
}

// Open starts a session for the named tool.
func (s *Sessions) Open(tool string) (*Controller, error) {
	spec, ok := Lookup(tool)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
	c := NewController(uuid.NewString(), spec, s.opts)

	s.mu.Lock()
	s.byID[c.ID()] = c
	s.mu.Unlock()
	s.opts.Metrics.SessionOpened()
	logging.Logf("[WORKSPACE] Opened %s session %s", spec.Tool, c.ID())
	return c, nil
}

func (s *Sessions) Get(id string) (*Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close removes a session and revokes everything it created.
func (s *Sessions) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	s.opts.Metrics.SessionClosed()
	return c.Close(ctx)
}

// CloseAll closes every session. Used on shutdown.
func (s *Sessions) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	all := s.byID
	s.byID = make(map[string]*Controller)
	s.mu.Unlock()

	var errs []error
	for _, c := range all {
		s.opts.Metrics.SessionClosed()
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reap closes sessions untouched since before now minus the TTL. Sessions
// that are processing are left alone.
func (s *Sessions) Reap(ctx context.Context, now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	var stale []*Controller
	for id, c := range s.byID {
		if _, busy := c.State().(Processing); busy {
			continue
		}
		if c.LastUsed().Before(cutoff) {
			stale = append(stale, c)
			delete(s.byID, id)
		}
	}
	s.mu.Unlock()

	for _, c := range stale {
		s.opts.Metrics.SessionClosed()
		if err := c.Close(ctx); err != nil {
			logging.Warnf("[WORKSPACE] Closing idle session %s: %v", c.ID(), err)
		}
	}
	if len(stale) > 0 {
		logging.Logf("[WORKSPACE] Reaped %d idle sessions", len(stale))
	}
	if s.opts.Jobs != nil {
		s.opts.Jobs.Prune(cutoff)
	}
	return len(stale)
}

// RunReaper calls Reap every interval until ctx is done.
func (s *Sessions) RunReaper(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Reap(ctx, now)
		}
	}
}
