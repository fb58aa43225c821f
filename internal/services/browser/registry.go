package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Registry tracks the sessions of a run: the current session most
// operations drive, plus auxiliary sessions opened for side work.
type Registry struct {
	driver interfaces.Driver
	logger arbor.ILogger

	mu      sync.Mutex
	current interfaces.Session
	open    []interfaces.Session
}

// NewRegistry creates a registry opening sessions from driver.
func NewRegistry(driver interfaces.Driver, logger arbor.ILogger) *Registry {
	return &Registry{driver: driver, logger: logger}
}

// Current returns the current session, opening one on first use.
func (r *Registry) Current(ctx context.Context) (interfaces.Session, error) {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()
	if current != nil {
		return current, nil
	}

	s, err := r.Open(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		r.current = s
	}
	return r.current, nil
}

// Open opens and tracks a new session without making it current.
func (r *Registry) Open(ctx context.Context) (interfaces.Session, error) {
	s, err := r.driver.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	r.mu.Lock()
	r.open = append(r.open, s)
	count := len(r.open)
	r.mu.Unlock()

	r.logger.Debug().Str("window", s.ID()).Int("open_sessions", count).Msg("Session opened")
	return s, nil
}

// ReplaceCurrent makes s the current session. The previous one stays open.
func (r *Registry) ReplaceCurrent(s interfaces.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = s
	for _, o := range r.open {
		if o == s {
			return
		}
	}
	r.open = append(r.open, s)
}

// Renew opens a fresh session, makes it current and closes the one it
// replaces.
func (r *Registry) Renew(ctx context.Context) (interfaces.Session, error) {
	s, err := r.Open(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	old := r.current
	r.current = s
	r.mu.Unlock()

	if old != nil {
		r.closeSession(old)
	}
	return s, nil
}

// WithAuxiliary runs fn in a fresh session, closing it afterwards whatever
// fn returns. The current session is untouched.
func (r *Registry) WithAuxiliary(ctx context.Context, fn func(s interfaces.Session) error) error {
	s, err := r.Open(ctx)
	if err != nil {
		return err
	}
	defer r.closeSession(s)
	return fn(s)
}

// Forget stops tracking s, typically after the caller closed it.
func (r *Registry) Forget(s interfaces.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.open {
		if o == s {
			r.open = append(r.open[:i], r.open[i+1:]...)
			break
		}
	}
	if r.current == s {
		r.current = nil
	}
}

func (r *Registry) closeSession(s interfaces.Session) {
	r.Forget(s)
	if err := s.Close(); err != nil {
		r.logger.Debug().Str("window", s.ID()).Err(err).Msg("Session close failed")
	}
}

// OpenCount returns how many tracked sessions are open.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

// CloseAll closes every tracked session. Errors are logged and swallowed
// so teardown always completes.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	open := r.open
	r.open = nil
	r.current = nil
	r.mu.Unlock()

	for _, s := range open {
		if err := s.Close(); err != nil {
			r.logger.Debug().Str("window", s.ID()).Err(err).Msg("Session close failed during teardown")
		}
	}
	r.logger.Debug().Int("sessions_closed", len(open)).Msg("All sessions closed")
}
