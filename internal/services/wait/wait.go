// Package wait polls live page state until a condition holds.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// ErrTimeout is returned by Until when the predicate never held.
var ErrTimeout = errors.New("timed out waiting for condition")

// Condition is the state an element must reach.
type Condition int

const (
	// Present: at least one element matches.
	Present Condition = iota
	// Visible: a matching element is rendered with non-zero size.
	Visible
	// Absent: no matching element is visible.
	Absent
)

func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Visible:
		return "visible"
	case Absent:
		return "absent"
	}
	return fmt.Sprintf("condition(%d)", int(c))
}

// Engine blocks until conditions over the live page hold.
type Engine struct {
	interval time.Duration
	timeout  time.Duration
	logger   arbor.ILogger
}

// NewEngine creates an Engine polling every interval, giving up after
// timeout when a call does not supply its own.
func NewEngine(interval, timeout time.Duration, logger arbor.ILogger) *Engine {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Engine{interval: interval, timeout: timeout, logger: logger}
}

// Interval returns the poll interval.
func (e *Engine) Interval() time.Duration {
	return e.interval
}

// Timeout returns the default timeout.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// For blocks until cond holds for loc within scope, or timeout elapses
// (timeout <= 0 uses the engine default). A timeout is not an error: it is
// logged and reported as false, since elements are routinely late.
func (e *Engine) For(ctx context.Context, scope interfaces.Finder, cond Condition, loc interfaces.Locator, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = e.timeout
	}
	err := e.Until(ctx, timeout, func(ctx context.Context) (bool, error) {
		return check(ctx, scope, cond, loc)
	})
	if err != nil {
		e.logger.Debug().
			Str("locator", loc.String()).
			Str("condition", cond.String()).
			Dur("timeout", timeout).
			Err(err).
			Msg("Element did not reach condition in time")
		return false
	}
	return true
}

// Present is For with the Present condition.
func (e *Engine) Present(ctx context.Context, scope interfaces.Finder, loc interfaces.Locator, timeout time.Duration) bool {
	return e.For(ctx, scope, Present, loc, timeout)
}

// Visible is For with the Visible condition.
func (e *Engine) Visible(ctx context.Context, scope interfaces.Finder, loc interfaces.Locator, timeout time.Duration) bool {
	return e.For(ctx, scope, Visible, loc, timeout)
}

// Absent is For with the Absent condition.
func (e *Engine) Absent(ctx context.Context, scope interfaces.Finder, loc interfaces.Locator, timeout time.Duration) bool {
	return e.For(ctx, scope, Absent, loc, timeout)
}

// Until polls predicate until it reports true, returning ErrTimeout once
// timeout elapses or the context error when ctx ends. Stale element errors
// from the predicate count as "not yet"; any other error is returned.
func (e *Engine) Until(ctx context.Context, timeout time.Duration, predicate func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := predicate(ctx)
		if err != nil && !errors.Is(err, interfaces.ErrStaleElement) {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		if err := Sleep(ctx, e.interval); err != nil {
			return err
		}
	}
}

func check(ctx context.Context, scope interfaces.Finder, cond Condition, loc interfaces.Locator) (bool, error) {
	elements, err := scope.FindElements(ctx, loc)
	if err != nil {
		return false, err
	}
	switch cond {
	case Present:
		return len(elements) > 0, nil
	case Visible, Absent:
		for _, el := range elements {
			displayed, err := el.IsDisplayed(ctx)
			if errors.Is(err, interfaces.ErrStaleElement) {
				continue
			}
			if err != nil {
				return false, err
			}
			if displayed {
				return cond == Visible, nil
			}
		}
		return cond == Absent, nil
	}
	return false, fmt.Errorf("unknown condition %v", cond)
}

// Sleep pauses for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
