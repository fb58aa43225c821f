// Package browser drives a Chrome instance over the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/interfaces"
)

// Driver launches (or attaches to) one browser and opens a tab per session.
type Driver struct {
	config        common.BrowserConfig
	logger        arbor.ILogger
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	rootTarget    string

	mu       sync.Mutex
	sessions map[string]*Session
	started  bool
}

// NewDriver starts the browser described by config. A non-empty RemoteURL
// attaches to an already running browser instead of launching one.
func NewDriver(ctx context.Context, config common.BrowserConfig, logger arbor.ILogger) (*Driver, error) {
	startTime := time.Now()
	d := &Driver{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*Session),
	}

	if config.RemoteURL != "" {
		d.allocCtx, d.allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.RemoteURL)
	} else {
		allocatorOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", config.Headless),
			chromedp.Flag("disable-gpu", config.DisableGPU),
			chromedp.Flag("no-sandbox", config.NoSandbox),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-popup-blocking", true),
			chromedp.Flag("disable-background-timer-throttling", false),
			chromedp.Flag("disable-renderer-backgrounding", false),
		)
		if config.ExecPath != "" {
			allocatorOpts = append(allocatorOpts, chromedp.ExecPath(config.ExecPath))
		}
		if config.UserAgent != "" {
			allocatorOpts = append(allocatorOpts, chromedp.UserAgent(config.UserAgent))
		}
		if config.WindowWidth > 0 && config.WindowHeight > 0 {
			allocatorOpts = append(allocatorOpts, chromedp.WindowSize(config.WindowWidth, config.WindowHeight))
		}
		d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	}

	d.browserCtx, d.browserCancel = chromedp.NewContext(d.allocCtx)

	// The first Run starts the browser; its initial tab stays open as the
	// root so that closing every session never exits the browser.
	startCtx, cancel := context.WithTimeout(d.browserCtx, 30*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		d.browserCancel()
		d.allocCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}
	if c := chromedp.FromContext(d.browserCtx); c != nil && c.Target != nil {
		d.rootTarget = string(c.Target.TargetID)
	}
	d.started = true

	logger.Info().
		Bool("headless", config.Headless).
		Str("remote_url", config.RemoteURL).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser started")

	return d, nil
}

// NewSession opens a new tab.
func (d *Driver) NewSession(ctx context.Context) (interfaces.Session, error) {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("browser is shut down")
	}

	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx)
	s := &Session{driver: d, ctx: tabCtx, cancel: tabCancel, logger: d.logger}
	if err := s.exec(ctx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		s.id = string(c.Target.TargetID)
	}
	d.track(s)

	d.logger.Debug().Str("window", s.id).Msg("Browser session opened")
	return s, nil
}

// attach returns a session for an existing tab, such as one opened by a
// page script.
func (d *Driver) attach(ctx context.Context, id string) (*Session, error) {
	d.mu.Lock()
	if s, ok := d.sessions[id]; ok {
		d.mu.Unlock()
		return s, nil
	}
	d.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(targetID(id)))
	s := &Session{driver: d, ctx: tabCtx, cancel: tabCancel, id: id, logger: d.logger}
	if err := s.exec(ctx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to attach to window %s: %w", id, err)
	}
	d.track(s)
	return s, nil
}

func (d *Driver) track(s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[s.id] = s
}

func (d *Driver) forget(s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, s.id)
}

// Shutdown closes every tab and the browser.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		d.logger.Debug().Msg("Browser already shut down")
		return nil
	}
	d.started = false
	sessions := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		if err := chromedp.Cancel(d.browserCtx); err != nil {
			d.logger.Debug().Err(err).Msg("Browser did not close gracefully")
		}
		d.browserCancel()
		d.allocCancel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		d.logger.Warn().Msg("Browser shutdown timed out, forcing cleanup")
		d.browserCancel()
		d.allocCancel()
	}

	d.logger.Info().Int("sessions_closed", len(sessions)).Msg("Browser shut down")
	return nil
}
