// Package harness drives the Archivematica dashboard and Storage Service
// through a remote-controlled browser. It is the API acceptance scenarios
// are written against: start transfers, await jobs and decision points,
// make choices and read back tasks, reports and generated documents.
//
// Every operation blocks until it completes or ctx is done. A Harness is
// driven by one scenario at a time.
package harness

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/httpclient"
	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/artifacts"
	"github.com/ternarybob/amsc/internal/services/browser"
	"github.com/ternarybob/amsc/internal/services/locator"
	"github.com/ternarybob/amsc/internal/services/mets"
	"github.com/ternarybob/amsc/internal/services/storageservice"
	"github.com/ternarybob/amsc/internal/services/tools"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/internal/services/wait"
)

// Config is the harness configuration.
type Config = common.Config

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return common.NewDefaultConfig()
}

// LoadConfig merges the TOML files in order over the defaults, applies
// AMSC_* environment overrides and validates the result.
func LoadConfig(paths ...string) (*Config, error) {
	return common.LoadFromFiles(paths...)
}

// Harness is the workflow orchestrator. Create it with New and release it
// with Close.
type Harness struct {
	config   *Config
	logger   arbor.ILogger
	vocab    *vocab.Vocabulary
	waiter   *wait.Engine
	locator  *locator.Locator
	sessions *browser.Registry
	driver   interfaces.Driver

	httpClient *http.Client
	resolver   mets.Resolver
	archiver   *tools.Archiver
	copier     *tools.Copier
	recorder   *artifacts.Recorder

	mu       sync.Mutex
	ssAPIKey string
	ss       *storageservice.Client
	tmpReady bool
}

// Option customizes a Harness.
type Option func(*options)

type options struct {
	driver      interfaces.Driver
	logger      arbor.ILogger
	httpClient  *http.Client
	runner      tools.Runner
	resolver    mets.Resolver
	resolverSet bool
}

// WithDriver replaces the Chrome driver, typically with an in-memory
// browser in tests.
func WithDriver(d interfaces.Driver) Option {
	return func(o *options) { o.driver = d }
}

// WithLogger sets the logger. The default is common.GetLogger().
func WithLogger(logger arbor.ILogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the client used for downloads, document fetches and
// identifier resolution.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRunner sets how external tools (7z, scp) are executed.
func WithRunner(r tools.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithResolver sets how URI identifiers are checked by ValidatePIDs. A nil
// resolver skips resolution.
func WithResolver(r mets.Resolver) Option {
	return func(o *options) {
		o.resolver = r
		o.resolverSet = true
	}
}

// New builds a harness from cfg. No browser is started until the first
// operation needs a session.
func New(cfg *Config, opts ...Option) (*Harness, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = common.GetLogger()
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.NewDefaultHTTPClient(cfg.Timing.HTTPTimeout.Duration)
	}
	if o.driver == nil {
		o.driver = &lazyDriver{config: cfg.Browser, logger: o.logger}
	}
	if !o.resolverSet {
		o.resolver = mets.NewHTTPResolver(o.httpClient, cfg.Timing.HTTPRateLimit, o.logger)
	}

	v, err := vocab.New(vocab.Version(cfg.Dashboard.Version), o.logger,
		vocab.WithStrictGroups(cfg.Vocabulary.StrictGroups),
		vocab.WithOverlayFile(cfg.Vocabulary.File),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	waiter := wait.NewEngine(cfg.Timing.WaitPollInterval.Duration, cfg.Timing.ElementTimeout.Duration, o.logger)
	h := &Harness{
		config:     cfg,
		logger:     o.logger,
		vocab:      v,
		waiter:     waiter,
		locator:    locator.New(v, waiter, cfg.Timing, o.logger),
		sessions:   browser.NewRegistry(o.driver, o.logger),
		driver:     o.driver,
		httpClient: o.httpClient,
		resolver:   o.resolver,
		archiver:   tools.NewArchiver(o.runner, cfg.Paths.TmpDir, o.logger),
		copier:     tools.NewCopier(o.runner, cfg.Server, cfg.Dashboard.URL, cfg.Paths.TmpDir, o.logger),
		recorder:   artifacts.NewRecorder(cfg.Paths.ArtifactsDir, o.logger),
		ssAPIKey:   cfg.StorageService.APIKey,
	}

	h.logger.Debug().
		Str("dashboard", cfg.Dashboard.URL).
		Str("storage_service", cfg.StorageService.URL).
		Str("version", cfg.Dashboard.Version).
		Msg("Harness created")
	return h, nil
}

// Config returns the configuration the harness was built with.
func (h *Harness) Config() *Config {
	return h.config
}

// Vocabulary returns the name and selector tables for the configured
// dashboard version.
func (h *Harness) Vocabulary() *vocab.Vocabulary {
	return h.vocab
}

// Session returns the current browser session.
func (h *Harness) Session(ctx context.Context) (interfaces.Session, error) {
	return h.sessions.Current(ctx)
}

// TmpDir returns the scratch directory, creating it on first use.
func (h *Harness) TmpDir() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	dir := h.config.Paths.TmpDir
	if !h.tmpReady {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create scratch directory: %w", err)
		}
		h.tmpReady = true
	}
	return dir, nil
}

// Close closes every session, shuts the browser down and empties the
// scratch directory. Failures are logged, never returned, so teardown
// always runs to the end.
func (h *Harness) Close() error {
	h.sessions.CloseAll()
	if err := h.driver.Shutdown(); err != nil {
		h.logger.Warn().Err(err).Msg("Browser shutdown failed")
	}
	h.clearTmpDir()
	return nil
}

func (h *Harness) clearTmpDir() {
	dir := h.config.Paths.TmpDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to read scratch directory")
		}
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			h.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove scratch entry")
		}
	}
	h.logger.Debug().Str("dir", dir).Int("removed", len(entries)).Msg("Scratch directory cleared")
}

// lazyDriver starts Chrome on the first session request.
type lazyDriver struct {
	config common.BrowserConfig
	logger arbor.ILogger

	mu     sync.Mutex
	driver *browser.Driver
}

func (d *lazyDriver) NewSession(ctx context.Context) (interfaces.Session, error) {
	d.mu.Lock()
	if d.driver == nil {
		drv, err := browser.NewDriver(ctx, d.config, d.logger)
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
		d.driver = drv
	}
	drv := d.driver
	d.mu.Unlock()
	return drv.NewSession(ctx)
}

func (d *lazyDriver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.driver == nil {
		return nil
	}
	err := d.driver.Shutdown()
	d.driver = nil
	return err
}
