package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/scenario"
	"github.com/ternarybob/amsc/pkg/harness"
)

var _ scenario.Orchestrator = (*harness.Harness)(nil)

// App holds the components of one CLI invocation
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Harness *harness.Harness
	Runner  *scenario.Runner
}

// New wires the harness and the scenario runner. opts are passed to the
// harness, tests use them to swap the browser driver.
func New(cfg *common.Config, logger arbor.ILogger, opts ...harness.Option) (*App, error) {
	if logger == nil {
		logger = common.GetLogger()
	}
	opts = append([]harness.Option{harness.WithLogger(logger)}, opts...)

	h, err := harness.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize harness: %w", err)
	}

	a := &App{
		Config:  h.Config(),
		Logger:  logger,
		Harness: h,
		Runner:  scenario.NewRunner(h, logger),
	}

	logger.Info().
		Str("dashboard", a.Config.Dashboard.URL).
		Str("storage_service", a.Config.StorageService.URL).
		Str("version", a.Config.Dashboard.Version).
		Int("action_count", len(a.Runner.Actions())).
		Msg("Application initialized")
	return a, nil
}

// Close tears the harness down: browser sessions, driver, scratch directory
func (a *App) Close() error {
	if a.Harness == nil {
		return nil
	}
	if err := a.Harness.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close harness")
		return err
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}
