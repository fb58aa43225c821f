package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/services/artifacts"
	"github.com/ternarybob/amsc/internal/services/mets"
	"github.com/ternarybob/amsc/pkg/harness"
	"github.com/ternarybob/amsc/pkg/models"
)

// ErrStepFailed wraps the error of the step that stopped a run.
var ErrStepFailed = errors.New("scenario step failed")

// Orchestrator is the part of the harness steps drive.
type Orchestrator interface {
	StartTransfer(ctx context.Context, req models.TransferRequest) (models.Unit, error)
	ApproveTransfer(ctx context.Context, transferUUID string, transferType models.TransferType) error
	WaitForUnitToAppear(ctx context.Context, name string, unitType models.UnitType) (models.Unit, error)
	GetSIPUUID(ctx context.Context, transferName string) (string, error)
	AwaitJobCompletion(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (string, models.JobStatus, error)
	AwaitDecisionPoint(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (string, models.JobStatus, error)
	MakeChoice(ctx context.Context, choice, decisionPoint, unitUUID string, unitType models.UnitType) (models.DecisionChoice, error)
	ParseJob(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (*models.JobDetail, error)
	ParseNormalizationReport(ctx context.Context, sipUUID string) ([]models.ReportRow, error)
	SetProcessingConfigDecision(ctx context.Context, decision string, choice harness.ProcessingChoice) error
	SaveProcessingConfig(ctx context.Context) error
	WaitForAIPInArchivalStorage(ctx context.Context, aipUUID string) (bool, error)
	GetMETS(ctx context.Context, transferName, sipUUID string) (*mets.Document, error)
	ValidatePIDs(ctx context.Context, doc *mets.Document, accessionNo string) error
	DownloadAIP(ctx context.Context, transferName, aipUUID string) (string, error)
	DownloadPointerFile(ctx context.Context, aipUUID string) (string, error)
	SearchForAIPInStorageService(ctx context.Context, aipUUID string) ([]models.ReportRow, error)
	AddDummyMetadata(ctx context.Context, sipUUID string) error
	DecompressAIP(ctx context.Context, archivePath string) (string, bool)
	RemoveAllUnits(ctx context.Context, unitType models.UnitType) (int, error)
	CaptureFailure(ctx context.Context, name string) (artifacts.Capture, error)
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name     string
	Action   string
	Duration time.Duration
	Err      error
	// Capture is set when the step failed and artifacts were saved.
	Capture *artifacts.Capture
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Scenario string
	Steps    []StepResult
	// Vars holds every variable at the end of the run.
	Vars map[string]string
}

// Failed reports whether any step failed, including those that were
// allowed to continue.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// state is shared by the steps of one run.
type state struct {
	vars map[string]string
	job  *models.JobDetail
	mets *mets.Document
	rows []models.ReportRow
}

func (st *state) set(key, value string) {
	st.vars[key] = value
}

// action runs one step. Outputs go into st.
type action func(ctx context.Context, h Orchestrator, st *state, p params) error

// Runner executes scenarios against an Orchestrator.
type Runner struct {
	harness Orchestrator
	logger  arbor.ILogger
	actions map[string]action
}

// NewRunner creates a runner with every built-in action registered.
func NewRunner(h Orchestrator, logger arbor.ILogger) *Runner {
	r := &Runner{harness: h, logger: logger, actions: make(map[string]action)}
	for name, fn := range builtinActions {
		r.actions[name] = fn
	}
	return r
}

// Actions lists the registered action names, sorted.
func (r *Runner) Actions() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the steps of sc in order. A failing step has its artifacts
// captured; the run stops unless the step says on_error = "continue". The
// returned error wraps ErrStepFailed and the step's error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	for _, step := range sc.Steps {
		if _, ok := r.actions[step.Action]; !ok {
			return nil, fmt.Errorf("step %s: unknown action %q", step.Label(), step.Action)
		}
	}

	runID := common.NewRunID()
	logger := r.logger.WithCorrelationId(runID)
	st := &state{vars: make(map[string]string, len(sc.Vars))}
	for k, v := range sc.Vars {
		st.vars[k] = v
	}
	result := &Result{RunID: runID, Scenario: sc.Name, Vars: st.vars}

	logger.Info().
		Str("scenario", sc.Name).
		Int("step_count", len(sc.Steps)).
		Msg("Starting scenario")

	for i, step := range sc.Steps {
		logger.Info().
			Str("step", step.Label()).
			Str("action", step.Action).
			Int("step_index", i).
			Msg("Executing step")

		started := time.Now()
		err := r.runStep(ctx, step, st, logger)
		res := StepResult{Name: step.Label(), Action: step.Action, Duration: time.Since(started), Err: err}
		if err == nil {
			logger.Info().Str("step", step.Label()).Str("duration", res.Duration.String()).Msg("Step completed")
			result.Steps = append(result.Steps, res)
			continue
		}

		logger.Error().Err(err).Str("step", step.Label()).Str("duration", res.Duration.String()).Msg("Step failed")
		res.Capture = r.capture(ctx, sc, step, logger)
		result.Steps = append(result.Steps, res)

		if step.OnError == OnErrorContinue {
			logger.Warn().Str("step", step.Label()).Msg("Continuing after failed step")
			continue
		}
		return result, fmt.Errorf("%w: %s: %w", ErrStepFailed, step.Label(), err)
	}

	logger.Info().
		Str("scenario", sc.Name).
		Bool("failed", result.Failed()).
		Msg("Scenario finished")
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, st *state, logger arbor.ILogger) error {
	timeout, err := step.timeout()
	if err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	config := make(map[string]interface{}, len(step.Config))
	for k, v := range step.Config {
		config[k] = copyValue(v)
	}
	common.ReplaceInMap(config, st.vars, logger)

	return r.actions[step.Action](ctx, r.harness, st, params(config))
}

// capture saves failure artifacts. It runs on a fresh context so a step
// that failed by timing out still gets its screenshot.
func (r *Runner) capture(ctx context.Context, sc *Scenario, step Step, logger arbor.ILogger) *artifacts.Capture {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	capture, err := r.harness.CaptureFailure(ctx, sc.Name+"-"+step.Label())
	if err != nil {
		logger.Warn().Err(err).Str("step", step.Label()).Msg("Failed to capture artifacts")
	}
	if capture.Screenshot == "" && capture.Source == "" {
		return nil
	}
	logger.Info().
		Str("screenshot", capture.Screenshot).
		Str("source", capture.Source).
		Str("markdown", capture.Markdown).
		Msg("Failure artifacts saved")
	return &capture
}

// copyValue copies maps and lists so replacement never edits the scenario.
func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = copyValue(e)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(t))
		for i, e := range t {
			l[i] = copyValue(e)
		}
		return l
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
