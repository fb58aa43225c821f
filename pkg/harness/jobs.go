package harness

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/report"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/internal/services/wait"
	"github.com/ternarybob/amsc/pkg/models"
)

// unitSession returns the current session showing the tab unitType lives
// on.
func (h *Harness) unitSession(ctx context.Context, unitType models.UnitType) (interfaces.Session, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.navigate(ctx, s, h.unitURL(unitType), false); err != nil {
		return nil, err
	}
	return s, nil
}

// ExposeJob makes the job of microservice on the unit visible: it waits
// for its group, expands it and waits for the job row. It returns the
// resolved microservice and group names.
func (h *Harness) ExposeJob(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (string, string, error) {
	s, err := h.unitSession(ctx, unitType)
	if err != nil {
		return "", "", err
	}
	return h.locator.Expose(ctx, s, microservice, unitUUID)
}

// AwaitJobCompletion waits until the job of microservice on the unit has
// settled and returns its UUID and final status. Only ctx bounds the wait.
func (h *Harness) AwaitJobCompletion(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (string, models.JobStatus, error) {
	job, err := h.awaitJob(ctx, microservice, unitUUID, unitType)
	if err != nil {
		return "", "", err
	}
	return job.UUID, job.Status, nil
}

// AwaitDecisionPoint waits until the job of microservice on the unit is
// awaiting a decision.
func (h *Harness) AwaitDecisionPoint(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (string, models.JobStatus, error) {
	job, err := h.awaitJob(ctx, microservice, unitUUID, unitType, models.StatusAwaitingDecision)
	if err != nil {
		return "", "", err
	}
	return job.UUID, job.Status, nil
}

func (h *Harness) awaitJob(ctx context.Context, microservice, unitUUID string, unitType models.UnitType, accepted ...models.JobStatus) (models.Job, error) {
	s, err := h.unitSession(ctx, unitType)
	if err != nil {
		return models.Job{}, err
	}
	if _, _, err := h.locator.Expose(ctx, s, microservice, unitUUID); err != nil {
		return models.Job{}, err
	}
	return h.locator.AwaitJob(ctx, s, microservice, unitUUID, accepted...)
}

// MakeChoice selects choice on the unit's decision point once its options
// are offered.
func (h *Harness) MakeChoice(ctx context.Context, choice, decisionPoint, unitUUID string, unitType models.UnitType) (models.DecisionChoice, error) {
	s, err := h.unitSession(ctx, unitType)
	if err != nil {
		return models.DecisionChoice{}, err
	}
	if _, _, err := h.locator.Expose(ctx, s, decisionPoint, unitUUID); err != nil {
		return models.DecisionChoice{}, err
	}
	return h.locator.MakeChoice(ctx, s, choice, decisionPoint, unitUUID)
}

// ListDecisionChoices returns the options offered on the unit's decision
// point.
func (h *Harness) ListDecisionChoices(ctx context.Context, decisionPoint, unitUUID string, unitType models.UnitType) ([]models.DecisionChoice, error) {
	s, err := h.unitSession(ctx, unitType)
	if err != nil {
		return nil, err
	}
	if _, _, err := h.locator.Expose(ctx, s, decisionPoint, unitUUID); err != nil {
		return nil, err
	}
	return h.locator.ListChoices(ctx, s, decisionPoint, unitUUID)
}

// ParseJob waits for the job of microservice on the unit to settle and
// reads every task record of its tasks view, following pagination. The
// tasks view is read in an auxiliary session so the current one keeps its
// place.
func (h *Harness) ParseJob(ctx context.Context, microservice, unitUUID string, unitType models.UnitType) (*models.JobDetail, error) {
	s, err := h.unitSession(ctx, unitType)
	if err != nil {
		return nil, err
	}
	if _, _, err := h.locator.Expose(ctx, s, microservice, unitUUID); err != nil {
		return nil, err
	}
	// A job that just appeared may still flip its status once.
	if err := wait.Sleep(ctx, h.config.Timing.JobSettleDelay.Duration); err != nil {
		return nil, err
	}
	job, err := h.locator.AwaitJob(ctx, s, microservice, unitUUID)
	if err != nil {
		return nil, err
	}

	var tasks map[string]*models.Task
	err = h.sessions.WithAuxiliary(ctx, func(aux interfaces.Session) error {
		fetch := report.PageFetcherFunc(func(ctx context.Context, url string) (*goquery.Document, error) {
			return h.fetchPage(ctx, aux, url)
		})
		var err error
		tasks, err = report.CollectTasks(ctx, fetch, h.TasksURL(job.UUID),
			h.vocab.Version().TaskStyle(), h.vocab.Label(vocab.LabelNextPage), h.logger)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks of job %s: %w", job.UUID, err)
	}

	h.logger.Info().
		Str("microservice", job.Microservice).
		Str("job_uuid", job.UUID).
		Str("status", string(job.Status)).
		Int("tasks", len(tasks)).
		Msg("Parsed job")
	return &models.JobDetail{Job: job, Status: job.Status, Tasks: tasks}, nil
}

// fetchPage loads url in s, logging in when redirected, and parses the
// rendered source.
func (h *Harness) fetchPage(ctx context.Context, s interfaces.Session, url string) (*goquery.Document, error) {
	if err := h.navigate(ctx, s, url, true); err != nil {
		return nil, err
	}
	source, err := s.PageSource(ctx)
	if err != nil {
		return nil, err
	}
	return report.NewDocument(source)
}
