package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/internal/services/wait"
	"github.com/ternarybob/amsc/pkg/models"
)

// JobRow is a job's row within a group and the span carrying its name
// and id.
type JobRow struct {
	Row  interfaces.Element
	Name interfaces.Element
}

// FindJob returns the row of microservice within the group, matching names
// by squash. A nil row means the group renders no such job.
func (l *Locator) FindJob(ctx context.Context, g *Group, microservice string) (*JobRow, error) {
	rows, err := g.Element.FindElements(ctx, l.vocab.MustSelector(vocab.RoleJob))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		spans, err := row.FindElements(ctx, l.vocab.MustSelector(vocab.RoleJobMicroservice))
		if err != nil {
			return nil, err
		}
		for _, span := range spans {
			text, err := span.Text(ctx)
			if err != nil {
				return nil, err
			}
			if vocab.SquashEqual(text, microservice) {
				return &JobRow{Row: row, Name: span}, nil
			}
		}
	}
	return nil, nil
}

// ReadJob extracts the job id (the name span's title) and the status text.
func (l *Locator) ReadJob(ctx context.Context, jr *JobRow) (models.Job, error) {
	name, err := jr.Name.Text(ctx)
	if err != nil {
		return models.Job{}, err
	}
	id, err := jr.Name.Attribute(ctx, "title")
	if err != nil {
		return models.Job{}, err
	}
	statusEl, err := jr.Row.FindElement(ctx, l.vocab.MustSelector(vocab.RoleJobStatus))
	if err != nil {
		return models.Job{}, err
	}
	status, err := statusEl.Text(ctx)
	if err != nil {
		return models.Job{}, err
	}
	return models.Job{
		UUID:         strings.TrimSpace(id),
		Microservice: strings.TrimSpace(name),
		Status:       models.JobStatus(strings.TrimSpace(status)),
	}, nil
}

// WaitForVisible polls at the visibility interval until the job row of
// microservice is displayed.
func (l *Locator) WaitForVisible(ctx context.Context, s interfaces.Finder, microservice, group, unitUUID string) error {
	for {
		visible, err := wait.RetryOnStaleValue(ctx, l.logger, "job visibility", func(ctx context.Context) (bool, error) {
			g, err := l.LocateGroup(ctx, s, group, unitUUID)
			if err != nil || g == nil {
				return false, err
			}
			jr, err := l.FindJob(ctx, g, microservice)
			if err != nil || jr == nil {
				return false, err
			}
			return jr.Row.IsDisplayed(ctx)
		}, l.retryOpts()...)
		if err != nil {
			return err
		}
		if visible {
			return nil
		}
		if err := wait.Sleep(ctx, l.timing.VisibilityPollInterval.Duration); err != nil {
			return fmt.Errorf("waiting for job %q of unit %s: %w", microservice, unitUUID, err)
		}
	}
}

// AwaitJob polls the job of microservice on the unit until its status is
// one of accepted (the settled statuses when none are given). The accepted
// set holds for every poll. A missing group means the page is still
// rendering and polling continues; a group without the job is
// models.ErrJobNotFound. Only ctx bounds the wait.
func (l *Locator) AwaitJob(ctx context.Context, s interfaces.Finder, microservice, unitUUID string, accepted ...models.JobStatus) (models.Job, error) {
	if len(accepted) == 0 {
		accepted = models.SettledStatuses
	}
	name, group, err := l.vocab.Resolve(microservice)
	if err != nil {
		return models.Job{}, err
	}

	for polls := 1; ; polls++ {
		job, err := wait.RetryOnStaleValue(ctx, l.logger, "read job status", func(ctx context.Context) (*models.Job, error) {
			g, err := l.LocateGroup(ctx, s, group, unitUUID)
			if err != nil || g == nil {
				return nil, err
			}
			jr, err := l.FindJob(ctx, g, name)
			if err != nil {
				return nil, err
			}
			if jr == nil {
				return nil, fmt.Errorf("%w: %q in group %q of unit %s", models.ErrJobNotFound, name, group, unitUUID)
			}
			job, err := l.ReadJob(ctx, jr)
			if err != nil {
				return nil, err
			}
			return &job, nil
		}, l.retryOpts()...)
		if err != nil {
			return models.Job{}, err
		}

		if job != nil && job.Status.In(accepted) {
			job.Group = group
			job.UnitUUID = unitUUID
			l.logger.Info().
				Str("microservice", name).
				Str("job_uuid", job.UUID).
				Str("status", string(job.Status)).
				Int("polls", polls).
				Msg("Job settled")
			return *job, nil
		}

		if err := wait.Sleep(ctx, l.timing.JobPollInterval.Duration); err != nil {
			return models.Job{}, fmt.Errorf("waiting for job %q of unit %s: %w", name, unitUUID, err)
		}
	}
}
