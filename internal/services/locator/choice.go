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

// ChoiceMatches reports whether an option label matches the requested
// choice exactly after squashing.
func ChoiceMatches(option, choice string) bool {
	return vocab.SquashEqual(option, choice)
}

// ChoiceIndex returns the index of the first option that squash-equals
// choice, else the first whose squashed label contains the squashed
// choice, else -1.
func ChoiceIndex(options []string, choice string) int {
	for i, option := range options {
		if ChoiceMatches(option, choice) {
			return i
		}
	}
	want := vocab.Squash(choice)
	if want == "" {
		return -1
	}
	for i, option := range options {
		if strings.Contains(vocab.Squash(option), want) {
			return i
		}
	}
	return -1
}

// decisionSelect returns the choice control of the decision job and its
// option labels. A nil select means the control is not rendered yet.
func (l *Locator) decisionSelect(ctx context.Context, s interfaces.Finder, decisionPoint, unitUUID string) (interfaces.Element, []string, error) {
	name, group, err := l.vocab.Resolve(decisionPoint)
	if err != nil {
		return nil, nil, err
	}
	g, err := l.LocateGroup(ctx, s, group, unitUUID)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, fmt.Errorf("%w: group %q of unit %s is not rendered", models.ErrDecisionPointNotFound, group, unitUUID)
	}
	jr, err := l.FindJob(ctx, g, name)
	if err != nil {
		return nil, nil, err
	}
	if jr == nil {
		return nil, nil, fmt.Errorf("%w: %q in group %q", models.ErrDecisionPointNotFound, name, group)
	}

	actions, err := jr.Row.FindElements(ctx, l.vocab.MustSelector(vocab.RoleJobActions))
	if err != nil || len(actions) == 0 {
		return nil, nil, err
	}
	selects, err := actions[0].FindElements(ctx, l.vocab.MustSelector(vocab.RoleJobChoice))
	if err != nil || len(selects) == 0 {
		return nil, nil, err
	}
	options, err := selects[0].Options(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(options) == 0 {
		return nil, nil, nil
	}
	return selects[0], options, nil
}

// MakeChoice selects the option matching choice on the job awaiting a
// decision. While the select is absent or has no options the attempt is
// retried every decision retry interval.
func (l *Locator) MakeChoice(ctx context.Context, s interfaces.Finder, choice, decisionPoint, unitUUID string) (models.DecisionChoice, error) {
	for {
		picked, err := wait.RetryOnStaleValue(ctx, l.logger, "make choice", func(ctx context.Context) (*models.DecisionChoice, error) {
			sel, options, err := l.decisionSelect(ctx, s, decisionPoint, unitUUID)
			if err != nil || sel == nil {
				return nil, err
			}
			index := ChoiceIndex(options, choice)
			if index < 0 {
				return nil, fmt.Errorf("%w: %q among %q", models.ErrChoiceNotFound, choice, options)
			}
			if err := sel.SelectByIndex(ctx, index); err != nil {
				return nil, err
			}
			return &models.DecisionChoice{Index: index, Label: options[index]}, nil
		}, l.retryOpts()...)
		if err != nil {
			return models.DecisionChoice{}, err
		}
		if picked != nil {
			l.logger.Info().
				Str("decision_point", decisionPoint).
				Str("choice", picked.Label).
				Str("unit_uuid", unitUUID).
				Msg("Decision made")
			return *picked, nil
		}
		if err := wait.Sleep(ctx, l.timing.DecisionRetryInterval.Duration); err != nil {
			return models.DecisionChoice{}, fmt.Errorf("waiting for choices of %q: %w", decisionPoint, err)
		}
	}
}

// ListChoices returns the options offered by the decision job, waiting like
// MakeChoice until the select is populated.
func (l *Locator) ListChoices(ctx context.Context, s interfaces.Finder, decisionPoint, unitUUID string) ([]models.DecisionChoice, error) {
	for {
		options, err := wait.RetryOnStaleValue(ctx, l.logger, "list choices", func(ctx context.Context) ([]string, error) {
			_, options, err := l.decisionSelect(ctx, s, decisionPoint, unitUUID)
			return options, err
		}, l.retryOpts()...)
		if err != nil {
			return nil, err
		}
		if len(options) > 0 {
			choices := make([]models.DecisionChoice, len(options))
			for i, label := range options {
				choices[i] = models.DecisionChoice{Index: i, Label: label}
			}
			return choices, nil
		}
		if err := wait.Sleep(ctx, l.timing.DecisionRetryInterval.Duration); err != nil {
			return nil, fmt.Errorf("waiting for choices of %q: %w", decisionPoint, err)
		}
	}
}
