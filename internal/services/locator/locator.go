// Package locator finds units, microservice groups and jobs in the
// dashboard's Transfer and Ingest tabs.
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/internal/services/wait"
)

// Locator resolves the unit -> group -> job hierarchy of the live page.
type Locator struct {
	vocab  *vocab.Vocabulary
	waiter *wait.Engine
	timing common.TimingConfig
	logger arbor.ILogger
}

// Group is a microservice group header within one unit's container.
type Group struct {
	Name     string
	UnitUUID string
	Element  interfaces.Element
	// Expanded is true when the group's job list is displayed.
	Expanded bool
}

// New creates a Locator.
func New(v *vocab.Vocabulary, waiter *wait.Engine, timing common.TimingConfig, logger arbor.ILogger) *Locator {
	return &Locator{vocab: v, waiter: waiter, timing: timing, logger: logger}
}

// Vocabulary returns the vocabulary the locator resolves names with.
func (l *Locator) Vocabulary() *vocab.Vocabulary {
	return l.vocab
}

func (l *Locator) retryOpts() []wait.RetryOption {
	return []wait.RetryOption{wait.WithMaxAttempts(l.timing.StaleRetryLimit)}
}

// UnitContainer returns the container of the unit with unitUUID, or nil when
// the page shows no such unit.
func (l *Locator) UnitContainer(ctx context.Context, s interfaces.Finder, unitUUID string) (interfaces.Element, error) {
	containers, err := s.FindElements(ctx, l.vocab.MustSelector(vocab.RoleUnitContainer))
	if err != nil {
		return nil, err
	}
	rowID := interfaces.ID("sip-row-" + unitUUID)
	for _, container := range containers {
		rows, err := container.FindElements(ctx, rowID)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return container, nil
		}
	}
	return nil, nil
}

// LocateGroup returns the group labelled group inside the unit's container,
// or nil when either is not rendered.
func (l *Locator) LocateGroup(ctx context.Context, s interfaces.Finder, group, unitUUID string) (*Group, error) {
	container, err := l.UnitContainer(ctx, s, unitUUID)
	if err != nil || container == nil {
		return nil, err
	}

	expected := l.vocab.GroupLabel(group)
	groups, err := container.FindElements(ctx, l.vocab.MustSelector(vocab.RoleGroup))
	if err != nil {
		return nil, err
	}
	for _, el := range groups {
		names, err := el.FindElements(ctx, l.vocab.MustSelector(vocab.RoleGroupName))
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			continue
		}
		text, err := names[0].Text(ctx)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) != expected {
			continue
		}

		l.logger.Debug().
			Str("group", group).
			Str("unit_uuid", unitUUID).
			Msg("Microservice group matched")

		expanded, err := l.expanded(ctx, el)
		if err != nil {
			return nil, err
		}
		return &Group{Name: group, UnitUUID: unitUUID, Element: el, Expanded: expanded}, nil
	}
	return nil, nil
}

func (l *Locator) expanded(ctx context.Context, group interfaces.Element) (bool, error) {
	lists, err := group.FindElements(ctx, l.vocab.MustSelector(vocab.RoleGroupJobList))
	if err != nil || len(lists) == 0 {
		return false, err
	}
	return lists[0].IsDisplayed(ctx)
}

// EnsureExpanded clicks the group header when its job list is collapsed.
// Clicking toggles, so an expanded group is left alone.
func (l *Locator) EnsureExpanded(ctx context.Context, g *Group) error {
	if g.Expanded {
		return nil
	}
	if err := g.Element.Click(ctx); err != nil {
		return err
	}
	g.Expanded = true
	return nil
}

// WaitForGroup polls at the group poll interval until the group is
// rendered for the unit. Only ctx bounds the wait.
func (l *Locator) WaitForGroup(ctx context.Context, s interfaces.Finder, group, unitUUID string) (*Group, error) {
	for {
		g, err := wait.RetryOnStaleValue(ctx, l.logger, "locate group", func(ctx context.Context) (*Group, error) {
			return l.LocateGroup(ctx, s, group, unitUUID)
		}, l.retryOpts()...)
		if err != nil {
			return nil, err
		}
		if g != nil {
			return g, nil
		}
		if err := wait.Sleep(ctx, l.timing.GroupPollInterval.Duration); err != nil {
			return nil, fmt.Errorf("waiting for group %q of unit %s: %w", group, unitUUID, err)
		}
	}
}

// Expose resolves microservice to its display name and group, waits for the
// group, expands it and waits until the job row is displayed.
func (l *Locator) Expose(ctx context.Context, s interfaces.Finder, microservice, unitUUID string) (string, string, error) {
	name, group, err := l.vocab.Resolve(microservice)
	if err != nil {
		return "", "", err
	}

	l.logger.Debug().
		Str("microservice", name).
		Str("group", group).
		Str("unit_uuid", unitUUID).
		Msg("Exposing job")

	if _, err := l.WaitForGroup(ctx, s, group, unitUUID); err != nil {
		return "", "", err
	}
	err = wait.RetryOnStale(ctx, l.logger, "expand group", func(ctx context.Context) error {
		g, err := l.LocateGroup(ctx, s, group, unitUUID)
		if err != nil {
			return err
		}
		if g == nil {
			return fmt.Errorf("group %q of unit %s: %w", group, unitUUID, interfaces.ErrStaleElement)
		}
		return l.EnsureExpanded(ctx, g)
	}, l.retryOpts()...)
	if err != nil {
		return "", "", err
	}
	if err := l.WaitForVisible(ctx, s, name, group, unitUUID); err != nil {
		return "", "", err
	}
	return name, group, nil
}
