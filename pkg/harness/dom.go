package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/vocab"
)

// typeInto sends text to the element matched by loc.
func typeInto(ctx context.Context, scope interfaces.Finder, loc interfaces.Locator, text string) error {
	el, err := scope.FindElement(ctx, loc)
	if err != nil {
		return err
	}
	return el.SendKeys(ctx, text)
}

func click(ctx context.Context, scope interfaces.Finder, loc interfaces.Locator) error {
	el, err := scope.FindElement(ctx, loc)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// selectByText selects the option of a select element whose label is text,
// falling back to the first label that squash-equals it.
func selectByText(ctx context.Context, sel interfaces.Element, text string) error {
	labels, err := sel.Options(ctx)
	if err != nil {
		return err
	}
	index := -1
	for i, label := range labels {
		if strings.TrimSpace(label) == text {
			index = i
			break
		}
	}
	if index < 0 {
		for i, label := range labels {
			if vocab.SquashEqual(label, text) {
				index = i
				break
			}
		}
	}
	if index < 0 {
		return fmt.Errorf("no option %q among %q", text, labels)
	}
	return sel.SelectByIndex(ctx, index)
}

// selectByValue selects the option whose value attribute is value.
func selectByValue(ctx context.Context, sel interfaces.Element, value string) error {
	opts, err := sel.FindElements(ctx, interfaces.CSS("option"))
	if err != nil {
		return err
	}
	for i, opt := range opts {
		v, err := opt.Attribute(ctx, "value")
		if err != nil {
			return err
		}
		if v == value {
			return sel.SelectByIndex(ctx, i)
		}
	}
	return fmt.Errorf("no option with value %q", value)
}

// firstDisplayed returns the first element matched by loc that is
// displayed, or nil.
func firstDisplayed(ctx context.Context, scope interfaces.Finder, loc interfaces.Locator) (interfaces.Element, error) {
	elements, err := scope.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	for _, el := range elements {
		displayed, err := el.IsDisplayed(ctx)
		if err != nil {
			return nil, err
		}
		if displayed {
			return el, nil
		}
	}
	return nil, nil
}

// pageURLKey drops the query string and fragment so redirects carrying a
// ?next= parameter compare by path.
func pageURLKey(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i]
	}
	return url
}
