package interfaces

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrNoSuchElement is returned by FindElement when nothing matches the locator.
	ErrNoSuchElement = errors.New("no such element")

	// ErrStaleElement is returned when an element handle no longer refers to a
	// node attached to the live document (the page re-rendered the subtree).
	ErrStaleElement = errors.New("stale element reference")
)

// By selects the query language of a Locator.
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
	ByID    By = "id"
)

// Locator is a declarative element query.
type Locator struct {
	By    By
	Value string
}

// CSS returns a CSS-selector locator.
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

// XPath returns a structural-path locator.
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }

// ID returns a locator matching the element id attribute.
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

func (l Locator) String() string {
	return string(l.By) + "=" + l.Value
}

// Finder locates elements. Both sessions (document scope) and elements
// (subtree scope) are finders.
type Finder interface {
	FindElement(ctx context.Context, loc Locator) (Element, error)
	FindElements(ctx context.Context, loc Locator) ([]Element, error)
}

// Element is a handle to a node in the live document. Any method may return
// ErrStaleElement once the node has been detached.
type Element interface {
	Finder
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	TagName(ctx context.Context) (string, error)
	IsDisplayed(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	Hover(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	SetFiles(ctx context.Context, paths ...string) error
	// Options returns the option labels of a select element in document order.
	Options(ctx context.Context) ([]string, error)
	SelectByIndex(ctx context.Context, index int) error
}

// Session is one browser window/tab under remote control.
type Session interface {
	Finder
	ID() string
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// PageSource returns a serialized snapshot of the current document.
	PageSource(ctx context.Context) (string, error)
	// Execute runs script in the page and decodes its JSON result into res
	// (res may be nil).
	Execute(ctx context.Context, script string, res interface{}) error
	// Windows lists the ids of the top-level windows of the browser.
	Windows(ctx context.Context) ([]string, error)
	// SwitchTo returns a session attached to the window with the given id.
	SwitchTo(ctx context.Context, windowID string) (Session, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Driver creates browser sessions.
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
	Shutdown() error
}
