package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Query describes one element lookup, passed to query hooks.
type Query struct {
	// Count is the number of lookups with this locator so far, including
	// this one.
	Count   int
	Locator interfaces.Locator
	// Scoped is true for lookups within an element rather than the document.
	Scoped bool
}

// Selection records a SelectByIndex call.
type Selection struct {
	Index int
	Label string
}

type clickHandler struct {
	selector string
	fn       func(s *Session, el *goquery.Selection)
}

// Session is a fake browser window.
type Session struct {
	browser *Browser
	id      string

	mu         sync.Mutex
	url        string
	doc        *goquery.Document
	generation int
	closed     bool
	queries    map[interfaces.Locator]int
	onQuery    []func(s *Session, q Query)
	onClick    []clickHandler
	onScript   func(script string) (interface{}, error)
	selections []Selection
	hovers     int
}

func newSession(b *Browser, id string) *Session {
	return &Session{
		browser: b,
		id:      id,
		url:     "about:blank",
		doc:     parseHTML("<html><head></head><body></body></html>"),
		queries: make(map[interfaces.Locator]int),
	}
}

// SetHTML replaces the document. Every element handle taken before the call
// becomes stale.
func (s *Session) SetHTML(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = parseHTML(markup)
	s.generation++
}

// Mutate edits the document in place. Handles to nodes that stay attached
// remain valid; handles to removed nodes become stale.
func (s *Session) Mutate(fn func(doc *goquery.Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Repaint invalidates every element handle without changing the content,
// as an async re-render of the same markup would.
func (s *Session) Repaint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	markup, err := s.doc.Html()
	if err == nil {
		s.doc = parseHTML(markup)
	}
	s.generation++
}

// OnQuery registers a hook run before every element lookup.
func (s *Session) OnQuery(fn func(s *Session, q Query)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onQuery = append(s.onQuery, fn)
}

// OnClick registers a handler run when an element matching selector is
// clicked.
func (s *Session) OnClick(selector string, fn func(s *Session, el *goquery.Selection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClick = append(s.onClick, clickHandler{selector: selector, fn: fn})
}

// OnScript installs the evaluator used by Execute.
func (s *Session) OnScript(fn func(script string) (interface{}, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onScript = fn
}

// Queries returns how many lookups used loc.
func (s *Session) Queries(loc interfaces.Locator) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[loc]
}

// Selections returns every SelectByIndex call made in this window.
func (s *Session) Selections() []Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Selection(nil), s.selections...)
}

// Hovers returns how many times an element of this window was hovered.
func (s *Session) Hovers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hovers
}

// Document exposes the live document for assertions.
func (s *Session) Document() *goquery.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// IsClosed reports whether Close was called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) ID() string { return s.id }

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.alive(); err != nil {
		return err
	}
	final, markup := s.browser.resolve(url)
	s.mu.Lock()
	s.url = final
	s.mu.Unlock()
	s.SetHTML(markup)
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Find("title").First().Text(), nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Html()
}

func (s *Session) Execute(ctx context.Context, script string, res interface{}) error {
	if err := s.alive(); err != nil {
		return err
	}
	s.mu.Lock()
	eval := s.onScript
	s.mu.Unlock()
	if eval == nil {
		return nil
	}
	value, err := eval(script)
	if err != nil || res == nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, res)
}

func (s *Session) Windows(ctx context.Context) ([]string, error) {
	var ids []string
	for _, w := range s.browser.OpenWindows() {
		ids = append(ids, w.id)
	}
	return ids, nil
}

func (s *Session) SwitchTo(ctx context.Context, windowID string) (interfaces.Session, error) {
	w := s.browser.window(windowID)
	if w == nil {
		return nil, fmt.Errorf("no such window: %s", windowID)
	}
	return w, nil
}

func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	s.browser.mu.Lock()
	defer s.browser.mu.Unlock()
	return append([]*http.Cookie(nil), s.browser.cookies...), nil
}

// Screenshot returns a PNG signature; there is nothing to render.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("window already closed")
	}
	s.closed = true
	s.mu.Unlock()
	s.browser.closeWindow(s)
	return nil
}

func (s *Session) FindElement(ctx context.Context, loc interfaces.Locator) (interfaces.Element, error) {
	elements, err := s.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoSuchElement, loc)
	}
	return elements[0], nil
}

func (s *Session) FindElements(ctx context.Context, loc interfaces.Locator) ([]interfaces.Element, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	s.runQueryHooks(loc, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, err := query(s.doc.Nodes[0], loc)
	if err != nil {
		return nil, err
	}
	return s.wrap(nodes), nil
}

func (s *Session) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("window %s is closed", s.id)
	}
	return nil
}

func (s *Session) runQueryHooks(loc interfaces.Locator, scoped bool) {
	s.mu.Lock()
	s.queries[loc]++
	q := Query{Count: s.queries[loc], Locator: loc, Scoped: scoped}
	hooks := append([]func(*Session, Query){}, s.onQuery...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(s, q)
	}
}

// wrap must be called with s.mu held.
func (s *Session) wrap(nodes []*html.Node) []interfaces.Element {
	elements := make([]interfaces.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &Element{s: s, node: n, generation: s.generation})
	}
	return elements
}
