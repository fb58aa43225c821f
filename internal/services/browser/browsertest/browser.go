// Package browsertest provides an in-memory browser for exercising code
// written against interfaces.Driver without a real browser. Pages are HTML
// strings; tests script DOM changes through query and click hooks.
package browsertest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Browser is a fake interfaces.Driver. Every session it opens is a window of
// the same browser, sharing routes and cookies.
type Browser struct {
	mu       sync.Mutex
	routes   map[string]func(visit int) string
	visits   map[string]int
	redirect func(url string) string
	windows  []*Session
	nextID   int
	cookies  []*http.Cookie
	shutdown bool
}

// NewBrowser creates an empty fake browser.
func NewBrowser() *Browser {
	return &Browser{
		routes: make(map[string]func(int) string),
		visits: make(map[string]int),
	}
}

// Route serves html for url.
func (b *Browser) Route(url, html string) {
	b.RouteFunc(url, func(int) string { return html })
}

// RouteFunc serves the result of fn for url; visit counts from 1.
func (b *Browser) RouteFunc(url string, fn func(visit int) string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[url] = fn
}

// Redirect installs a hook consulted on every navigation; returning a
// non-empty URL sends the session there instead.
func (b *Browser) Redirect(fn func(url string) string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.redirect = fn
}

// Visits returns how many times url was navigated to.
func (b *Browser) Visits(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visits[url]
}

// SetCookies sets the cookies every session reports.
func (b *Browser) SetCookies(cookies ...*http.Cookie) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cookies = cookies
}

// NewSession implements interfaces.Driver.
func (b *Browser) NewSession(ctx context.Context) (interfaces.Session, error) {
	return b.OpenWindow("about:blank")
}

// OpenWindow opens a new window showing url, as a page script or link with
// a target would.
func (b *Browser) OpenWindow(url string) (*Session, error) {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser is shut down")
	}
	b.nextID++
	s := newSession(b, fmt.Sprintf("window-%d", b.nextID))
	b.windows = append(b.windows, s)
	b.mu.Unlock()

	if url != "about:blank" {
		if err := s.Navigate(context.Background(), url); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Shutdown implements interfaces.Driver.
func (b *Browser) Shutdown() error {
	b.mu.Lock()
	windows := append([]*Session(nil), b.windows...)
	b.shutdown = true
	b.mu.Unlock()

	for _, w := range windows {
		_ = w.Close()
	}
	return nil
}

// OpenWindows returns the windows that have not been closed, oldest first.
func (b *Browser) OpenWindows() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Session(nil), b.windows...)
}

func (b *Browser) closeWindow(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.windows {
		if w == s {
			b.windows = append(b.windows[:i], b.windows[i+1:]...)
			return
		}
	}
}

func (b *Browser) window(id string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.windows {
		if w.id == id {
			return w
		}
	}
	return nil
}

// resolve applies the redirect hook and renders the target route.
func (b *Browser) resolve(url string) (string, string) {
	b.mu.Lock()
	redirect := b.redirect
	b.mu.Unlock()

	if redirect != nil {
		if target := redirect(url); target != "" {
			url = target
		}
	}

	b.mu.Lock()
	b.visits[url]++
	visit := b.visits[url]
	route, ok := b.routes[url]
	b.mu.Unlock()

	if !ok {
		return url, "<html><head><title>Not Found</title></head><body><h1>Not Found</h1></body></html>"
	}
	return url, route(visit)
}

func parseHTML(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// The HTML5 parser accepts any input; this is unreachable for strings.
		panic(err)
	}
	return doc
}
