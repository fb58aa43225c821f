package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Session is one browser tab.
type Session struct {
	driver *Driver
	ctx    context.Context
	cancel context.CancelFunc
	id     string
	logger arbor.ILogger
	groups handleGroups

	closeOnce sync.Once
}

// handleGroupSize is how many element handles share one object group.
const handleGroupSize = 500

// handleGroups places element handles in rotating object groups so the
// page can drop them in bulk. The current and previous groups stay alive;
// a handle outlives at least handleGroupSize later lookups before its group
// is released and it turns stale.
type handleGroups struct {
	mu    sync.Mutex
	seq   int
	count int
}

func groupName(seq int) string { return fmt.Sprintf("amsc-handles-%d", seq) }

// take reserves n handles. It returns the group to create them in and the
// group that aged out, empty when none did.
func (g *handleGroups) take(n int) (group, expired string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count > 0 && g.count+n > handleGroupSize {
		g.seq++
		g.count = 0
		if g.seq >= 2 {
			expired = groupName(g.seq - 2)
		}
	}
	g.count += n
	return groupName(g.seq), expired
}

func targetID(id string) target.ID { return target.ID(id) }

func (s *Session) ID() string { return s.id }

// exec runs actions on the tab, aborting when either the tab or ctx ends.
func (s *Session) exec(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return translate(chromedp.Run(runCtx, actions...))
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.exec(ctx, chromedp.Navigate(url))
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := s.exec(ctx, chromedp.Location(&url))
	return url, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.exec(ctx, chromedp.Title(&title))
	return title, err
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	var source string
	err := s.Execute(ctx, "document.documentElement.outerHTML", &source)
	return source, err
}

func (s *Session) Execute(ctx context.Context, script string, res interface{}) error {
	return s.exec(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, exc, err := runtime.Evaluate(script).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exception(exc)
		}
		return decode(obj, res)
	}))
}

// Windows lists the page targets of the browser, excluding the root tab the
// driver keeps open.
func (s *Session) Windows(ctx context.Context) ([]string, error) {
	var infos []*target.Info
	err := s.exec(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = chromedp.Targets(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		id := string(info.TargetID)
		if info.Type != "page" || id == s.driver.rootTarget {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Session) SwitchTo(ctx context.Context, windowID string) (interfaces.Session, error) {
	if windowID == s.id {
		return s, nil
	}
	return s.driver.attach(ctx, windowID)
}

func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	var cookies []*network.Cookie
	err = s.exec(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{url}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	result := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		result = append(result, cookie)
	}
	return result, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.exec(ctx, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

// Close closes the tab. Closing twice is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = s.exec(ctx, page.Close())
		s.cancel()
		s.driver.forget(s)
		s.logger.Debug().Str("window", s.id).Msg("Browser session closed")
	})
	return err
}

func (s *Session) FindElement(ctx context.Context, loc interfaces.Locator) (interfaces.Element, error) {
	return first(s.FindElements(ctx, loc))
}

func (s *Session) FindElements(ctx context.Context, loc interfaces.Locator) ([]interfaces.Element, error) {
	var elements []interfaces.Element
	err := s.exec(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, exc, err := runtime.Evaluate("document").Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exception(exc)
		}
		defer release(ctx, doc.ObjectID)
		elements, err = s.query(ctx, doc.ObjectID, loc)
		return err
	}))
	return elements, err
}

// query runs loc against the node with id root and returns handles to the
// matches in document order.
func (s *Session) query(ctx context.Context, root runtime.RemoteObjectID, loc interfaces.Locator) ([]interfaces.Element, error) {
	body, err := queryScript(loc)
	if err != nil {
		return nil, err
	}
	list, exc, err := runtime.CallFunctionOn("function() { " + body + " }").
		WithObjectID(root).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exception(exc)
	}
	defer release(ctx, list.ObjectID)

	var length int
	if err := callOn(ctx, list.ObjectID, "return this.length;", &length); err != nil {
		return nil, err
	}

	group, expired := s.groups.take(length)
	if expired != "" {
		_ = runtime.ReleaseObjectGroup(expired).Do(ctx)
	}

	elements := make([]interfaces.Element, 0, length)
	for i := 0; i < length; i++ {
		item, exc, err := runtime.CallFunctionOn(fmt.Sprintf("function() { return this[%d]; }", i)).
			WithObjectID(list.ObjectID).
			WithObjectGroup(group).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		if exc != nil {
			return nil, exception(exc)
		}
		elements = append(elements, &Element{s: s, id: item.ObjectID})
	}
	return elements, nil
}

func queryScript(loc interfaces.Locator) (string, error) {
	value, err := json.Marshal(loc.Value)
	if err != nil {
		return "", err
	}
	switch loc.By {
	case interfaces.ByCSS:
		return fmt.Sprintf("return Array.from(this.querySelectorAll(%s));", value), nil
	case interfaces.ByID:
		return fmt.Sprintf("return Array.from(this.querySelectorAll('#' + CSS.escape(%s)));", value), nil
	case interfaces.ByXPath:
		return fmt.Sprintf(`const doc = this.ownerDocument || this;
const snap = doc.evaluate(%s, this, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
const out = [];
for (let i = 0; i < snap.snapshotLength; i++) { out.push(snap.snapshotItem(i)); }
return out;`, value), nil
	}
	return "", fmt.Errorf("unsupported locator strategy %q", loc.By)
}

// callOn runs body as a function with this bound to id, decoding the
// returned value into res.
func callOn(ctx context.Context, id runtime.RemoteObjectID, body string, res interface{}) error {
	obj, exc, err := runtime.CallFunctionOn("function() { " + body + " }").
		WithObjectID(id).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return exception(exc)
	}
	return decode(obj, res)
}

func decode(obj *runtime.RemoteObject, res interface{}) error {
	if res == nil || obj == nil || len(obj.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(obj.Value), res)
}

func release(ctx context.Context, id runtime.RemoteObjectID) {
	if id == "" {
		return
	}
	_ = runtime.ReleaseObject(id).Do(ctx)
}

func first(elements []interfaces.Element, err error) (interfaces.Element, error) {
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, interfaces.ErrNoSuchElement
	}
	return elements[0], nil
}

func exception(exc *runtime.ExceptionDetails) error {
	msg := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg = exc.Exception.Description
	}
	return translate(errors.New(msg))
}

var staleMessages = []string{
	"stale element reference",
	"Could not find object with given id",
	"Cannot find context with specified id",
	"Node is detached",
}

// translate maps protocol errors about vanished nodes and contexts onto
// interfaces.ErrStaleElement.
func translate(err error) error {
	if err == nil || errors.Is(err, interfaces.ErrStaleElement) {
		return err
	}
	for _, msg := range staleMessages {
		if strings.Contains(err.Error(), msg) {
			return fmt.Errorf("%w: %v", interfaces.ErrStaleElement, err)
		}
	}
	return err
}
