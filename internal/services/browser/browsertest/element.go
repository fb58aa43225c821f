package browsertest

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Element is a handle to a node of a Session document.
type Element struct {
	s          *Session
	node       *html.Node
	generation int
}

// Node returns the underlying parse node.
func (e *Element) Node() *html.Node { return e.node }

func (e *Element) FindElement(ctx context.Context, loc interfaces.Locator) (interfaces.Element, error) {
	elements, err := e.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNoSuchElement, loc)
	}
	return elements[0], nil
}

func (e *Element) FindElements(ctx context.Context, loc interfaces.Locator) ([]interfaces.Element, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	e.s.runQueryHooks(loc, true)

	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if err := e.attached(); err != nil {
		return nil, err
	}
	nodes, err := query(e.node, loc)
	if err != nil {
		return nil, err
	}
	return e.s.wrap(nodes), nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return innerText(e.node), nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	value, _ := attr(e.node, name)
	return value, nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	return e.node.Data, nil
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hidden(n) {
			return false, nil
		}
	}
	return true, nil
}

// Click fires the click handlers matching the element. Clicking an option
// selects it and fires the handlers of its select as a change would.
func (e *Element) Click(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	if e.node.Data == "option" {
		if sel := parentSelect(e.node); sel != nil {
			e.s.mu.Lock()
			markSelected(sel, e.node)
			e.s.mu.Unlock()
			e.s.fireClick(e.node)
			e.s.fireClick(sel)
			return nil
		}
	}
	e.s.fireClick(e.node)
	return nil
}

func (e *Element) Hover(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	e.s.mu.Lock()
	e.s.hovers++
	e.s.mu.Unlock()
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	value, _ := attr(e.node, "value")
	setAttr(e.node, "value", value+text)
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	setAttr(e.node, "value", "")
	return nil
}

// SetFiles stores the paths newline-separated in the value attribute.
func (e *Element) SetFiles(ctx context.Context, paths ...string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	setAttr(e.node, "value", strings.Join(paths, "\n"))
	return nil
}

func (e *Element) Options(ctx context.Context) ([]string, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if e.node.Data != "select" {
		return nil, fmt.Errorf("element <%s> is not a select", e.node.Data)
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var labels []string
	for _, opt := range options(e.node) {
		labels = append(labels, innerText(opt))
	}
	return labels, nil
}

func (e *Element) SelectByIndex(ctx context.Context, index int) error {
	if err := e.check(); err != nil {
		return err
	}
	if e.node.Data != "select" {
		return fmt.Errorf("element <%s> is not a select", e.node.Data)
	}

	e.s.mu.Lock()
	opts := options(e.node)
	if index < 0 || index >= len(opts) {
		e.s.mu.Unlock()
		return fmt.Errorf("option index %d out of range [0,%d)", index, len(opts))
	}
	markSelected(e.node, opts[index])
	e.s.selections = append(e.s.selections, Selection{Index: index, Label: innerText(opts[index])})
	e.s.mu.Unlock()

	e.s.fireClick(e.node)
	return nil
}

// check reports ErrStaleElement once the document was replaced or the node
// removed from it.
func (e *Element) check() error {
	if err := e.s.alive(); err != nil {
		return err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.attached()
}

// attached must be called with the session lock held.
func (e *Element) attached() error {
	if e.generation != e.s.generation {
		return interfaces.ErrStaleElement
	}
	root := e.s.doc.Nodes[0]
	for n := e.node; n != nil; n = n.Parent {
		if n == root {
			return nil
		}
	}
	return interfaces.ErrStaleElement
}

func (s *Session) fireClick(n *html.Node) {
	s.mu.Lock()
	handlers := append([]clickHandler(nil), s.onClick...)
	sel := s.doc.Selection.FindNodes(n)
	s.mu.Unlock()

	for _, h := range handlers {
		s.mu.Lock()
		match := sel.Is(h.selector)
		s.mu.Unlock()
		if match {
			h.fn(s, sel)
		}
	}
}

func query(root *html.Node, loc interfaces.Locator) ([]*html.Node, error) {
	switch loc.By {
	case interfaces.ByCSS:
		return goquery.NewDocumentFromNode(root).Find(loc.Value).Nodes, nil
	case interfaces.ByID:
		return goquery.NewDocumentFromNode(root).Find(fmt.Sprintf("[id=%q]", loc.Value)).Nodes, nil
	case interfaces.ByXPath:
		return htmlquery.QueryAll(root, loc.Value)
	default:
		return nil, fmt.Errorf("unsupported locator strategy %q", loc.By)
	}
}

// innerText approximates rendered text: whitespace in text nodes collapses
// to one space, <br> breaks a line, block elements start and end a line,
// outer whitespace is trimmed.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteByte('\n')
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			b.WriteByte(blockBreak)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte(blockBreak)
		}
	}
	walk(n)

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		var kept []string
		for _, part := range strings.Split(line, string(blockBreak)) {
			if part = strings.Join(strings.Fields(part), " "); part != "" {
				kept = append(kept, part)
			}
		}
		lines[i] = strings.Join(kept, "\n")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// blockBreak marks a block element boundary until lines are assembled.
// Consecutive boundaries produce a single line break.
const blockBreak = '\x00'

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "tr": true,
	"ul": true,
}

func hidden(n *html.Node) bool {
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if n.Data == "input" {
		if t, _ := attr(n, "type"); strings.EqualFold(t, "hidden") {
			return true
		}
	}
	style, _ := attr(n, "style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func options(sel *html.Node) []*html.Node {
	return goquery.NewDocumentFromNode(sel).Find("option").Nodes
}

func parentSelect(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "select" {
			return p
		}
	}
	return nil
}

func markSelected(sel, chosen *html.Node) {
	for _, opt := range options(sel) {
		removeAttr(opt, "selected")
	}
	setAttr(chosen, "selected", "selected")
	if value, ok := attr(chosen, "value"); ok {
		setAttr(sel, "value", value)
	} else {
		setAttr(sel, "value", innerText(chosen))
	}
}
