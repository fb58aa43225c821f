package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Element is a remote object handle to a DOM node.
type Element struct {
	s  *Session
	id runtime.RemoteObjectID
}

const staleGuard = `if (!this.isConnected) { throw new Error("stale element reference"); } `

// call runs body against the node, failing with a stale reference error
// once the node has left the document.
func (e *Element) call(ctx context.Context, body string, res interface{}) error {
	return e.s.exec(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callOn(ctx, e.id, staleGuard+body, res)
	}))
}

func (e *Element) FindElement(ctx context.Context, loc interfaces.Locator) (interfaces.Element, error) {
	return first(e.FindElements(ctx, loc))
}

func (e *Element) FindElements(ctx context.Context, loc interfaces.Locator) ([]interfaces.Element, error) {
	if err := e.call(ctx, "return true;", nil); err != nil {
		return nil, err
	}
	var elements []interfaces.Element
	err := e.s.exec(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		elements, err = e.s.query(ctx, e.id, loc)
		return err
	}))
	return elements, err
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.call(ctx, `return (this.innerText || this.textContent || "").trim();`, &text)
	return text, err
}

// Attribute prefers the live DOM property (the current value of an input)
// and falls back to the markup attribute.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	var value string
	err := e.call(ctx, fmt.Sprintf(`const name = %q;
const prop = this[name];
if (prop !== undefined && prop !== null && typeof prop !== "object" && typeof prop !== "function") { return String(prop); }
const attr = this.getAttribute(name);
return attr === null ? "" : attr;`, name), &value)
	return value, err
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	var tag string
	err := e.call(ctx, "return this.tagName.toLowerCase();", &tag)
	return tag, err
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	var displayed bool
	err := e.call(ctx, `let el = this;
if (el.tagName === "OPTION" && el.closest("select")) { el = el.closest("select"); }
for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
  const style = window.getComputedStyle(n);
  if (style.display === "none" || style.visibility === "hidden") { return false; }
}
const rect = el.getBoundingClientRect();
return rect.width > 0 || rect.height > 0 || el.getClientRects().length > 0;`, &displayed)
	return displayed, err
}

// Click clicks the node. For an option it selects the option in its
// parent select and fires change, which is what a user pick amounts to.
func (e *Element) Click(ctx context.Context) error {
	return e.call(ctx, `if (this.tagName === "OPTION" && this.parentElement) {
  const sel = this.closest("select");
  if (sel) {
    sel.value = this.value;
    this.selected = true;
    sel.dispatchEvent(new Event("input", { bubbles: true }));
    sel.dispatchEvent(new Event("change", { bubbles: true }));
    return true;
  }
}
this.scrollIntoView({ block: "center" });
this.click();
return true;`, nil)
}

func (e *Element) Hover(ctx context.Context) error {
	var point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	err := e.call(ctx, `this.scrollIntoView({ block: "center" });
const rect = this.getBoundingClientRect();
this.dispatchEvent(new MouseEvent("mouseover", { bubbles: true }));
return { x: rect.left + rect.width / 2, y: rect.top + rect.height / 2 };`, &point)
	if err != nil {
		return err
	}
	return e.s.exec(ctx, input.DispatchMouseEvent(input.MouseMoved, point.X, point.Y))
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := e.call(ctx, "this.focus(); return true;", nil); err != nil {
		return err
	}
	return e.s.exec(ctx, input.InsertText(text))
}

func (e *Element) Clear(ctx context.Context) error {
	return e.call(ctx, `this.value = "";
this.dispatchEvent(new Event("input", { bubbles: true }));
return true;`, nil)
}

func (e *Element) SetFiles(ctx context.Context, paths ...string) error {
	if err := e.call(ctx, "return true;", nil); err != nil {
		return err
	}
	return e.s.exec(ctx, dom.SetFileInputFiles(paths).WithObjectID(e.id))
}

func (e *Element) Options(ctx context.Context) ([]string, error) {
	var labels []string
	err := e.call(ctx, `if (this.tagName !== "SELECT") { throw new Error("element is not a select"); }
return Array.from(this.options).map(o => (o.text || "").trim());`, &labels)
	return labels, err
}

func (e *Element) SelectByIndex(ctx context.Context, index int) error {
	return e.call(ctx, fmt.Sprintf(`if (this.tagName !== "SELECT") { throw new Error("element is not a select"); }
const index = %d;
if (index < 0 || index >= this.options.length) { throw new Error("option index " + index + " out of range"); }
this.selectedIndex = index;
this.dispatchEvent(new Event("input", { bubbles: true }));
this.dispatchEvent(new Event("change", { bubbles: true }));
return true;`, index), nil)
}
