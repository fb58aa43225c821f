package browsertest

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/amsc/internal/interfaces"
)

const page = `<html><head><title>Dashboard</title></head><body>
<div id="main">
  <span class="name">Approve   standard
  transfer</span>
  <div class="hidden" style="display: none"><span class="inner">hidden text</span></div>
  <select name="choice">
    <option value="a">Yes</option>
    <option value="b">No</option>
  </select>
  <p>line one<br>line two</p>
  <input id="username" type="text">
</div>
</body></html>`

func newPage(t *testing.T) (*Browser, *Session) {
	t.Helper()
	b := NewBrowser()
	b.Route("http://am/", page)
	s, err := b.OpenWindow("http://am/")
	require.NoError(t, err)
	return b, s
}

func TestNavigate_RoutesAndTitle(t *testing.T) {
	ctx := context.Background()
	b, s := newPage(t)

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", title)

	require.NoError(t, s.Navigate(ctx, "http://am/missing"))
	title, err = s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Not Found", title)

	b.Redirect(func(url string) string {
		if url == "http://am/secret" {
			return "http://am/"
		}
		return ""
	})
	require.NoError(t, s.Navigate(ctx, "http://am/secret"))
	current, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://am/", current)
	assert.Equal(t, 2, b.Visits("http://am/"))
}

func TestFindElements_Strategies(t *testing.T) {
	ctx := context.Background()
	_, s := newPage(t)

	tests := []struct {
		name  string
		loc   interfaces.Locator
		count int
	}{
		{"css", interfaces.CSS("select option"), 2},
		{"id", interfaces.ID("username"), 1},
		{"xpath", interfaces.XPath("//option[text()='No']"), 1},
		{"none", interfaces.CSS("table"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elements, err := s.FindElements(ctx, tt.loc)
			require.NoError(t, err)
			assert.Len(t, elements, tt.count)
		})
	}

	_, err := s.FindElement(ctx, interfaces.CSS("table"))
	assert.ErrorIs(t, err, interfaces.ErrNoSuchElement)
}

func TestElement_TextAndVisibility(t *testing.T) {
	ctx := context.Background()
	_, s := newPage(t)

	name, err := s.FindElement(ctx, interfaces.CSS("span.name"))
	require.NoError(t, err)
	text, err := name.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Approve standard transfer", text)

	p, err := s.FindElement(ctx, interfaces.CSS("p"))
	require.NoError(t, err)
	text, err = p.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)

	inner, err := s.FindElement(ctx, interfaces.CSS("span.inner"))
	require.NoError(t, err)
	displayed, err := inner.IsDisplayed(ctx)
	require.NoError(t, err)
	assert.False(t, displayed, "ancestor is display:none")

	displayed, err = name.IsDisplayed(ctx)
	require.NoError(t, err)
	assert.True(t, displayed)
}

func TestElement_StaleAfterReplace(t *testing.T) {
	ctx := context.Background()
	_, s := newPage(t)

	name, err := s.FindElement(ctx, interfaces.CSS("span.name"))
	require.NoError(t, err)

	s.Repaint()
	_, err = name.Text(ctx)
	assert.ErrorIs(t, err, interfaces.ErrStaleElement)

	fresh, err := s.FindElement(ctx, interfaces.CSS("span.name"))
	require.NoError(t, err)
	s.Mutate(func(doc *goquery.Document) {
		doc.Find("p").Remove()
	})
	_, err = fresh.Text(ctx)
	assert.NoError(t, err, "in-place edits keep unrelated handles valid")
}

func TestElement_StaleAfterRemoval(t *testing.T) {
	ctx := context.Background()
	_, s := newPage(t)

	p, err := s.FindElement(ctx, interfaces.CSS("p"))
	require.NoError(t, err)
	s.Mutate(func(doc *goquery.Document) {
		doc.Find("p").Remove()
	})
	_, err = p.Text(ctx)
	assert.ErrorIs(t, err, interfaces.ErrStaleElement)
}

func TestSelect_OptionsAndSelection(t *testing.T) {
	ctx := context.Background()
	_, s := newPage(t)

	changed := 0
	s.OnClick("select", func(*Session, *goquery.Selection) { changed++ })

	sel, err := s.FindElement(ctx, interfaces.CSS("select"))
	require.NoError(t, err)
	labels, err := sel.Options(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yes", "No"}, labels)

	require.NoError(t, sel.SelectByIndex(ctx, 1))
	assert.Equal(t, []Selection{{Index: 1, Label: "No"}}, s.Selections())
	value, err := sel.Attribute(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, "b", value)

	assert.Error(t, sel.SelectByIndex(ctx, 5))

	opt, err := s.FindElement(ctx, interfaces.CSS("option[value=a]"))
	require.NoError(t, err)
	require.NoError(t, opt.Click(ctx))
	value, err = sel.Attribute(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, "a", value)
	assert.Equal(t, 2, changed)
}

func TestQueryHooks_CountLookups(t *testing.T) {
	ctx := context.Background()
	_, s := newPage(t)

	status := interfaces.CSS("span.name")
	s.OnQuery(func(s *Session, q Query) {
		if q.Locator == status && q.Count == 2 {
			s.SetHTML(`<html><body><span class="name">Completed successfully</span></body></html>`)
		}
	})

	read := func() string {
		el, err := s.FindElement(ctx, status)
		require.NoError(t, err)
		text, err := el.Text(ctx)
		require.NoError(t, err)
		return text
	}
	assert.Equal(t, "Approve standard transfer", read())
	assert.Equal(t, "Completed successfully", read())
	assert.Equal(t, 2, s.Queries(status))
}

func TestWindows_OpenSwitchClose(t *testing.T) {
	ctx := context.Background()
	b, s := newPage(t)
	b.Route("http://am/mets", "<html><body>METS</body></html>")

	popup, err := b.OpenWindow("http://am/mets")
	require.NoError(t, err)

	ids, err := s.Windows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID(), popup.ID()}, ids)

	switched, err := s.SwitchTo(ctx, popup.ID())
	require.NoError(t, err)
	url, err := switched.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://am/mets", url)

	require.NoError(t, switched.Close())
	assert.True(t, popup.IsClosed())
	assert.Len(t, b.OpenWindows(), 1)

	_, err = s.SwitchTo(ctx, popup.ID())
	assert.Error(t, err)

	require.NoError(t, b.Shutdown())
	_, err = b.NewSession(ctx)
	assert.Error(t, err)
}

func TestInnerText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"wrapped source", "<span>Approve   standard\n  transfer</span>", "Approve standard transfer"},
		{"line break", "<span>one<br>two</span>", "one\ntwo"},
		{"double line break", "<span>one<br><br>two</span>", "one\n\ntwo"},
		{"blocks", "<div>\n  <div>first</div>\n  <div>second</div>\n</div>", "first\nsecond"},
		{"list items", "<ul><li>a</li>\n<li>b</li></ul>", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + tt.html + "</body></html>"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, innerText(doc.Find("body").Children().Nodes[0]))
		})
	}
}
