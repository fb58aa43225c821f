package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/browser/browsertest"
)

func newSession(t *testing.T, markup string) *browsertest.Session {
	t.Helper()
	b := browsertest.NewBrowser()
	b.Route("http://am/", markup)
	s, err := b.OpenWindow("http://am/")
	require.NoError(t, err)
	return s
}

func newEngine() *Engine {
	return NewEngine(5*time.Millisecond, 100*time.Millisecond, arbor.NewLogger())
}

func TestEngine_Conditions(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, `<html><body>
<div class="shown">here</div>
<div class="covered" style="display:none">there</div>
</body></html>`)
	e := newEngine()

	tests := []struct {
		name string
		cond Condition
		loc  interfaces.Locator
		want bool
	}{
		{"present visible", Present, interfaces.CSS("div.shown"), true},
		{"present hidden", Present, interfaces.CSS("div.covered"), true},
		{"present missing", Present, interfaces.CSS("div.none"), false},
		{"visible shown", Visible, interfaces.CSS("div.shown"), true},
		{"visible hidden", Visible, interfaces.CSS("div.covered"), false},
		{"absent hidden", Absent, interfaces.CSS("div.covered"), true},
		{"absent missing", Absent, interfaces.CSS("div.none"), true},
		{"absent shown", Absent, interfaces.CSS("div.shown"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.For(ctx, s, tt.cond, tt.loc, 20*time.Millisecond))
		})
	}
}

func TestEngine_WaitsForLateElement(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, `<html><body></body></html>`)
	loc := interfaces.CSS("div.late")
	s.OnQuery(func(s *browsertest.Session, q browsertest.Query) {
		if q.Locator == loc && q.Count == 3 {
			s.Mutate(func(doc *goquery.Document) {
				doc.Find("body").AppendHtml(`<div class="late">ok</div>`)
			})
		}
	})

	assert.True(t, newEngine().Visible(ctx, s, loc, time.Second))
	assert.Equal(t, 3, s.Queries(loc))
}

func TestEngine_UntilTreatsStaleAsNotYet(t *testing.T) {
	calls := 0
	err := newEngine().Until(context.Background(), time.Second, func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, interfaces.ErrStaleElement
		}
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestEngine_UntilErrors(t *testing.T) {
	e := newEngine()
	boom := errors.New("boom")

	err := e.Until(context.Background(), time.Second, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)

	err = e.Until(context.Background(), 20*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = e.Until(ctx, time.Second, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
