package locator

import (
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/browser/browsertest"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/pkg/models"
)

func TestChoiceMatches(t *testing.T) {
	tests := []struct {
		option, choice string
		want           bool
	}{
		{" yes ", "Yes", true},
		{"Yes", "No", false},
		{"Approve transfer", "approve  transfer", true},
		{"Approve transfer", "Approve", false},
	}
	for _, tt := range tests {
		t.Run(tt.option+"/"+tt.choice, func(t *testing.T) {
			assert.Equal(t, tt.want, ChoiceMatches(tt.option, tt.choice))
		})
	}
}

func TestChoiceIndex(t *testing.T) {
	options := []string{"Actions", "Reject transfer", "Approve transfer", "Approve"}

	assert.Equal(t, 3, ChoiceIndex(options, "approve"), "exact match beats an earlier substring match")
	assert.Equal(t, 1, ChoiceIndex(options, "Reject"))
	assert.Equal(t, 2, ChoiceIndex(options, "approve transfer"))
	assert.Equal(t, -1, ChoiceIndex(options, "Delete"))
	assert.Equal(t, -1, ChoiceIndex(options, "  "))
}

func TestMakeChoice(t *testing.T) {
	ctx := context.Background()
	s := openPage(t, approvalUnit(true, "Awaiting decision", []string{"Actions", "Approve transfer", "Reject transfer"}))

	picked, err := newLocator(t, vocab.V17).MakeChoice(ctx, s, "Approve transfer", "Approve standard transfer", unitUUID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionChoice{Index: 1, Label: "Approve transfer"}, picked)
	assert.Equal(t, []browsertest.Selection{{Index: 1, Label: "Approve transfer"}}, s.Selections())
}

func TestMakeChoice_WaitsForSelect(t *testing.T) {
	ctx := context.Background()
	s := openPage(t, approvalUnit(true, "Awaiting decision", nil))

	actions := interfaces.CSS("div.job-detail-actions")
	s.OnQuery(func(s *browsertest.Session, q browsertest.Query) {
		if q.Locator == actions && q.Count == 2 {
			s.Mutate(func(doc *goquery.Document) {
				doc.Find("div.job-detail-actions").AppendHtml(`<select><option>Yes</option><option>No</option></select>`)
			})
		}
	})

	picked, err := newLocator(t, vocab.V17).MakeChoice(ctx, s, " no ", "Approve standard transfer", unitUUID)
	require.NoError(t, err)
	assert.Equal(t, 1, picked.Index)
	assert.Equal(t, 2, s.Queries(actions))
}

func TestMakeChoice_Errors(t *testing.T) {
	ctx := context.Background()
	l := newLocator(t, vocab.V17)
	s := openPage(t, approvalUnit(true, "Awaiting decision", []string{"Yes", "No"}))

	_, err := l.MakeChoice(ctx, s, "Maybe", "Approve standard transfer", unitUUID)
	assert.ErrorIs(t, err, models.ErrChoiceNotFound)

	_, err = l.MakeChoice(ctx, s, "Yes", "Approve zipped bag transfer|Approve transfer", unitUUID)
	assert.ErrorIs(t, err, models.ErrDecisionPointNotFound)
}

func TestListChoices(t *testing.T) {
	ctx := context.Background()
	s := openPage(t, approvalUnit(true, "Awaiting decision", []string{"Yes", "No"}))

	choices, err := newLocator(t, vocab.V17).ListChoices(ctx, s, "Approve standard transfer", unitUUID)
	require.NoError(t, err)
	assert.Equal(t, []models.DecisionChoice{{Index: 0, Label: "Yes"}, {Index: 1, Label: "No"}}, choices)
}
