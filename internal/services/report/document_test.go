package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/amsc/pkg/models"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"wrapped source", "<span>Approve   standard\n    transfer</span>", "Approve standard transfer"},
		{"line break", "<span>line one<br>line two</span>", "line one\nline two"},
		{"blocks", "<div><p>first</p>\n  <p>second</p></div>", "first\nsecond"},
		{"inline elements", "<span>a <b>bold</b>\n<i>word</i></span>", "a bold word"},
		{"blank breaks dropped", "<span><br><br>only<br></span>", "only"},
		{"script skipped", "<span>shown<script>var x = 1;</script></span>", "shown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewDocument("<html><body>" + tt.html + "</body></html>")
			require.NoError(t, err)
			assert.Equal(t, tt.want, Text(doc.Find("body").Children().First()))
		})
	}
}

func TestParseKeyedTable_WrappedCells(t *testing.T) {
	doc, err := NewDocument(`<html><body><table>
<thead><tr><th>File
  name</th><th>Status</th></tr></thead>
<tbody><tr><td>
  easy.txt
</td><td>Normalization
  failed</td></tr></tbody>
</table></body></html>`)
	require.NoError(t, err)

	rows := ParseKeyedTable(doc, "table")
	assert.Equal(t, []models.ReportRow{{"file_name": "easy.txt", "status": "Normalization failed"}}, rows)
}
