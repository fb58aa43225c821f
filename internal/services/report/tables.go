package report

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/amsc/pkg/models"
)

// ParseKeyedTable reads the first table matching tableSel: keys come from
// the thead th cells, one row per tbody tr.
func ParseKeyedTable(doc *goquery.Document, tableSel string) []models.ReportRow {
	table := doc.Find(tableSel).First()
	var keys []string
	table.Find("thead tr").First().Find("th").Each(func(_ int, th *goquery.Selection) {
		keys = append(keys, NormalizeKey(Text(th)))
	})

	var rows []models.ReportRow
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, rowFromCells(keys, tr.Find("td")))
	})
	return rows
}

// ParseHeaderRowTable reads rows matching rowSel where the first row holds
// th cells naming the columns of the rest.
func ParseHeaderRowTable(doc *goquery.Document, rowSel string) []models.ReportRow {
	trs := doc.Find(rowSel)
	if trs.Length() == 0 {
		return nil
	}
	var keys []string
	trs.First().Find("th").Each(func(_ int, th *goquery.Selection) {
		keys = append(keys, NormalizeKey(Text(th)))
	})

	var rows []models.ReportRow
	trs.Slice(1, trs.Length()).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		rows = append(rows, rowFromCells(keys, cells))
	})
	return rows
}

// rowFromCells pairs cells with keys by position; cells beyond the last key
// are dropped.
func rowFromCells(keys []string, cells *goquery.Selection) models.ReportRow {
	row := make(models.ReportRow, len(keys))
	cells.Each(func(i int, td *goquery.Selection) {
		if i < len(keys) {
			row[keys[i]] = Text(td)
		}
	})
	return row
}

// ParseDefinitionList reads dt/dd pairs of a definition list. Keys are the
// lowercased dt text; dd values equal to one of skip are ignored.
func ParseDefinitionList(dl *goquery.Selection, skip ...string) models.ReportRow {
	row := make(models.ReportRow)
	var key string
	dl.Find("dt, dd").Each(func(_ int, el *goquery.Selection) {
		text := Text(el)
		if goquery.NodeName(el) == "dt" {
			key = NormalizeKey(text)
			return
		}
		if key == "" || contains(skip, text) {
			return
		}
		row[key] = text
	})
	return row
}

// ParseDefinitionLists applies ParseDefinitionList to every element
// matching sel.
func ParseDefinitionLists(doc *goquery.Document, sel string, skip ...string) []models.ReportRow {
	var rows []models.ReportRow
	doc.Find(sel).Each(func(_ int, dl *goquery.Selection) {
		rows = append(rows, ParseDefinitionList(dl, skip...))
	})
	return rows
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
