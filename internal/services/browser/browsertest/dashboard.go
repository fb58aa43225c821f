package browsertest

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// UnitFixture renders one unit container of the Transfer or Ingest tab.
type UnitFixture struct {
	UUID   string
	Name   string
	Groups []GroupFixture
}

// GroupFixture is a microservice group; Label is the rendered header text,
// prefix included.
type GroupFixture struct {
	Label    string
	Expanded bool
	Jobs     []JobFixture
}

// JobFixture is one job row. A nil Choices renders no decision select.
type JobFixture struct {
	UUID         string
	Microservice string
	Status       string
	Choices      []string
}

// DashboardPage renders a Transfer or Ingest tab listing units in order.
func DashboardPage(units ...UnitFixture) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Archivematica Dashboard</title></head><body><div id="sip-container">`)
	for _, u := range units {
		b.WriteString(UnitHTML(u))
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// UnitHTML renders a single unit container.
func UnitHTML(u UnitFixture) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="sip"><div class="sip-row" id="sip-row-%s">`, u.UUID)
	fmt.Fprintf(&b, `<div class="sip-detail-directory">%s<abbr title="%s" style="display:none">UUID</abbr></div>`, html.EscapeString(u.Name), u.UUID)
	fmt.Fprintf(&b, `<div class="sip-detail-uuid">%s</div>`, u.UUID)
	b.WriteString(`<a class="btn_remove_sip" href="#">Remove</a></div>`)
	for _, g := range u.Groups {
		b.WriteString(`<div class="microservicegroup">`)
		fmt.Fprintf(&b, `<div class="microservice-group"><span class="microservice-group-name">%s</span></div>`, html.EscapeString(g.Label))
		style := "display:none"
		if g.Expanded {
			style = ""
		}
		fmt.Fprintf(&b, `<div class="microservice-group-jobs" style="%s">`, style)
		for _, j := range g.Jobs {
			b.WriteString(`<div class="job">`)
			fmt.Fprintf(&b, `<div class="job-detail-microservice"><span title="%s">%s</span></div>`, j.UUID, html.EscapeString(j.Microservice))
			fmt.Fprintf(&b, `<div class="job-detail-currentstep"><span>%s</span></div>`, html.EscapeString(j.Status))
			b.WriteString(`<div class="job-detail-actions">`)
			if j.Choices != nil {
				b.WriteString(`<select>`)
				for _, c := range j.Choices {
					fmt.Fprintf(&b, `<option>%s</option>`, html.EscapeString(c))
				}
				b.WriteString(`</select>`)
			}
			b.WriteString(`</div></div>`)
		}
		b.WriteString(`</div></div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// ToggleGroups makes clicks on group headers toggle their job lists, as
// the dashboard does.
func ToggleGroups(s *Session) {
	s.OnClick("div.microservicegroup", func(s *Session, el *goquery.Selection) {
		s.Mutate(func(*goquery.Document) {
			list := el.Find("div.microservice-group + div").First()
			if style, _ := list.Attr("style"); strings.Contains(style, "display:none") {
				list.SetAttr("style", "")
			} else {
				list.SetAttr("style", "display:none")
			}
		})
	})
}

// SetJobStatus rewrites the status text of the job with jobUUID in place.
func SetJobStatus(s *Session, jobUUID, status string) {
	s.Mutate(func(doc *goquery.Document) {
		doc.Find(fmt.Sprintf(`div.job-detail-microservice span[title="%s"]`, jobUUID)).
			Closest("div.job").
			Find("div.job-detail-currentstep span").
			SetText(status)
	})
}
