package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/report"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/internal/services/wait"
	"github.com/ternarybob/amsc/pkg/models"
)

const (
	normalizationDecision = "Approve normalization (review)"
	spaceDetailsLabel     = "View Details and Locations"
	noSearchResults       = "No results, please try another search."
)

// archivalSearchInterval spaces archival storage searches.
var archivalSearchInterval = time.Second

// ParseNormalizationReport waits for the SIP's normalization review
// decision and returns the rows of its normalization report, keyed by the
// report's column headers.
func (h *Harness) ParseNormalizationReport(ctx context.Context, sipUUID string) ([]models.ReportRow, error) {
	s, err := h.sessions.Renew(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.navigate(ctx, s, h.IngestURL(), true); err != nil {
		return nil, err
	}
	if _, _, err := h.locator.Expose(ctx, s, normalizationDecision, sipUUID); err != nil {
		return nil, err
	}

	if err := h.navigate(ctx, s, h.NormalizationReportURL(sipUUID), true); err != nil {
		return nil, err
	}
	h.waiter.Present(ctx, s, interfaces.CSS("table"), 0)
	doc, err := h.snapshot(ctx, s)
	if err != nil {
		return nil, err
	}
	rows := report.ParseKeyedTable(doc, "table")
	h.logger.Info().Str("sip_uuid", sipUUID).Int("rows", len(rows)).Msg("Parsed normalization report")
	return rows, nil
}

// snapshot parses the current page source of s.
func (h *Harness) snapshot(ctx context.Context, s interfaces.Session) (*goquery.Document, error) {
	source, err := s.PageSource(ctx)
	if err != nil {
		return nil, err
	}
	return report.NewDocument(source)
}

// SearchForAIPInStorageService filters the Storage Service packages table
// by aipUUID and returns the rows left, keyed by column header.
func (h *Harness) SearchForAIPInStorageService(ctx context.Context, aipUUID string) ([]models.ReportRow, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.navigate(ctx, s, h.SSPackagesURL(), false); err != nil {
		return nil, err
	}
	if err := typeInto(ctx, s, interfaces.CSS("input[type=text]"), aipUUID); err != nil {
		return nil, fmt.Errorf("failed to search packages: %w", err)
	}
	doc, err := h.snapshot(ctx, s)
	if err != nil {
		return nil, err
	}
	return report.ParseHeaderRowTable(doc, h.vocab.MustSelector(vocab.RoleSSPackagesRows).Value), nil
}

// GetExistingSpaces returns the details of every Storage Service space,
// each with its "uuid".
func (h *Harness) GetExistingSpaces(ctx context.Context) ([]models.ReportRow, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.navigate(ctx, s, h.SSSpacesURL(), false); err != nil {
		return nil, err
	}
	doc, err := h.snapshot(ctx, s)
	if err != nil {
		return nil, err
	}

	var spaceURLs []string
	doc.Find("div.space > dl > dd > ul > li > a").Each(func(_ int, a *goquery.Selection) {
		if report.Text(a) != spaceDetailsLabel {
			return
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if abs, err := common.ResolveURL(h.SSSpacesURL(), href); err == nil {
			spaceURLs = append(spaceURLs, abs)
		}
	})

	spaces := make([]models.ReportRow, 0, len(spaceURLs))
	for _, spaceURL := range spaceURLs {
		doc, err := h.fetchPage(ctx, s, spaceURL)
		if err != nil {
			return nil, err
		}
		space := report.ParseDefinitionList(h.detailList(doc, "div.space"), "Actions")
		space["uuid"] = lastPathSegment(spaceURL)
		spaces = append(spaces, space)
	}
	return spaces, nil
}

// GetExistingLocations returns the details of every location of the space,
// each with its "uuid".
func (h *Harness) GetExistingLocations(ctx context.Context, spaceUUID string) ([]models.ReportRow, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := h.fetchPage(ctx, s, h.SSSpaceURL(spaceUUID))
	if err != nil {
		return nil, err
	}

	var uuids []string
	seen := make(map[string]bool)
	doc.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		uuid := report.Text(tr.Find("td").Eq(4))
		if uuid != "" && !seen[uuid] {
			seen[uuid] = true
			uuids = append(uuids, uuid)
		}
	})

	locations := make([]models.ReportRow, 0, len(uuids))
	for _, uuid := range uuids {
		doc, err := h.fetchPage(ctx, s, h.SSLocationURL(uuid))
		if err != nil {
			return nil, err
		}
		location := report.ParseDefinitionList(h.detailList(doc, "div.location"), "Space", "Actions")
		location["uuid"] = uuid
		locations = append(locations, location)
	}
	return locations, nil
}

// FindLocation returns the one location of the space whose details match
// every entry of attrs. Keys compare case-insensitively, values exactly.
func (h *Harness) FindLocation(ctx context.Context, spaceUUID string, attrs map[string]string) (models.ReportRow, error) {
	locations, err := h.GetExistingLocations(ctx, spaceUUID)
	if err != nil {
		return nil, err
	}
	var matches []models.ReportRow
	for _, loc := range locations {
		if locationMatches(loc, attrs) {
			matches = append(matches, loc)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %v in space %s", models.ErrNoMatchingLocation, attrs, spaceUUID)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %d locations match %v in space %s", models.ErrNotUnique, len(matches), attrs, spaceUUID)
	}
}

func locationMatches(loc models.ReportRow, attrs map[string]string) bool {
	for k, v := range attrs {
		got, ok := loc[report.NormalizeKey(k)]
		if !ok {
			got, ok = loc[strings.ToLower(k)]
		}
		if !ok || got != v {
			return false
		}
	}
	return true
}

// WaitForAIPInArchivalStorage searches the archival storage tab for aipUUID
// once a second until it is found or ArchivalStorageMaxWait has passed.
// It reports whether the AIP was found.
func (h *Harness) WaitForAIPInArchivalStorage(ctx context.Context, aipUUID string) (bool, error) {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return false, err
	}
	deadline := time.Now().Add(h.config.Timing.ArchivalStorageMaxWait.Duration)
	for {
		found, err := h.searchArchivalStorage(ctx, s, aipUUID)
		if err != nil {
			return false, err
		}
		if found {
			h.logger.Info().Str("aip_uuid", aipUUID).Msg("AIP indexed in archival storage")
			return true, wait.Sleep(ctx, archivalSearchInterval)
		}
		if time.Now().After(deadline) {
			h.logger.Warn().Str("aip_uuid", aipUUID).Msg("AIP not found in archival storage")
			return false, nil
		}
		if err := wait.Sleep(ctx, archivalSearchInterval); err != nil {
			return false, err
		}
	}
}

func (h *Harness) searchArchivalStorage(ctx context.Context, s interfaces.Session, aipUUID string) (bool, error) {
	if err := h.navigate(ctx, s, h.ArchivalStorageURL(""), true); err != nil {
		return false, err
	}
	if err := typeInto(ctx, s, interfaces.CSS(`input[title="search query"]`), aipUUID); err != nil {
		return false, err
	}
	selects := []struct{ loc, text string }{
		{`select[title="field name"]`, "AIP UUID"},
		{`select[title="query type"]`, "Phrase"},
	}
	for _, sel := range selects {
		el, err := s.FindElement(ctx, interfaces.CSS(sel.loc))
		if err != nil {
			return false, err
		}
		if err := selectByText(ctx, el, sel.text); err != nil {
			return false, err
		}
	}
	if err := click(ctx, s, interfaces.ID("search_submit")); err != nil {
		return false, err
	}
	summary, err := s.FindElement(ctx, interfaces.CSS("div.search-summary"))
	if err != nil {
		return false, err
	}
	text, err := summary.Text(ctx)
	if err != nil {
		return false, err
	}
	return !strings.Contains(text, noSearchResults), nil
}

// detailList returns the first details list inside container.
func (h *Harness) detailList(doc *goquery.Document, container string) *goquery.Selection {
	return doc.Find(container).Find(h.vocab.MustSelector(vocab.RoleSSDetailLists).Value).First()
}

func lastPathSegment(url string) string {
	url = strings.TrimSuffix(pageURLKey(url), "/")
	return url[strings.LastIndex(url, "/")+1:]
}
