package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/common"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/pkg/models"
)

// PageFetcher loads a page and returns its parsed snapshot.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*goquery.Document, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, url string) (*goquery.Document, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, url string) (*goquery.Document, error) {
	return f(ctx, url)
}

// FindNextPage returns the href of the link or button whose trimmed text is
// exactly label. Matching is case-sensitive.
func FindNextPage(doc *goquery.Document, label string) (string, bool) {
	var href string
	doc.Find("a, button").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if Text(el) != label {
			return true
		}
		if h, ok := el.Attr("href"); ok && strings.TrimSpace(h) != "" {
			href = strings.TrimSpace(h)
			return false
		}
		return true
	})
	return href, href != ""
}

// CollectTasks walks the tasks listing from startURL, following the next
// page link, and merges every page's records keyed by task id. Relative
// links resolve against the page they appear on; a link to an already
// visited page ends the walk.
func CollectTasks(ctx context.Context, fetcher PageFetcher, startURL string, style vocab.TaskStyle, nextLabel string, logger arbor.ILogger) (map[string]*models.Task, error) {
	tasks := make(map[string]*models.Task)
	visited := make(map[string]bool)

	for url := startURL; url != ""; {
		if visited[url] {
			logger.Debug().Str("url", url).Msg("Tasks page already visited, stopping")
			break
		}
		visited[url] = true

		doc, err := fetcher.FetchPage(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tasks page %s: %w", url, err)
		}

		page := ParseTasks(doc, style)
		for i, task := range page {
			key := task.ID
			if key == "" {
				key = url + "#" + strconv.Itoa(i)
			}
			tasks[key] = task
		}
		logger.Debug().
			Str("url", url).
			Int("page_tasks", len(page)).
			Int("total_tasks", len(tasks)).
			Msg("Parsed tasks page")

		href, ok := FindNextPage(doc, nextLabel)
		if !ok {
			break
		}
		next, err := common.ResolveURL(url, href)
		if err != nil {
			return nil, err
		}
		url = next
	}
	return tasks, nil
}
