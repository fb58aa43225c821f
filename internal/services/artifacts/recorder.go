// Package artifacts records what the browser showed when a step failed: a
// full-page screenshot, the raw page source and a markdown rendering of it.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/amsc/internal/interfaces"
)

// Capture lists the files written for one failure.
type Capture struct {
	Screenshot string
	Source     string
	Markdown   string
}

// Recorder writes failure captures into a per-run directory under baseDir.
type Recorder struct {
	baseDir string
	logger  arbor.ILogger
	now     func() time.Time

	once   sync.Once
	runDir string
	err    error
}

// NewRecorder creates a recorder rooted at baseDir.
func NewRecorder(baseDir string, logger arbor.ILogger) *Recorder {
	return &Recorder{baseDir: baseDir, logger: logger, now: time.Now}
}

// RunDir returns the directory of the current run, creating it on first use.
func (r *Recorder) RunDir() (string, error) {
	r.once.Do(func() {
		r.runDir = filepath.Join(r.baseDir, r.now().Format("run-2006-01-02-15-04-05"))
		if err := os.MkdirAll(r.runDir, 0755); err != nil {
			r.err = fmt.Errorf("failed to create artifacts directory: %w", err)
		}
	})
	return r.runDir, r.err
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileStem(name string) string {
	stem := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if stem == "" {
		stem = "capture"
	}
	return stem
}

// Capture saves the state of the page shown in s under name. Every part is
// attempted; the returned error joins the failures of the parts that could
// not be written.
func (r *Recorder) Capture(ctx context.Context, s interfaces.Session, name string) (Capture, error) {
	var out Capture
	dir, err := r.RunDir()
	if err != nil {
		return out, err
	}
	stem := filepath.Join(dir, fmt.Sprintf("%s-%s", fileStem(name), r.now().Format("2006-01-02_15-04-05")))

	var errs []error
	if png, err := s.Screenshot(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to capture screenshot: %w", err))
	} else if err := os.WriteFile(stem+".png", png, 0644); err != nil {
		errs = append(errs, fmt.Errorf("failed to save screenshot: %w", err))
	} else {
		out.Screenshot = stem + ".png"
	}

	source, err := s.PageSource(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to read page source: %w", err))
	} else {
		if err := os.WriteFile(stem+".html", []byte(source), 0644); err != nil {
			errs = append(errs, fmt.Errorf("failed to save page source: %w", err))
		} else {
			out.Source = stem + ".html"
		}

		pageURL, _ := s.CurrentURL(ctx)
		markdown, err := r.toMarkdown(source, pageURL)
		if err == nil {
			err = os.WriteFile(stem+".md", []byte(markdown), 0644)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to save markdown: %w", err))
		} else {
			out.Markdown = stem + ".md"
		}
	}

	r.logger.Info().
		Str("name", name).
		Str("screenshot", out.Screenshot).
		Str("markdown", out.Markdown).
		Int("failures", len(errs)).
		Msg("Captured failure artifacts")
	return out, errors.Join(errs...)
}

// toMarkdown renders page source as markdown, prefixed with the page URL.
func (r *Recorder) toMarkdown(source, pageURL string) (string, error) {
	converter := md.NewConverter(pageURL, true, nil)
	converted, err := converter.ConvertString(source)
	if err != nil {
		return "", err
	}
	if pageURL == "" {
		return converted, nil
	}
	return fmt.Sprintf("<!-- %s -->\n\n%s\n", pageURL, strings.TrimSpace(converted)), nil
}
