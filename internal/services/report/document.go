// Package report parses dashboard and Storage Service pages (task listings,
// normalization reports, package tables, definition lists) from HTML
// snapshots.
package report

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// NewDocument parses an HTML snapshot.
func NewDocument(source string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Text returns the rendered text of sel. Whitespace in text nodes, newlines
// included, collapses to one space; only <br> and block element boundaries
// break lines. Blank lines are dropped.
func Text(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteByte(lineBreak)
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			b.WriteByte(lineBreak)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte(lineBreak)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	// source newlines are plain whitespace here; lineBreak carries the
	// rendered ones
	var kept []string
	for _, line := range strings.Split(b.String(), string(lineBreak)) {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

const lineBreak = '\x00'

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "tr": true,
	"ul": true,
}

// Preformatted returns the text of a <pre> block with only the outer
// whitespace trimmed.
func Preformatted(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// NormalizeKey turns a column or field label into a record key:
// "File UUID" becomes "file_uuid".
func NormalizeKey(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
}
