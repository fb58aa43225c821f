// Package mets reads Archivematica METS documents: PREMIS events, the
// entities of the physical structMap and their persistent identifiers.
package mets

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Namespaces maps the prefixes used in queries to the namespace URIs found in
// Archivematica METS files.
var Namespaces = map[string]string{
	"mets":    "http://www.loc.gov/METS/",
	"premis":  "info:lc/xmlns/premis-v2",
	"premis3": "http://www.loc.gov/premis/v3",
	"dc":      "http://purl.org/dc/elements/1.1/",
	"dcterms": "http://purl.org/dc/terms/",
	"xlink":   "http://www.w3.org/1999/xlink",
}

// Document is a parsed METS file.
type Document struct {
	root *xmlquery.Node

	mu    sync.Mutex
	exprs map[string]*xpath.Expr
}

// Parse reads a METS document from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse METS document: %w", err)
	}
	if root.SelectElement("*") == nil {
		return nil, fmt.Errorf("failed to parse METS document: no root element")
	}
	return &Document{root: root, exprs: make(map[string]*xpath.Expr)}, nil
}

// ParseString reads a METS document held in memory.
func ParseString(source string) (*Document, error) {
	return Parse(strings.NewReader(source))
}

// Root returns the document node.
func (d *Document) Root() *xmlquery.Node {
	return d.root
}

// Find evaluates a namespaced path expression relative to node (the document
// when node is nil).
func (d *Document) Find(node *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	compiled, err := d.compile(expr)
	if err != nil {
		return nil, err
	}
	if node == nil {
		node = d.root
	}
	return xmlquery.QuerySelectorAll(node, compiled), nil
}

// FindOne is Find returning the first match, or nil.
func (d *Document) FindOne(node *xmlquery.Node, expr string) (*xmlquery.Node, error) {
	nodes, err := d.Find(node, expr)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// TextOf returns the trimmed text of the first match, or "".
func (d *Document) TextOf(node *xmlquery.Node, expr string) (string, error) {
	n, err := d.FindOne(node, expr)
	if err != nil || n == nil {
		return "", err
	}
	return strings.TrimSpace(n.InnerText()), nil
}

func (d *Document) compile(expr string) (*xpath.Expr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if compiled, ok := d.exprs[expr]; ok {
		return compiled, nil
	}
	compiled, err := xpath.CompileWithNS(expr, Namespaces)
	if err != nil {
		return nil, fmt.Errorf("invalid METS query %q: %w", expr, err)
	}
	d.exprs[expr] = compiled
	return compiled, nil
}
