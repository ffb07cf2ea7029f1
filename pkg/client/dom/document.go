package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/vango-live/pkg/markup"
)

// Document is a parsed HTML document.
type Document struct {
	root *html.Node
}

// Parse parses a full HTML document.
func Parse(page string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{root: root}, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Body returns the body element, or nil.
func (d *Document) Body() *html.Node {
	return find(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
}

// Render serializes the document.
func (d *Document) Render() (string, error) {
	return markup.Render(d.root)
}

// Find returns the first element in document order matching pred.
func (d *Document) Find(pred func(*html.Node) bool) *html.Node {
	return find(d.root, pred)
}

// ByID returns the element with the given id attribute.
func (d *Document) ByID(id string) *html.Node {
	return find(d.root, func(n *html.Node) bool {
		v, ok := markup.Attr(n, "id")
		return n.Type == html.ElementNode && ok && v == id
	})
}

func find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := find(c, pred); m != nil {
			return m
		}
	}
	return nil
}

// contains reports whether n is root or one of its descendants.
func contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// fragment parses markup in the context of parent. A nil or non-element
// parent parses as body content.
func fragment(parent *html.Node, s string) ([]*html.Node, error) {
	ctx := parent
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}
