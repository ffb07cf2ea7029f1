// Package markup builds component markup as golang.org/x/net/html node trees
// and renders it deterministically.
package markup

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute names shared by the server renderers and the client binder.
const (
	AttrComponentID = "data-component-id"
	AttrAction      = "data-action"
)

// Attrs is an element's attributes. Render order is sorted by key.
type Attrs map[string]string

// El creates an element node.
func El(tag string, attrs Attrs, children ...*html.Node) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}
	for _, c := range children {
		if c != nil {
			n.AppendChild(c)
		}
	}
	return n
}

// Text creates a text node. Render escapes it.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Component creates the root element of a component.
func Component(tag, id string, attrs Attrs, children ...*html.Node) *html.Node {
	all := make(Attrs, len(attrs)+1)
	for k, v := range attrs {
		all[k] = v
	}
	all[AttrComponentID] = id
	return El(tag, all, children...)
}

// On returns one action descriptor, e.g. On("click", "increment") is
// "click->increment".
func On(eventType, method string) string {
	return eventType + "->" + method
}

// Actions joins descriptors into a data-action value.
func Actions(descriptors ...string) string {
	return strings.Join(descriptors, " ")
}

// Descriptor is one parsed action descriptor.
type Descriptor struct {
	Event  string
	Method string
}

// ParseActions splits a data-action value into descriptors. Malformed
// entries are skipped.
func ParseActions(value string) []Descriptor {
	var out []Descriptor
	for _, field := range strings.Fields(value) {
		event, method, ok := strings.Cut(field, "->")
		if !ok || event == "" || method == "" {
			continue
		}
		out = append(out, Descriptor{Event: event, Method: method})
	}
	return out
}

// Render renders n and its subtree.
func Render(n *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// MustRender is like Render but panics on error.
func MustRender(n *html.Node) string {
	s, err := Render(n)
	if err != nil {
		panic(err)
	}
	return s
}

// Attr returns the value of key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets key on n, replacing an existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr removes key from n.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// TextContent returns the concatenated text of n's subtree.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
