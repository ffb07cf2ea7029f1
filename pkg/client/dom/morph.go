package dom

import (
	"golang.org/x/net/html"

	"github.com/vango-dev/vango-live/pkg/markup"
)

// morph makes old look like next, reusing old's nodes where the type and tag
// agree. It returns the node that now stands in old's place: old itself, or
// next when the two could not be reconciled.
func morph(old, next *html.Node) *html.Node {
	if !compatible(old, next) {
		replace(old, next)
		return next
	}
	switch old.Type {
	case html.TextNode, html.CommentNode:
		if old.Data != next.Data {
			old.Data = next.Data
		}
		return old
	case html.ElementNode:
		morphAttrs(old, next)
		morphChildren(old, next)
	}
	return old
}

func compatible(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == html.ElementNode {
		if a.Data != b.Data || a.Namespace != b.Namespace {
			return false
		}
		ka, kb := key(a), key(b)
		return ka == kb
	}
	return true
}

// key identifies an element across renders.
func key(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	if v, ok := markup.Attr(n, markup.AttrComponentID); ok && v != "" {
		return "c:" + v
	}
	if v, ok := markup.Attr(n, "id"); ok && v != "" {
		return "i:" + v
	}
	return ""
}

func morphAttrs(old, next *html.Node) {
	want := make(map[string]string, len(next.Attr))
	for _, a := range next.Attr {
		if a.Namespace == "" {
			want[a.Key] = a.Val
		}
	}
	kept := old.Attr[:0]
	for _, a := range old.Attr {
		if a.Namespace != "" {
			kept = append(kept, a)
			continue
		}
		if v, ok := want[a.Key]; ok {
			a.Val = v
			kept = append(kept, a)
			delete(want, a.Key)
		}
	}
	old.Attr = kept
	for _, a := range next.Attr {
		if _, ok := want[a.Key]; ok && a.Namespace == "" {
			old.Attr = append(old.Attr, html.Attribute{Key: a.Key, Val: a.Val})
		}
	}
}

func morphChildren(old, next *html.Node) {
	oldKids := children(old)
	newKids := children(next)

	keyed := make(map[string]*html.Node)
	for _, c := range oldKids {
		if k := key(c); k != "" {
			keyed[k] = c
		}
	}
	used := make(map[*html.Node]bool, len(oldKids))

	result := make([]*html.Node, 0, len(newKids))
	cursor := 0
	for _, nk := range newKids {
		next.RemoveChild(nk)

		var match *html.Node
		if k := key(nk); k != "" {
			if o, ok := keyed[k]; ok && !used[o] {
				match = o
			}
		} else {
			for i := cursor; i < len(oldKids); i++ {
				o := oldKids[i]
				if used[o] || key(o) != "" || !compatible(o, nk) {
					continue
				}
				match = o
				cursor = i + 1
				break
			}
		}
		if match == nil {
			result = append(result, nk)
			continue
		}
		used[match] = true
		old.RemoveChild(match)
		result = append(result, morphDetached(match, nk))
	}

	for c := old.FirstChild; c != nil; {
		nx := c.NextSibling
		old.RemoveChild(c)
		c = nx
	}
	for _, c := range result {
		old.AppendChild(c)
	}
}

func morphDetached(old, next *html.Node) *html.Node {
	if !compatible(old, next) {
		return next
	}
	return morph(old, next)
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// replace puts next where old is.
func replace(old, next *html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(next, old)
	parent.RemoveChild(old)
}
