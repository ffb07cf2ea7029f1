package main

import (
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/vango-live/pkg/markup"
	"github.com/vango-dev/vango-live/pkg/server"
)

// metaWebSocket names the meta tag that carries the WebSocket path.
const metaWebSocket = "live-ws"

// renderPage renders every mounted component into one HTML page.
func renderPage(b *server.Broker, wsPath string) (string, error) {
	body := markup.El("body", nil)
	for _, c := range b.Components().All() {
		s, err := c.Render()
		if err != nil {
			return "", err
		}
		nodes, err := html.ParseFragment(strings.NewReader(s), body)
		if err != nil {
			return "", err
		}
		for _, n := range nodes {
			body.AppendChild(n)
		}
	}
	doc := markup.El("html", nil,
		markup.El("head", nil,
			markup.El("meta", markup.Attrs{"charset": "utf-8"}),
			markup.El("meta", markup.Attrs{"name": metaWebSocket, "content": wsPath}),
			markup.El("title", nil, markup.Text("vango-live")),
		),
		body,
	)
	out, err := markup.Render(doc)
	if err != nil {
		return "", err
	}
	return "<!DOCTYPE html>" + out, nil
}

func pageHandler(b *server.Broker, wsPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := renderPage(b, wsPath)
		if err != nil {
			b.Logger().Error("page render failed", "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}
}

// webSocketPath returns the content of the live-ws meta tag.
func webSocketPath(doc *html.Node) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			if name, _ := markup.Attr(n, "name"); name == metaWebSocket {
				found, _ = markup.Attr(n, "content")
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
