package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/markup"
)

// demoKinds are the component kinds the serve command registers.
func demoKinds() []component.Kind {
	return []component.Kind{counterKind(), clockKind(), greeterKind()}
}

func counterKind() component.Kind {
	return component.Kind{
		Name: "counter",
		Init: func() component.State { return component.State{"count": 0} },
		Render: func(id string, s component.State) (string, error) {
			return markup.Render(markup.Component("div", id, markup.Attrs{"class": "counter"},
				markup.El("button", markup.Attrs{markup.AttrAction: markup.On("click", "decrement")}, markup.Text("-")),
				markup.El("span", markup.Attrs{"class": "count"}, markup.Text(fmt.Sprint(s["count"]))),
				markup.El("button", markup.Attrs{markup.AttrAction: markup.On("click", "increment")}, markup.Text("+")),
				markup.El("button", markup.Attrs{markup.AttrAction: markup.On("click", "double")}, markup.Text("x2")),
				markup.El("button", markup.Attrs{markup.AttrAction: markup.On("click", "reset")}, markup.Text("reset")),
			))
		},
		Actions: component.Actions{
			"double": func(ctx context.Context, c *component.Component, e component.Event) error {
				return c.Set("count", c.Int("count")*2)
			},
		},
	}
}

// clockKind is updated by the server, never by clients.
func clockKind() component.Kind {
	return component.Kind{
		Name: "clock",
		Init: func() component.State { return component.State{"now": ""} },
		Render: func(id string, s component.State) (string, error) {
			return markup.Render(markup.Component("time", id, nil, markup.Text(fmt.Sprint(s["now"]))))
		},
	}
}

func greeterKind() component.Kind {
	return component.Kind{
		Name: "greeter",
		Init: func() component.State {
			return component.State{"draft": "", "greeting": "", "count": 0}
		},
		Render: func(id string, s component.State) (string, error) {
			draft := fmt.Sprint(s["draft"])
			return markup.Render(markup.Component("div", id, markup.Attrs{"class": "greeter"},
				markup.El("form", markup.Attrs{markup.AttrAction: markup.On("submit", "greet")},
					markup.El("input", markup.Attrs{
						"id":              id + "-name",
						"name":            "name",
						"value":           draft,
						markup.AttrAction: markup.On("input", "preview"),
					}),
					markup.El("button", markup.Attrs{"type": "submit"}, markup.Text("Greet")),
				),
				markup.El("p", markup.Attrs{"class": "greeting"}, markup.Text(fmt.Sprint(s["greeting"]))),
				markup.El("small", nil, markup.Text(strconv.Itoa(toInt(s["count"]))+" greeted")),
			))
		},
		Actions: component.Actions{
			"preview": func(ctx context.Context, c *component.Component, e component.Event) error {
				return c.Set("draft", e.String("value"))
			},
			"greet": func(ctx context.Context, c *component.Component, e component.Event) error {
				fields, _ := e["fields"].(map[string]any)
				name, _ := fields["name"].(string)
				name = strings.TrimSpace(name)
				if name == "" {
					return fmt.Errorf("%w: name is required", component.ErrBadEvent)
				}
				return c.Update(func(s component.State) error {
					s["greeting"] = "Hello, " + name + "!"
					s["draft"] = ""
					s["count"] = toInt(s["count"]) + 1
					return nil
				})
			},
		},
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
