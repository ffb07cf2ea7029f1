package dom

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/vango-dev/vango-live/pkg/markup"
	"github.com/vango-dev/vango-live/pkg/protocol"
)

type sent struct {
	componentID string
	method      string
	event       map[string]any
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sent
	err   error
}

func (f *fakeSender) Action(componentID, method string, event map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, sent{componentID, method, event})
	return nil
}

var fixedNow = time.UnixMilli(1700000000000)

func newBinder(t *testing.T, page string, opts ...Option) (*Binder, *Document, *fakeSender) {
	t.Helper()
	doc, err := Parse(page)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s := &fakeSender{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewBinder(doc, s, opts...), doc, s
}

func TestDiscovery(t *testing.T) {
	b, _, _ := newBinder(t, `<main>
		<div data-component-id="b"><div data-component-id="a"></div></div>
		<section data-component-id="c"></section>
		<div data-component-id=""></div>
	</main>`)

	if got, want := b.Components(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Components()=%v, want %v", got, want)
	}
	if el := b.Element("c"); el == nil || el.Data != "section" {
		t.Fatalf("Element(c)=%v", el)
	}
}

func TestInsertScansOnlyInsertedSubtree(t *testing.T) {
	b, doc, _ := newBinder(t, `<div id="host"></div>`)
	host := doc.ByID("host")

	// Added behind the binder's back: not discovered by a later Insert.
	host.AppendChild(markup.Component("div", "hidden", nil))

	found, err := b.Insert(host, `<p>x</p><div data-component-id="late"><span data-component-id="inner"></span></div>`)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if want := []string{"late", "inner"}; !reflect.DeepEqual(found, want) {
		t.Fatalf("Insert() found %v, want %v", found, want)
	}
	if got, want := b.Components(), []string{"inner", "late"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Components()=%v, want %v", got, want)
	}

	b.Remove(b.Element("late"))
	if got := b.Components(); len(got) != 0 {
		t.Fatalf("Components() after Remove = %v, want none", got)
	}
}

func TestDispatchClick(t *testing.T) {
	b, doc, s := newBinder(t, `<div data-component-id="counter-1">
		<button id="inc" data-action="click->increment submit->ignored"><span id="label">+</span></button>
	</div>`)

	res, err := b.Dispatch(Event{Type: EventClick, Target: doc.ByID("label"), ClientX: 10, ClientY: 20})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Sent || res.ComponentID != "counter-1" || res.Method != "increment" || res.PreventDefault {
		t.Fatalf("Dispatch()=%+v", res)
	}
	if len(s.calls) != 1 {
		t.Fatalf("sent %d actions, want 1", len(s.calls))
	}
	want := map[string]any{
		"type":      "click",
		"timestamp": fixedNow.UnixMilli(),
		"clientX":   float64(10),
		"clientY":   float64(20),
	}
	if !reflect.DeepEqual(s.calls[0].event, want) {
		t.Fatalf("payload=%v, want %v", s.calls[0].event, want)
	}
}

func TestDispatchInput(t *testing.T) {
	b, doc, s := newBinder(t, `<div data-component-id="search">
		<input id="q" name="query" value="he" data-action="input->search change->commit">
	</div>`)
	q := doc.ByID("q")

	typed := "hello"
	if _, err := b.Dispatch(Event{Type: EventInput, Target: q, Value: &typed}); err != nil {
		t.Fatalf("Dispatch(input) error = %v", err)
	}
	if _, err := b.Dispatch(Event{Type: EventChange, Target: q}); err != nil {
		t.Fatalf("Dispatch(change) error = %v", err)
	}
	if len(s.calls) != 2 {
		t.Fatalf("sent %d actions, want 2", len(s.calls))
	}
	in, ch := s.calls[0], s.calls[1]
	if in.method != "search" || in.event["value"] != "hello" || in.event["name"] != "query" || in.event["type"] != "input" {
		t.Fatalf("input action=%+v", in)
	}
	if ch.method != "commit" || ch.event["value"] != "he" {
		t.Fatalf("change action=%+v", ch)
	}
	if _, ok := in.event["clientX"]; ok {
		t.Fatal("input payload carries pointer coordinates")
	}
}

func TestDispatchSubmit(t *testing.T) {
	b, doc, s := newBinder(t, `<div data-component-id="signup">
		<form id="f" data-action="submit->save">
			<input name="email" value="a@b.c">
			<input type="checkbox" name="terms" checked>
			<input type="checkbox" name="news">
			<input name="off" value="x" disabled>
			<textarea name="bio">hi there</textarea>
			<select name="plan"><option value="free">Free</option><option value="pro" selected>Pro</option></select>
			<button id="go" type="submit">Go</button>
		</form>
	</div>`)

	res, err := b.Dispatch(Event{Type: EventSubmit, Target: doc.ByID("go")})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Sent || !res.PreventDefault {
		t.Fatalf("Dispatch()=%+v, want sent with default prevented", res)
	}
	want := map[string]any{
		"email": "a@b.c",
		"terms": "on",
		"bio":   "hi there",
		"plan":  "pro",
	}
	if got := s.calls[0].event["fields"]; !reflect.DeepEqual(got, want) {
		t.Fatalf("fields=%v, want %v", got, want)
	}
}

func TestDispatchIgnored(t *testing.T) {
	b, doc, s := newBinder(t, `
		<div data-component-id="c"><button id="plain">x</button><button id="hover" data-action="mouseover->x">y</button></div>
		<button id="orphan" data-action="click->increment">z</button>`)

	cases := []struct {
		name string
		ev   Event
	}{
		{"no descriptor", Event{Type: EventClick, Target: doc.ByID("plain")}},
		{"other event type", Event{Type: EventClick, Target: doc.ByID("hover")}},
		{"undelegated type", Event{Type: "mouseover", Target: doc.ByID("hover")}},
		{"outside component", Event{Type: EventClick, Target: doc.ByID("orphan")}},
		{"nil target", Event{Type: EventClick}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := b.Dispatch(tc.ev)
			if err != nil || res.Sent {
				t.Fatalf("Dispatch()=%+v, %v; want nothing sent", res, err)
			}
		})
	}
	if len(s.calls) != 0 {
		t.Fatalf("sent %v", s.calls)
	}
}

func TestDispatchSendError(t *testing.T) {
	b, doc, s := newBinder(t, `<div data-component-id="c"><button id="b" data-action="click->go">x</button></div>`)
	boom := errors.New("queue full")
	s.err = boom

	res, err := b.Dispatch(Event{Type: EventClick, Target: doc.ByID("b")})
	if !errors.Is(err, boom) || res.Sent {
		t.Fatalf("Dispatch()=%+v, %v; want %v", res, err, boom)
	}
}

func TestApplyMorphKeepsNodesAndCaret(t *testing.T) {
	b, doc, _ := newBinder(t, `<div data-component-id="search" class="a">
		<input id="q" name="q" value="hello"><p>0 results</p></div>`)
	root := b.Element("search")
	input := doc.ByID("q")
	b.Focus(input, 5)

	err := b.Apply(protocol.Update{
		ComponentID: "search",
		HTML:        `<div data-component-id="search" class="b" data-x="1"><input id="q" name="q" value="hi"><p>3 results</p></div>`,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if b.Element("search") != root {
		t.Fatal("component root was replaced")
	}
	if doc.ByID("q") != input {
		t.Fatal("focused input was replaced")
	}
	if v, _ := markup.Attr(input, "value"); v != "hi" {
		t.Fatalf("value=%q, want hi", v)
	}
	if cls, _ := markup.Attr(root, "class"); cls != "b" {
		t.Fatalf("class=%q, want b", cls)
	}
	if _, ok := markup.Attr(root, "data-x"); !ok {
		t.Fatal("new attribute not added")
	}
	if got := markup.TextContent(root); got != "3 results" {
		t.Fatalf("text=%q, want 3 results", got)
	}
	focus, caret := b.Focused()
	if focus != input || caret != 2 {
		t.Fatalf("Focused()=%p,%d; want input,2", focus, caret)
	}
}

func TestApplyMorphReconcilesChildren(t *testing.T) {
	b, doc, _ := newBinder(t, `<ul data-component-id="list">
		<li id="a">a</li><li id="b">b</li><li data-component-id="item-1">1</li></ul>`)
	liB := doc.ByID("b")

	err := b.Apply(protocol.Update{
		ComponentID: "list",
		HTML:        `<ul data-component-id="list"><li id="b">B</li><li data-component-id="item-2">2</li><li>tail</li></ul>`,
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if doc.ByID("b") != liB {
		t.Fatal("keyed child was not reused")
	}
	if doc.ByID("a") != nil {
		t.Fatal("removed child still present")
	}
	if got, want := b.Components(), []string{"item-2", "list"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Components()=%v, want %v", got, want)
	}
	var texts []string
	for c := b.Element("list").FirstChild; c != nil; c = c.NextSibling {
		texts = append(texts, markup.TextContent(c))
	}
	if want := []string{"B", "2", "tail"}; !reflect.DeepEqual(texts, want) {
		t.Fatalf("children=%v, want %v", texts, want)
	}
}

func TestApplyWithoutMorphReplacesOuterMarkup(t *testing.T) {
	b, doc, _ := newBinder(t, `<div data-component-id="c"><input id="q" value="abc"></div>`, WithoutMorph())
	old := b.Element("c")
	b.Focus(doc.ByID("q"), 2)

	if err := b.Apply(protocol.Update{ComponentID: "c", HTML: `<div data-component-id="c"><b>new</b></div>`}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	el := b.Element("c")
	if el == old || el == nil {
		t.Fatal("element was not replaced")
	}
	if el.Parent == nil || el.FirstChild == nil || el.FirstChild.Data != "b" {
		t.Fatalf("replacement not attached: %+v", el)
	}
	if focus, _ := b.Focused(); focus != nil {
		t.Fatal("focus kept on a detached node")
	}
}

func TestApplyErrors(t *testing.T) {
	b, _, _ := newBinder(t, `<div data-component-id="c"></div>`)

	if err := b.Apply(protocol.Update{ComponentID: "missing", HTML: "<div></div>"}); !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("Apply(missing) error = %v, want ErrUnknownComponent", err)
	}
	if err := b.Apply(protocol.Update{ComponentID: "c", HTML: "<p>a</p><p>b</p>"}); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("Apply(no root) error = %v, want ErrNoRoot", err)
	}
}

func TestDocumentRender(t *testing.T) {
	doc, err := Parse(`<div data-component-id="c">x</div>`)
	if err != nil {
		t.Fatal(err)
	}
	out, err := doc.Render()
	if err != nil {
		t.Fatal(err)
	}
	want := `<html><head></head><body><div data-component-id="c">x</div></body></html>`
	if out != want {
		t.Fatalf("Render()=%q, want %q", out, want)
	}
	if doc.Body() == nil || doc.Find(func(n *html.Node) bool { return n.Data == "div" }) == nil {
		t.Fatal("Body/Find returned nil")
	}
}

func TestFindAndRender(t *testing.T) {
	b, _, _ := newBinder(t, `<div data-component-id="c"><b id="x">hi</b></div>`)
	if n := b.Find(func(n *html.Node) bool { v, _ := markup.Attr(n, "id"); return v == "x" }); n == nil || n.Data != "b" {
		t.Fatalf("Find()=%v", n)
	}
	out, err := b.Render("c")
	if err != nil || out != `<div data-component-id="c"><b id="x">hi</b></div>` {
		t.Fatalf("Render()=%q, %v", out, err)
	}
	if _, err := b.Render("nope"); !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("Render(nope) error = %v", err)
	}
}
