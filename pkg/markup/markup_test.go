package markup

import "testing"

func TestRenderIsDeterministic(t *testing.T) {
	build := func() string {
		return MustRender(Component("div", "counter-1", Attrs{"class": "counter", "title": "x"},
			El("span", nil, Text("3")),
			El("button", Attrs{AttrAction: Actions(On("click", "increment"))}, Text("+")),
		))
	}
	first := build()
	want := `<div class="counter" data-component-id="counter-1" title="x"><span>3</span>` +
		`<button data-action="click-&gt;increment">+</button></div>`
	if first != want {
		t.Fatalf("Render()=%q\nwant      %q", first, want)
	}
	for i := 0; i < 5; i++ {
		if got := build(); got != first {
			t.Fatalf("render %d differs: %q", i, got)
		}
	}
}

func TestTextIsEscaped(t *testing.T) {
	got := MustRender(El("p", nil, Text(`<script>&"`)))
	if got != `<p>&lt;script&gt;&amp;&#34;</p>` {
		t.Fatalf("Render()=%q", got)
	}
}

func TestParseActions(t *testing.T) {
	got := ParseActions("click->increment  submit->save bad ->x y-> input->search")
	want := []Descriptor{{"click", "increment"}, {"submit", "save"}, {"input", "search"}}
	if len(got) != len(want) {
		t.Fatalf("ParseActions()=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ParseActions()[%d]=%v, want %v", i, got[i], want[i])
		}
	}
}

func TestAttrHelpers(t *testing.T) {
	n := El("input", Attrs{"name": "q"})
	SetAttr(n, "value", "a")
	SetAttr(n, "value", "b")
	if v, _ := Attr(n, "value"); v != "b" {
		t.Fatalf("value=%q, want b", v)
	}
	RemoveAttr(n, "name")
	if _, ok := Attr(n, "name"); ok {
		t.Fatal("name still present")
	}
	if got := TextContent(El("p", nil, Text("a"), El("b", nil, Text("c")))); got != "ac" {
		t.Fatalf("TextContent()=%q, want ac", got)
	}
}
