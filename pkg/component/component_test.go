package component

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
)

func counterRender(id string, state State) (string, error) {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, `<div data-component-id="%s">`, id)
	for _, k := range keys {
		fmt.Fprintf(&b, "<span>%s=%v</span>", k, state[k])
	}
	b.WriteString("</div>")
	return b.String(), nil
}

func TestComponent_RenderIsIdempotent(t *testing.T) {
	c := MustNew("c1", "counter", counterRender, map[string]any{"count": 0, "label": "x"})

	first, err := c.Render()
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	second, err := c.Render()
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if first != second {
		t.Fatalf("renders differ:\n%s\n%s", first, second)
	}
}

func TestComponent_RenderReceivesPrivateCopy(t *testing.T) {
	c := MustNew("c1", "k", func(id string, state State) (string, error) {
		state["count"] = 99
		return "", nil
	}, map[string]any{"count": 1})

	if _, err := c.Render(); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if got := c.Int("count"); got != 1 {
		t.Fatalf("count=%d after render, want 1", got)
	}
	if c.Dirty() {
		t.Fatal("render marked component dirty")
	}
}

func TestComponent_MutationsMarkDirtyAndCommitClears(t *testing.T) {
	c := MustNew("c1", "k", counterRender, nil)
	if c.Dirty() {
		t.Fatal("new component is dirty")
	}

	if err := c.Set("count", 1); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if !c.Dirty() {
		t.Fatal("Set did not mark dirty")
	}

	snap, err := c.Commit()
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if c.Dirty() {
		t.Fatal("Commit did not clear dirty")
	}
	if snap.State["count"] != 1 {
		t.Fatalf("snapshot count=%v, want 1", snap.State["count"])
	}
	if !strings.Contains(snap.HTML, "count=1") {
		t.Fatalf("snapshot html=%q", snap.HTML)
	}
}

func TestComponent_CommitWithoutRendererFails(t *testing.T) {
	c := MustNew("c1", "k", nil, nil)
	if _, err := c.Commit(); !errors.Is(err, ErrNoRenderer) {
		t.Fatalf("Commit() error=%v, want ErrNoRenderer", err)
	}
}

func TestComponent_StateIsACopy(t *testing.T) {
	c := MustNew("c1", "k", counterRender, map[string]any{"items": []any{"a"}})
	s := c.State()
	s["items"].([]any)[0] = "mutated"
	s["new"] = true

	got := c.State()
	if got["items"].([]any)[0] != "a" {
		t.Fatalf("items[0]=%v, want a", got["items"].([]any)[0])
	}
	if _, ok := got["new"]; ok {
		t.Fatal("copy mutation leaked into component")
	}
}

func TestComponent_RollbackDiscardsMutations(t *testing.T) {
	c := MustNew("c1", "k", counterRender, map[string]any{"count": 5})
	cp := c.Checkpoint()

	_ = c.Set("count", 6)
	_ = c.Set("extra", "x")
	c.Rollback(cp)

	if got := c.Int("count"); got != 5 {
		t.Fatalf("count=%d, want 5", got)
	}
	if _, ok := c.Get("extra"); ok {
		t.Fatal("extra survived rollback")
	}
	if c.Dirty() {
		t.Fatal("rollback left component dirty")
	}
}

func TestComponent_UpdateAndReset(t *testing.T) {
	c := MustNew("c1", "k", counterRender, map[string]any{"count": 0})

	err := c.Update(func(s State) error {
		s["count"] = 10
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got := c.Int("count"); got != 10 {
		t.Fatalf("count=%d, want 10", got)
	}

	wantErr := errors.New("nope")
	if err := c.Update(func(s State) error {
		s["count"] = 11
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Update() error=%v, want %v", err, wantErr)
	}
	if got := c.Int("count"); got != 10 {
		t.Fatalf("count=%d after failed update, want 10", got)
	}

	c.Reset()
	if got := c.Int("count"); got != 0 {
		t.Fatalf("count=%d after reset, want 0", got)
	}
}

func TestComponent_RejectsNonJSONSafeState(t *testing.T) {
	if _, err := New("c1", "k", nil, map[string]any{"fn": func() {}}); !errors.Is(err, ErrNotJSONSafe) {
		t.Fatalf("New() error=%v, want ErrNotJSONSafe", err)
	}

	c := MustNew("c1", "k", nil, nil)
	if err := c.Set("ch", make(chan int)); !errors.Is(err, ErrNotJSONSafe) {
		t.Fatalf("Set() error=%v, want ErrNotJSONSafe", err)
	}
	if c.Dirty() {
		t.Fatal("rejected Set marked component dirty")
	}
}

func TestComponent_ExclusiveSerializesCounter(t *testing.T) {
	c := MustNew("c1", "k", counterRender, map[string]any{"count": 0})

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = c.Exclusive(func() error {
				n := c.Int("count")
				return c.Set("count", n+1)
			})
		}()
	}
	wg.Wait()

	if got := c.Int("count"); got != workers {
		t.Fatalf("count=%d, want %d", got, workers)
	}
}

func TestNewID_PrefixesKind(t *testing.T) {
	id := NewID("counter")
	if !strings.HasPrefix(id, "counter-") {
		t.Fatalf("NewID() = %q, want counter- prefix", id)
	}
	if NewID("counter") == id {
		t.Fatal("NewID returned the same id twice")
	}

	c := MustNew("", "counter", nil, nil)
	if !strings.HasPrefix(c.ID(), "counter-") {
		t.Fatalf("minted id=%q", c.ID())
	}
}
