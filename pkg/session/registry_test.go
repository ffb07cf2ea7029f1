package session

import (
	"sync"
	"testing"

	"github.com/vango-dev/vango-live/pkg/protocol"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []*protocol.Message
	closed bool
}

func (f *fakeTransport) Send(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	r := NewRegistry()
	t1, t2 := &fakeTransport{}, &fakeTransport{}

	s1, replaced := r.Upsert("s", t1, []string{"a", "b"})
	if replaced {
		t.Fatal("first Upsert reported replaced")
	}
	s2, replaced := r.Upsert("s", t2, []string{"c"})
	if !replaced {
		t.Fatal("second Upsert did not report replaced")
	}
	if s1 != s2 {
		t.Fatal("Upsert created a second record for the same id")
	}
	if r.Len() != 1 {
		t.Fatalf("Len=%d, want 1", r.Len())
	}
	if s2.Transport() != t2 {
		t.Fatal("transport not replaced")
	}
	if s2.Interested("a") || !s2.Interested("c") {
		t.Fatalf("interest=%v, want [c]", s2.Interest())
	}
}

func TestRemoveIfTransport(t *testing.T) {
	r := NewRegistry()
	old, cur := &fakeTransport{}, &fakeTransport{}
	r.Upsert("s", old, nil)
	r.Upsert("s", cur, nil)

	if r.RemoveIfTransport("s", old) {
		t.Fatal("stale transport removed the newer registration")
	}
	if _, ok := r.Get("s"); !ok {
		t.Fatal("session missing after stale remove")
	}
	if !r.RemoveIfTransport("s", cur) {
		t.Fatal("current transport could not remove its registration")
	}
	if r.Len() != 0 {
		t.Fatalf("Len=%d, want 0", r.Len())
	}
}

func TestBroadcastCandidates(t *testing.T) {
	r := NewRegistry()
	r.Upsert("a", &fakeTransport{}, []string{"counter-1"})
	r.Upsert("b", &fakeTransport{}, []string{"counter-2"})
	r.Upsert("c", &fakeTransport{}, []string{"counter-1", "counter-2"})

	tests := []struct {
		component string
		want      []string
	}{
		{"counter-1", []string{"a", "c"}},
		{"counter-2", []string{"b", "c"}},
		{"counter-3", nil},
	}
	for _, tt := range tests {
		got := r.BroadcastCandidates(tt.component)
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %d sessions, want %d", tt.component, len(got), len(tt.want))
		}
		for i, s := range got {
			if s.ID != tt.want[i] {
				t.Fatalf("%s: got[%d]=%q, want %q", tt.component, i, s.ID, tt.want[i])
			}
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Upsert("s", &fakeTransport{}, nil)
	s.Subscribe("x", "y")
	s.Unsubscribe("x")
	got := s.Interest()
	if len(got) != 1 || got[0] != "y" {
		t.Fatalf("Interest=%v, want [y]", got)
	}
}

func TestSendWithoutTransport(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Upsert("s", nil, nil)
	if s.Live() {
		t.Fatal("session without transport reported live")
	}
	if err := s.Send(protocol.NewPong()); err != ErrNoTransport {
		t.Fatalf("Send err=%v, want ErrNoTransport", err)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Upsert("shared", &fakeTransport{}, []string{"c"})
		}()
		go func() {
			defer wg.Done()
			_ = r.BroadcastCandidates("c")
		}()
	}
	wg.Wait()
	if r.Len() != 1 {
		t.Fatalf("Len=%d, want 1", r.Len())
	}
}
