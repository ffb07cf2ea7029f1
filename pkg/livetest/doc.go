// Package livetest provides helpers for testing component kinds over a real
// live channel.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    h := livetest.NewHarness(t, []component.Kind{counterKind})
//	    h.Mount(t, "counter", "c1")
//
//	    c := h.Dial(t, "s1", "c1")
//	    u := c.Action(t, "c1", "increment", nil)
//	    livetest.ExpectContains(t, u.HTML, "<span>1</span>")
//	}
//
// The harness runs the server on an httptest.Server and is torn down with
// t.Cleanup. Clients speak the JSON protocol directly over gorilla/websocket.
package livetest
