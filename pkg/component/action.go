package component

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Event is the client-supplied payload of an action.
type Event map[string]any

// String returns a string value from the event.
func (e Event) String(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an int value from the event.
func (e Event) Int(key string) int {
	n, _, _ := toNumber(e[key])
	return int(n)
}

// Float returns a float64 value from the event.
func (e Event) Float(key string) float64 {
	n, _, _ := toNumber(e[key])
	return n
}

// Bool returns a bool value from the event.
func (e Event) Bool(key string) bool {
	if v, ok := e[key].(bool); ok {
		return v
	}
	return false
}

// Has reports whether key is present.
func (e Event) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Handler executes one action against a component. It may mutate the
// component's state; if it returns an error (or panics) every mutation it
// made is discarded by the caller.
type Handler func(ctx context.Context, c *Component, event Event) error

// Actions maps method names to handlers.
type Actions map[string]Handler

// Methods returns the sorted method names.
func (a Actions) Methods() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind describes a component type: how it renders, which actions it accepts
// and what state a new instance starts with.
type Kind struct {
	Name    string
	Render  RenderFunc
	Actions Actions
	Init    func() State
}

// New creates a component of this kind. An empty id mints a new one.
func (k *Kind) New(id string) (*Component, error) {
	var initial State
	if k.Init != nil {
		initial = k.Init()
	}
	return New(id, k.Name, k.Render, initial)
}

// Bindings is the application's action registry.
type Bindings struct {
	mu       sync.RWMutex
	byID     map[string]Actions
	byKind   map[string]Actions
	fallback Actions
}

// BindingsOption configures Bindings.
type BindingsOption func(*Bindings)

// WithFallback replaces the built-in fallback table. nil disables it.
func WithFallback(actions Actions) BindingsOption {
	return func(b *Bindings) {
		b.fallback = actions
	}
}

// NewBindings creates an empty registry that falls back to Builtins.
func NewBindings(opts ...BindingsOption) *Bindings {
	b := &Bindings{
		byID:     make(map[string]Actions),
		byKind:   make(map[string]Actions),
		fallback: Builtins(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterKind binds actions for every component of kind. Later calls for the
// same kind add to (and override) earlier ones.
func (b *Bindings) RegisterKind(kind string, actions Actions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKind[kind] = merge(b.byKind[kind], actions)
}

// RegisterComponent binds actions for a single component id.
func (b *Bindings) RegisterComponent(id string, actions Actions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[id] = merge(b.byID[id], actions)
}

// UnregisterComponent drops the per-id actions of a component.
func (b *Bindings) UnregisterComponent(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byID, id)
}

// Resolve finds the handler for method on c.
func (b *Bindings) Resolve(c *Component, method string) (Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if h, ok := b.byID[c.ID()][method]; ok {
		return h, true
	}
	if h, ok := b.byKind[c.Kind()][method]; ok {
		return h, true
	}
	if h, ok := b.fallback[method]; ok {
		return h, true
	}
	return nil, false
}

func merge(dst, src Actions) Actions {
	out := make(Actions, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ErrBadEvent is returned by built-in actions for unusable event payloads.
var ErrBadEvent = errors.New("component: bad event payload")

// DefaultCounterKey is the state key used by increment and decrement when
// the event names none.
const DefaultCounterKey = "count"

// Builtins returns the built-in fallback table:
//
//	set        {key, value}   state[key] = value
//	toggle     {key}          state[key] = !state[key]
//	increment  {key?, by?}    state[key] += by (key defaults to "count", by to 1)
//	decrement  {key?, by?}    state[key] -= by
//	reset      {}             restore the initial state
func Builtins() Actions {
	return Actions{
		"set":       builtinSet,
		"toggle":    builtinToggle,
		"increment": func(ctx context.Context, c *Component, e Event) error { return builtinAdd(c, e, 1) },
		"decrement": func(ctx context.Context, c *Component, e Event) error { return builtinAdd(c, e, -1) },
		"reset": func(ctx context.Context, c *Component, e Event) error {
			c.Reset()
			return nil
		},
	}
}

func builtinSet(ctx context.Context, c *Component, e Event) error {
	key := e.String("key")
	if key == "" {
		return fmt.Errorf("%w: set requires key", ErrBadEvent)
	}
	return c.Set(key, e["value"])
}

func builtinToggle(ctx context.Context, c *Component, e Event) error {
	key := e.String("key")
	if key == "" {
		return fmt.Errorf("%w: toggle requires key", ErrBadEvent)
	}
	return c.Set(key, !c.Bool(key))
}

func builtinAdd(c *Component, e Event, sign float64) error {
	key := e.String("key")
	if key == "" {
		key = DefaultCounterKey
	}

	by, byIntegral := 1.0, true
	if e.Has("by") {
		var ok bool
		by, byIntegral, ok = toNumber(e["by"])
		if !ok {
			return fmt.Errorf("%w: by must be a number", ErrBadEvent)
		}
	}

	cur, curIntegral := 0.0, true
	if v, ok := c.Get(key); ok && v != nil {
		var isNum bool
		cur, curIntegral, isNum = toNumber(v)
		if !isNum {
			return fmt.Errorf("%w: %s is not a number", ErrBadEvent, key)
		}
	}

	next := cur + sign*by
	if curIntegral && byIntegral {
		return c.Set(key, int(next))
	}
	return c.Set(key, next)
}
