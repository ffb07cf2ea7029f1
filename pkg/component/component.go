package component

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoRenderer is returned by Render when the component has no render function.
var ErrNoRenderer = errors.New("component: no render function")

// RenderFunc produces markup for a component from its state.
// It must be a pure function of (id, state): two calls with equal arguments
// return byte-identical markup. The state passed in is a private copy.
type RenderFunc func(id string, state State) (string, error)

// Component is an addressable, mutable unit of UI state.
type Component struct {
	id     string
	kind   string
	render RenderFunc

	// exec serializes action execution for this component.
	exec sync.Mutex

	mu      sync.RWMutex
	state   State
	initial State
	dirty   bool
	version uint64
}

// New creates a component. The initial state is normalized and copied.
// An empty id is replaced with a freshly minted one.
func New(id, kind string, render RenderFunc, initial map[string]any) (*Component, error) {
	state, err := NormalizeState(initial)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = NewID(kind)
	}
	return &Component{
		id:      id,
		kind:    kind,
		render:  render,
		state:   state,
		initial: state.Clone(),
	}, nil
}

// MustNew is like New but panics on invalid initial state.
func MustNew(id, kind string, render RenderFunc, initial map[string]any) *Component {
	c, err := New(id, kind, render, initial)
	if err != nil {
		panic(err)
	}
	return c
}

// ID returns the component id.
func (c *Component) ID() string {
	return c.id
}

// Kind returns the component kind.
func (c *Component) Kind() string {
	return c.kind
}

// State returns a deep copy of the current state.
func (c *Component) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Get returns a copy of the value stored under key.
func (c *Component) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.state[key]
	return cloneValue(v), ok
}

// Int returns the value under key as an int, or 0.
func (c *Component) Int(key string) int {
	v, _ := c.Get(key)
	n, _, _ := toNumber(v)
	return int(n)
}

// String returns the value under key as a string, or "".
func (c *Component) String(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// Bool returns the value under key as a bool, or false.
func (c *Component) Bool(key string) bool {
	v, _ := c.Get(key)
	b, _ := v.(bool)
	return b
}

// Set stores value under key and marks the component dirty.
func (c *Component) Set(key string, value any) error {
	nv, err := NormalizeValue(value)
	if err != nil {
		return fmt.Errorf("component %s: set %q: %w", c.id, key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		c.state = State{}
	}
	c.state[key] = nv
	c.touch()
	return nil
}

// Delete removes key and marks the component dirty if it was present.
func (c *Component) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state[key]; ok {
		delete(c.state, key)
		c.touch()
	}
}

// Replace swaps the whole state and marks the component dirty.
func (c *Component) Replace(state map[string]any) error {
	ns, err := NormalizeState(state)
	if err != nil {
		return fmt.Errorf("component %s: replace: %w", c.id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ns
	c.touch()
	return nil
}

// Update lets fn edit a copy of the state; the result replaces the state if
// fn returns nil and is valid.
func (c *Component) Update(fn func(State) error) error {
	next := c.State()
	if next == nil {
		next = State{}
	}
	if err := fn(next); err != nil {
		return err
	}
	return c.Replace(next)
}

// Reset restores the state the component was created with.
func (c *Component) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.initial.Clone()
	c.touch()
}

// Dirty reports whether the state changed since the last Commit.
func (c *Component) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Version is incremented on every mutation.
func (c *Component) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// touch must be called with mu held for writing.
func (c *Component) touch() {
	c.dirty = true
	c.version++
}

// Render renders the current state.
func (c *Component) Render() (string, error) {
	html, _, err := c.renderSnapshot()
	return html, err
}

func (c *Component) renderSnapshot() (string, State, error) {
	if c.render == nil {
		return "", nil, ErrNoRenderer
	}
	state := c.State()
	if state == nil {
		state = State{}
	}
	html, err := c.render(c.id, state.Clone())
	if err != nil {
		return "", nil, fmt.Errorf("component %s: render: %w", c.id, err)
	}
	return html, state, nil
}

// Snapshot is a rendered, committed view of a component.
type Snapshot struct {
	ID      string
	Kind    string
	HTML    string
	State   State
	Version uint64
}

// Commit renders the current state and clears the dirty flag.
// If the state changes while rendering, the flag stays set so the newer
// state is pushed by the next commit.
func (c *Component) Commit() (Snapshot, error) {
	version := c.Version()
	html, state, err := c.renderSnapshot()
	if err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	if c.version == version {
		c.dirty = false
	}
	c.mu.Unlock()
	return Snapshot{ID: c.id, Kind: c.kind, HTML: html, State: state, Version: version}, nil
}

// Checkpoint is a saved state used to undo a failed action.
type Checkpoint struct {
	state   State
	dirty   bool
	version uint64
}

// Checkpoint captures the current state.
func (c *Component) Checkpoint() Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Checkpoint{state: c.state.Clone(), dirty: c.dirty, version: c.version}
}

// Rollback restores a checkpoint, discarding every mutation made since.
func (c *Component) Rollback(cp Checkpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = cp.state
	c.dirty = cp.dirty
	c.version = cp.version
}

// Exclusive runs fn while holding the component's execution lock.
// At most one Exclusive call runs per component at a time. fn must not block
// on work that itself needs the lock.
func (c *Component) Exclusive(fn func() error) error {
	c.exec.Lock()
	defer c.exec.Unlock()
	return fn()
}
