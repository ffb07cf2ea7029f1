package dom

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/vango-live/pkg/markup"
	"github.com/vango-dev/vango-live/pkg/protocol"
)

var (
	// ErrUnknownComponent is returned by Apply for an id with no bound element.
	ErrUnknownComponent = errors.New("dom: unknown component")

	// ErrNoRoot is returned by Apply when the update markup has no element
	// for the component.
	ErrNoRoot = errors.New("dom: update has no component root")
)

// Event types the binder delegates.
const (
	EventClick  = "click"
	EventSubmit = "submit"
	EventInput  = "input"
	EventChange = "change"
)

// Sender sends an action message. *client.Manager satisfies it.
type Sender interface {
	Action(componentID, method string, event map[string]any) error
}

// Event is a user event on Target.
type Event struct {
	Type   string
	Target *html.Node

	// ClientX and ClientY are the pointer coordinates of a click.
	ClientX, ClientY float64

	// Value overrides the target's value attribute for input and change.
	Value *string
}

// Result describes what Dispatch did.
type Result struct {
	// Sent is true when an action message was sent.
	Sent        bool
	ComponentID string
	Method      string

	// PreventDefault is true when the browser default must be suppressed.
	PreventDefault bool
}

// Option configures a Binder.
type Option func(*Binder)

// WithoutMorph makes Apply replace the component's outer markup instead of
// patching it.
func WithoutMorph() Option {
	return func(b *Binder) { b.morph = false }
}

// WithClock sets the timestamp source for event payloads.
func WithClock(now func() time.Time) Option {
	return func(b *Binder) { b.now = now }
}

// WithLogger sets the binder's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Binder) { b.logger = l }
}

// Binder tracks component elements in a Document and wires them to a live
// channel.
type Binder struct {
	mu         sync.Mutex
	doc        *Document
	sender     Sender
	components map[string]*html.Node

	focus *html.Node
	caret int

	morph  bool
	now    func() time.Time
	logger *slog.Logger
}

// NewBinder scans doc for component elements.
func NewBinder(doc *Document, sender Sender, opts ...Option) *Binder {
	b := &Binder{
		doc:        doc,
		sender:     sender,
		components: make(map[string]*html.Node),
		morph:      true,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "dom")
	b.scan(doc.root)
	return b
}

// Components returns the bound component ids, sorted.
func (b *Binder) Components() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.components))
	for id := range b.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Element returns the element bound to id.
func (b *Binder) Element(id string) *html.Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.components[id]
}

// Find returns the first node in document order matching pred.
func (b *Binder) Find(pred func(*html.Node) bool) *html.Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return find(b.doc.root, pred)
}

// Render renders the element bound to id.
func (b *Binder) Render(id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.components[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	return markup.Render(el)
}

// scan adds every marked element under n. The caller holds mu or owns b.
func (b *Binder) scan(n *html.Node) []string {
	var found []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id, ok := markup.Attr(n, markup.AttrComponentID); ok && id != "" {
				b.components[id] = n
				found = append(found, id)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

// prune drops entries whose element left the document.
func (b *Binder) prune() {
	for id, n := range b.components {
		if !contains(b.doc.root, n) {
			delete(b.components, id)
		}
	}
}

// Insert parses markup and appends it to parent. Only the inserted nodes are
// scanned. It returns the component ids found.
func (b *Binder) Insert(parent *html.Node, s string) ([]string, error) {
	nodes, err := fragment(parent, s)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var found []string
	for _, n := range nodes {
		parent.AppendChild(n)
		found = append(found, b.scan(n)...)
	}
	return found, nil
}

// Remove detaches n and forgets the components under it.
func (b *Binder) Remove(n *html.Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	for id, el := range b.components {
		if contains(n, el) {
			delete(b.components, id)
		}
	}
	if b.focus != nil && contains(n, b.focus) {
		b.focus = nil
	}
}

// Focus marks n as the focused element with the caret at offset caret.
func (b *Binder) Focus(n *html.Node, caret int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.focus = n
	b.caret = caret
}

// Focused returns the focused element and its caret offset.
func (b *Binder) Focused() (*html.Node, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focus, b.caret
}

// Dispatch delegates ev. It walks from the target to the document root
// looking for a data-action descriptor matching the event type, then sends
// the action for the nearest enclosing component.
func (b *Binder) Dispatch(ev Event) (Result, error) {
	var res Result
	if !delegated(ev.Type) || ev.Target == nil {
		return res, nil
	}

	b.mu.Lock()
	actor, method := b.actionFor(ev)
	if actor == nil {
		b.mu.Unlock()
		return res, nil
	}
	componentID := enclosingComponent(actor)
	if componentID == "" {
		b.mu.Unlock()
		b.logger.Debug("action outside any component", "method", method)
		return res, nil
	}
	payload := b.payload(ev, actor)
	b.mu.Unlock()

	res.ComponentID = componentID
	res.Method = method
	res.PreventDefault = ev.Type == EventSubmit
	if err := b.sender.Action(componentID, method, payload); err != nil {
		return res, fmt.Errorf("dom: send %s.%s: %w", componentID, method, err)
	}
	res.Sent = true
	return res, nil
}

func delegated(t string) bool {
	switch t {
	case EventClick, EventSubmit, EventInput, EventChange:
		return true
	}
	return false
}

func (b *Binder) actionFor(ev Event) (*html.Node, string) {
	for n := ev.Target; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		v, ok := markup.Attr(n, markup.AttrAction)
		if !ok {
			continue
		}
		for _, d := range markup.ParseActions(v) {
			if d.Event == ev.Type {
				return n, d.Method
			}
		}
	}
	return nil, ""
}

func enclosingComponent(n *html.Node) string {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if id, ok := markup.Attr(n, markup.AttrComponentID); ok && id != "" {
			return id
		}
	}
	return ""
}

func (b *Binder) payload(ev Event, actor *html.Node) map[string]any {
	p := map[string]any{
		"type":      ev.Type,
		"timestamp": b.now().UnixMilli(),
	}
	switch ev.Type {
	case EventInput, EventChange:
		value := fieldValue(ev.Target)
		if ev.Value != nil {
			value = *ev.Value
		}
		name, _ := markup.Attr(ev.Target, "name")
		p["value"] = value
		p["name"] = name
	case EventSubmit:
		form := actor
		if form.DataAtom != atom.Form {
			if f := closest(ev.Target, atom.Form); f != nil {
				form = f
			}
		}
		p["fields"] = formFields(form)
	case EventClick:
		p["clientX"] = ev.ClientX
		p["clientY"] = ev.ClientY
	}
	return p
}

func closest(n *html.Node, a atom.Atom) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}

// formFields collects named control values under form. Unchecked
// checkboxes and radios are skipped.
func formFields(form *html.Node) map[string]any {
	fields := make(map[string]any)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Input, atom.Select, atom.Textarea:
				name, _ := markup.Attr(n, "name")
				if name == "" || !submittable(n) {
					break
				}
				fields[name] = fieldValue(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(form)
	return fields
}

func submittable(n *html.Node) bool {
	if _, disabled := markup.Attr(n, "disabled"); disabled {
		return false
	}
	if n.DataAtom != atom.Input {
		return true
	}
	switch t, _ := markup.Attr(n, "type"); t {
	case "checkbox", "radio":
		_, checked := markup.Attr(n, "checked")
		return checked
	case "submit", "button", "reset", "file":
		return false
	}
	return true
}

func fieldValue(n *html.Node) string {
	switch n.DataAtom {
	case atom.Textarea:
		return markup.TextContent(n)
	case atom.Select:
		var first, selected *html.Node
		for o := n.FirstChild; o != nil; o = o.NextSibling {
			if o.Type != html.ElementNode || o.DataAtom != atom.Option {
				continue
			}
			if first == nil {
				first = o
			}
			if _, ok := markup.Attr(o, "selected"); ok {
				selected = o
			}
		}
		if selected == nil {
			selected = first
		}
		if selected == nil {
			return ""
		}
		if v, ok := markup.Attr(selected, "value"); ok {
			return v
		}
		return markup.TextContent(selected)
	case atom.Input:
		if v, ok := markup.Attr(n, "value"); ok {
			return v
		}
		if t, _ := markup.Attr(n, "type"); t == "checkbox" || t == "radio" {
			return "on"
		}
	}
	v, _ := markup.Attr(n, "value")
	return v
}

// Apply patches the component named by u with its new markup.
func (b *Binder) Apply(u protocol.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.components[u.ComponentID]
	if !ok || !contains(b.doc.root, el) {
		delete(b.components, u.ComponentID)
		return fmt.Errorf("%w: %s", ErrUnknownComponent, u.ComponentID)
	}
	nodes, err := fragment(el.Parent, u.HTML)
	if err != nil {
		return err
	}
	next := pickRoot(nodes, u.ComponentID)
	if next == nil {
		return fmt.Errorf("%w: %s", ErrNoRoot, u.ComponentID)
	}

	var result *html.Node
	if b.morph {
		result = morph(el, next)
	} else {
		replace(el, next)
		result = next
	}
	b.prune()
	b.scan(result)
	b.restoreFocus()
	return nil
}

func pickRoot(nodes []*html.Node, id string) *html.Node {
	var only *html.Node
	elements := 0
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		elements++
		only = n
		if v, ok := markup.Attr(n, markup.AttrComponentID); ok && v == id {
			return n
		}
	}
	if elements == 1 {
		return only
	}
	return nil
}

// restoreFocus keeps the caret inside the focused input's value after a
// patch, and drops focus that left the document.
func (b *Binder) restoreFocus() {
	if b.focus == nil {
		return
	}
	if !contains(b.doc.root, b.focus) {
		b.focus = nil
		b.caret = 0
		return
	}
	if !textual(b.focus) {
		return
	}
	if n := utf8.RuneCountInString(fieldValue(b.focus)); b.caret > n {
		b.caret = n
	}
}

func textual(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		switch t, _ := markup.Attr(n, "type"); t {
		case "", "text", "search", "email", "url", "tel", "password":
			return true
		}
	}
	return false
}
