package server

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/session"
)

// Broker owns the registries and runs every action, whichever transport it
// arrived on.
type Broker struct {
	components *component.Registry
	sessions   *session.Registry
	bindings   *component.Bindings

	kindsMu sync.RWMutex
	kinds   map[string]component.Kind

	writesMu sync.Mutex
	writes   map[*component.Component]*writeState

	config   BrokerConfig
	wrap     Middleware
	observer Observer
	logger   *slog.Logger
}

// NewBroker creates a broker. A nil config uses DefaultBrokerConfig.
func NewBroker(config *BrokerConfig) *Broker {
	if config == nil {
		config = DefaultBrokerConfig()
	}
	cfg := *config
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultBrokerConfig().StoreTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Broker{
		components: component.NewRegistry(),
		sessions:   session.NewRegistry(),
		bindings:   component.NewBindings(),
		kinds:      make(map[string]component.Kind),
		writes:     make(map[*component.Component]*writeState),
		config:     cfg,
		wrap:       chain(cfg.Middleware),
		observer:   observer,
		logger:     logger.With("component", "broker"),
	}
}

// Components returns the component registry.
func (b *Broker) Components() *component.Registry {
	return b.components
}

// Sessions returns the session registry.
func (b *Broker) Sessions() *session.Registry {
	return b.sessions
}

// Bindings returns the action registry.
func (b *Broker) Bindings() *component.Bindings {
	return b.bindings
}

// Logger returns the broker's logger.
func (b *Broker) Logger() *slog.Logger {
	return b.logger
}

// RegisterKind makes a component kind available to Mount and binds its
// actions for every component of that kind.
func (b *Broker) RegisterKind(k component.Kind) {
	b.kindsMu.Lock()
	b.kinds[k.Name] = k
	b.kindsMu.Unlock()
	if len(k.Actions) > 0 {
		b.bindings.RegisterKind(k.Name, k.Actions)
	}
}

// Kinds returns the registered kind names, sorted.
func (b *Broker) Kinds() []string {
	b.kindsMu.RLock()
	defer b.kindsMu.RUnlock()
	names := make([]string, 0, len(b.kinds))
	for name := range b.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mount creates a component of a registered kind and adds it.
// An empty id mints one.
func (b *Broker) Mount(kind, id string) (*component.Component, error) {
	b.kindsMu.RLock()
	k, ok := b.kinds[kind]
	b.kindsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	c, err := k.New(id)
	if err != nil {
		return nil, err
	}
	if err := b.Add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Add registers a component built elsewhere.
func (b *Broker) Add(c *component.Component) error {
	if !b.components.Add(c) {
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, c.ID())
	}
	b.observer.ComponentsChanged(b.components.Len())
	b.logger.Debug("component mounted", "component_id", c.ID(), "kind", c.Kind())
	return nil
}

// Unmount removes a component, its per-id bindings and its stored snapshot.
// Sessions that still list it in their interest set simply receive nothing
// for it.
func (b *Broker) Unmount(id string) bool {
	c, ok := b.components.Get(id)
	if !ok || !b.components.Remove(id) {
		return false
	}
	b.bindings.UnregisterComponent(id)
	b.forget(c)
	b.observer.ComponentsChanged(b.components.Len())
	return true
}

// Shutdown closes every session transport and empties the session registry.
func (b *Broker) Shutdown() {
	for _, s := range b.sessions.All() {
		t := s.Transport()
		b.sessions.RemoveIfTransport(s.ID, t)
		if t != nil {
			t.Close()
		}
	}
	b.observer.SessionsChanged(b.sessions.Len())
}

