package server

import (
	"context"
	"sync"
	"time"

	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/store"
)

// writeState orders the store writes of one mounted component.
type writeState struct {
	mu      sync.Mutex
	wrote   bool
	version uint64
	removed bool
}

// record captures c's committed state. Call it while holding c's execution
// lock. It returns nil when no store is configured.
func (b *Broker) record(c *component.Component) *store.Record {
	if b.config.Store == nil {
		return nil
	}
	return &store.Record{
		ID:        c.ID(),
		Kind:      c.Kind(),
		State:     c.State().Map(),
		Version:   c.Version(),
		UpdatedAt: time.Now(),
	}
}

// persist saves rec after c's execution lock has been released, so a slow
// store does not hold up the next action on c. Writes for one component are
// serialized and a record older than the last one written is skipped.
// Failures are logged; the in-memory state stays authoritative.
func (b *Broker) persist(ctx context.Context, c *component.Component, rec *store.Record) {
	if rec == nil {
		return
	}
	ws := b.writeState(c)
	if ws == nil {
		return
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.removed || (ws.wrote && rec.Version <= ws.version) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.StoreTimeout)
	defer cancel()
	if err := b.config.Store.Save(ctx, *rec); err != nil {
		b.logger.Error("snapshot save failed", "component_id", rec.ID, "error", err)
		return
	}
	ws.wrote, ws.version = true, rec.Version
}

// writeState returns the write state of c, or nil once c is no longer the
// component mounted under its id.
func (b *Broker) writeState(c *component.Component) *writeState {
	b.writesMu.Lock()
	defer b.writesMu.Unlock()
	if cur, ok := b.components.Get(c.ID()); !ok || cur != c {
		return nil
	}
	ws, ok := b.writes[c]
	if !ok {
		ws = &writeState{}
		b.writes[c] = ws
	}
	return ws
}

// forget deletes c's stored record once any in-flight write for it has
// finished. c must already be out of the registry.
func (b *Broker) forget(c *component.Component) {
	b.writesMu.Lock()
	ws := b.writes[c]
	delete(b.writes, c)
	b.writesMu.Unlock()

	st := b.config.Store
	if st == nil {
		return
	}
	if ws != nil {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		ws.removed = true
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.config.StoreTimeout)
	defer cancel()
	if err := st.Delete(ctx, c.ID()); err != nil {
		b.logger.Error("snapshot delete failed", "component_id", c.ID(), "error", err)
	}
}

// Restore loads persisted state into every mounted component that has a
// record of the same kind. Records for other kinds are ignored. It returns
// the number of components restored.
func (b *Broker) Restore(ctx context.Context) (int, error) {
	st := b.config.Store
	if st == nil {
		return 0, nil
	}
	n := 0
	for _, c := range b.components.All() {
		rec, err := st.Load(ctx, c.ID())
		if err != nil {
			return n, err
		}
		if rec == nil {
			continue
		}
		if rec.Kind != c.Kind() {
			b.logger.Warn("snapshot kind mismatch", "component_id", c.ID(), "stored", rec.Kind, "mounted", c.Kind())
			continue
		}
		err = c.Exclusive(func() error {
			if err := c.Replace(rec.State); err != nil {
				return err
			}
			_, err := c.Commit()
			return err
		})
		if err != nil {
			b.logger.Warn("snapshot restore failed", "component_id", c.ID(), "error", err)
			continue
		}
		n++
	}
	b.logger.Info("snapshots restored", "count", n)
	return n, nil
}
