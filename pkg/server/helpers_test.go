package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/protocol"
)

var errSendFailed = errors.New("send failed")

// fakePeer is an in-memory Peer.
type fakePeer struct {
	mu     sync.Mutex
	id     string
	sent   []*protocol.Message
	fail   bool
	closed bool
}

func (p *fakePeer) Send(msg *protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errSendFailed
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *fakePeer) Bind(id string) {
	p.mu.Lock()
	p.id = id
	p.mu.Unlock()
}

func (p *fakePeer) messages() []*protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*protocol.Message, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *fakePeer) last() *protocol.Message {
	msgs := p.messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func renderCounter(id string, state component.State) (string, error) {
	return fmt.Sprintf(`<div data-component-id="%s"><span>%v</span></div>`, id, state["count"]), nil
}

var errBoom = errors.New("boom")

func counterKind() component.Kind {
	return component.Kind{
		Name:   "counter",
		Render: renderCounter,
		Init:   func() component.State { return component.State{"count": 0} },
		Actions: component.Actions{
			"boom": func(ctx context.Context, c *component.Component, e component.Event) error {
				c.Set("count", 999)
				return errBoom
			},
			"explode": func(ctx context.Context, c *component.Component, e component.Event) error {
				c.Set("count", 999)
				panic("kaboom")
			},
			"noop": func(ctx context.Context, c *component.Component, e component.Event) error {
				return nil
			},
		},
	}
}

func newTestBroker(cfg *BrokerConfig, ids ...string) *Broker {
	if cfg == nil {
		cfg = DefaultBrokerConfig()
	}
	cfg.Logger = quietLogger()
	b := NewBroker(cfg)
	b.RegisterKind(counterKind())
	for _, id := range ids {
		if _, err := b.Mount("counter", id); err != nil {
			panic(err)
		}
	}
	return b
}

func raw(msg *protocol.Message) []byte {
	data, err := protocol.Encode(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// register binds p to sessionID with the given interest and discards the reply.
func register(b *Broker, p *fakePeer, sessionID string, components ...string) {
	if err := b.HandleMessage(context.Background(), p, raw(protocol.NewRegister(sessionID, components))); err != nil {
		panic(err)
	}
}
