// Package bus implements the origin-agnostic message channel that carries
// agent traffic up to the orchestrator.
//
// Every payload enters through Post as raw bytes and is decoded exactly
// once, so type filtering happens at this boundary and nowhere else.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/porticus-lab/go-pagecap/internal/protocol"
)

// Handler receives a decoded message.
type Handler func(protocol.Message)

type subscription struct {
	types   map[protocol.Type]bool
	handler Handler
}

// Bus dispatches decoded messages to subscribers. It is safe for
// concurrent use.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uint64]subscription
	next uint64
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger, subs: make(map[uint64]subscription)}
}

// Subscribe registers fn for the given message types, or for every type
// when none are given. The returned function removes the subscription.
func (b *Bus) Subscribe(fn Handler, types ...protocol.Type) (cancel func()) {
	var filter map[protocol.Type]bool
	if len(types) > 0 {
		filter = make(map[protocol.Type]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscription{types: filter, handler: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Post accepts a raw payload from any sender. Payloads outside the
// vocabulary are dropped; the error is returned for the sender's benefit
// only.
func (b *Bus) Post(data []byte) error {
	msg, err := protocol.Decode(data)
	if err != nil {
		b.logger.Debug("bus: dropped payload", "error", err, "size", len(data))
		return err
	}
	b.dispatch(msg)
	return nil
}

// Publish encodes m and posts it, so typed senders go through the same
// boundary as raw ones.
func (b *Bus) Publish(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return b.Post(data)
}

func (b *Bus) dispatch(msg protocol.Message) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[msg.Type()] {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(h, msg)
	}
}

func (b *Bus) call(h Handler, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: handler panic", "type", msg.Type(), "panic", fmt.Sprint(r))
		}
	}()
	h(msg)
}
