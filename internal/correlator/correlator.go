// Package correlator turns the fire-and-forget broadcast into awaitable
// request/response pairs with bounded latency.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/porticus-lab/go-pagecap/internal/bus"
	"github.com/porticus-lab/go-pagecap/internal/protocol"
)

// ErrTimeout is returned when no correlated response arrives in time.
var ErrTimeout = errors.New("correlator: request timed out")

// Broadcaster delivers an encoded request to every reachable frame.
type Broadcaster interface {
	Broadcast(data []byte)
}

// BroadcastFunc adapts a function to Broadcaster.
type BroadcastFunc func(data []byte)

// Broadcast calls f(data).
func (f BroadcastFunc) Broadcast(data []byte) { f(data) }

type pending struct {
	done      chan protocol.Message
	createdAt time.Time
}

// Correlator matches responses on the bus to outstanding requests.
type Correlator struct {
	out    Broadcaster
	logger *slog.Logger
	newID  func() string

	mu      sync.Mutex
	pending map[string]*pending

	unsubscribe func()
}

// New creates a Correlator that sends through out and listens on b for the
// given response types.
func New(b *bus.Bus, out Broadcaster, logger *slog.Logger, responses ...protocol.Type) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Correlator{
		out:     out,
		logger:  logger,
		newID:   uuid.NewString,
		pending: make(map[string]*pending),
	}
	c.unsubscribe = b.Subscribe(c.onResponse, responses...)
	return c
}

// Close detaches the correlator from the bus. Outstanding requests still
// settle by timeout.
func (c *Correlator) Close() {
	c.unsubscribe()
}

// Send builds a request with a fresh id, broadcasts it and waits for the
// first response carrying the same id. The pending entry is removed exactly
// once, by whichever of response, timeout or cancellation comes first.
func (c *Correlator) Send(ctx context.Context, build func(id string) protocol.Message, timeout time.Duration) (protocol.Message, error) {
	id := c.newID()
	req := build(id)
	data, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	p := &pending{done: make(chan protocol.Message, 1), createdAt: time.Now()}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	c.out.Broadcast(data)

	select {
	case resp := <-p.done:
		return resp, nil
	case <-timer.C:
		if c.take(id) == nil {
			// A response won the race after the timer fired.
			return <-p.done, nil
		}
		c.logger.Debug("correlator: request timed out",
			"type", req.Type(), "id", id, "after", time.Since(p.createdAt))
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		if c.take(id) == nil {
			return <-p.done, nil
		}
		return nil, ctx.Err()
	}
}

// Pending reports the number of unsettled requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) take(id string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

func (c *Correlator) onResponse(m protocol.Message) {
	id := protocol.RequestID(m)
	if id == "" {
		return
	}
	p := c.take(id)
	if p == nil {
		c.logger.Debug("correlator: late or unknown response", "type", m.Type(), "id", id)
		return
	}
	p.done <- m
}
