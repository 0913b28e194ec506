// Package loopback provides an in-memory Strategy for tests and
// simulations: every endpoint opened on the same Bus sees every byte
// every other endpoint sends, exactly as devices sharing a real wire
// would.
package loopback

import (
	"sync"

	"github.com/pjon-go/pjon/pkg/strategy"
)

// Bus fans bytes out to every endpoint opened on it.
type Bus struct {
	mu        sync.RWMutex
	closed    bool
	endpoints map[*Endpoint]struct{}
}

// NewBus creates an empty, unconnected loopback bus.
func NewBus() *Bus {
	return &Bus{endpoints: make(map[*Endpoint]struct{})}
}

// Open attaches a new endpoint to the bus and returns it as a Strategy.
func (b *Bus) Open() *Endpoint {
	ep := &Endpoint{
		bus:      b,
		data:     make(chan byte, 256),
		response: make(chan byte, 4),
	}
	b.mu.Lock()
	if !b.closed {
		b.endpoints[ep] = struct{}{}
	}
	b.mu.Unlock()
	return ep
}

// Close detaches every endpoint from the bus.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ep := range b.endpoints {
		close(ep.data)
		close(ep.response)
	}
	b.endpoints = nil
}

func (b *Bus) peers(self *Endpoint) []*Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	peers := make([]*Endpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != self {
			peers = append(peers, ep)
		}
	}
	return peers
}

// Endpoint is one device's view of a Bus; it implements strategy.Strategy.
type Endpoint struct {
	bus      *Bus
	data     chan byte
	response chan byte
}

var _ strategy.Strategy = (*Endpoint)(nil)

// CanStart always reports the medium as free: a loopback bus never
// collides.
func (e *Endpoint) CanStart() bool { return true }

// SendByte delivers b to every other endpoint currently open on the bus.
func (e *Endpoint) SendByte(b byte) {
	for _, peer := range e.bus.peers(e) {
		select {
		case peer.data <- b:
		default:
		}
	}
}

// ReceiveByte returns the next queued byte, or strategy.NoByte if the
// queue is empty.
func (e *Endpoint) ReceiveByte() int {
	select {
	case b, ok := <-e.data:
		if !ok {
			return strategy.NoByte
		}
		return int(b)
	default:
		return strategy.NoByte
	}
}

// SendResponse queues a synchronous reply symbol on every other
// endpoint's response channel (dropped for an endpoint whose channel is
// full); each endpoint sees it on its next ReceiveResponse.
func (e *Endpoint) SendResponse(sym int) {
	for _, peer := range e.bus.peers(e) {
		select {
		case peer.response <- byte(sym):
		default:
		}
	}
}

// ReceiveResponse returns the next queued response symbol, or
// strategy.NoByte if none has arrived yet.
func (e *Endpoint) ReceiveResponse() int {
	select {
	case b, ok := <-e.response:
		if !ok {
			return strategy.NoByte
		}
		return int(b)
	default:
		return strategy.NoByte
	}
}
