package canbus

import (
	"context"
	"sync"
)

// LoopbackBus is an in-memory CAN segment for tests and simulations.
// Every endpoint opened from it sees the frames sent by all other endpoints.
type LoopbackBus struct {
	mu        sync.RWMutex
	closed    bool
	endpoints map[*loopEndpoint]struct{}
}

// NewLoopbackBus creates a new loopback bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{endpoints: make(map[*loopEndpoint]struct{})}
}

// Open attaches a new endpoint. Endpoints opened after Close are born closed.
func (b *LoopbackBus) Open() Bus {
	ep := &loopEndpoint{
		bus:    b,
		ch:     make(chan Frame, 64),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ep.shutdown()
		return ep
	}
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close closes the bus and detaches all endpoints.
func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.shutdown()
	}
	b.endpoints = nil
	return nil
}

// peers snapshots every endpoint except self.
func (b *LoopbackBus) peers(self *loopEndpoint) ([]*loopEndpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	out := make([]*loopEndpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != self {
			out = append(out, ep)
		}
	}
	return out, nil
}

type loopEndpoint struct {
	bus    *LoopbackBus
	ch     chan Frame
	once   sync.Once
	mu     sync.Mutex
	dead   bool
	closed chan struct{}
}

// Send delivers the frame to every other endpoint on the bus. It blocks while
// a peer's queue is full, until ctx is done or the peer closes.
func (e *loopEndpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	dead := e.dead
	e.mu.Unlock()
	if dead {
		return ErrClosed
	}
	targets, err := e.bus.peers(e)
	if err != nil {
		return err
	}
	for _, t := range targets {
		select {
		case t.ch <- frame:
		case <-t.closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Receive waits for the next frame.
func (e *loopEndpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-e.ch:
		return f, nil
	case <-e.closed:
		// Drain anything that raced with close.
		select {
		case f := <-e.ch:
			return f, nil
		default:
		}
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close detaches the endpoint from the bus.
func (e *loopEndpoint) Close() error {
	e.bus.mu.Lock()
	if e.bus.endpoints != nil {
		delete(e.bus.endpoints, e)
	}
	e.bus.mu.Unlock()
	e.shutdown()
	return nil
}

func (e *loopEndpoint) shutdown() {
	e.once.Do(func() {
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
		close(e.closed)
	})
}
