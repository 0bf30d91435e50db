package canbus

import (
	"context"
	"sync"
)

// FrameFilter decides whether a frame should be delivered to a subscriber.
type FrameFilter func(Frame) bool

// Mux multiplexes frames received from a Bus to any number of filtered
// subscribers.
//
// It owns Receive on the given bus and runs a single background goroutine
// that fans frames out, so feedback decoders and reply matchers do not
// compete for Receive. Send is not proxied; keep using the bus for that.
type Mux struct {
	bus    Receiver
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64
}

type subscriber struct {
	filter FrameFilter
	ch     chan Frame
}

// NewMux creates and starts a multiplexer bound to the given receiver.
func NewMux(bus Receiver) *Mux {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mux{
		bus:    bus,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[uint64]*subscriber),
	}
	go m.run(ctx)
	return m
}

// Close stops the background reader and closes all subscriber channels.
func (m *Mux) Close() error {
	m.cancel()
	<-m.done
	return nil
}

// Subscribe registers a subscriber with the provided filter and channel
// buffer. A nil filter matches everything. The returned cancel function closes
// the channel and is safe to call more than once.
func (m *Mux) Subscribe(filter FrameFilter, buffer int) (<-chan Frame, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{filter: filter, ch: make(chan Frame, buffer)}
	m.mu.Lock()
	id := m.next
	m.next++
	if m.subs == nil {
		// Already shut down.
		close(s.ch)
		m.mu.Unlock()
		return s.ch, func() {}
	}
	m.subs[id] = s
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if cur, ok := m.subs[id]; ok && cur == s {
			close(cur.ch)
			delete(m.subs, id)
		}
		m.mu.Unlock()
	}
	return s.ch, cancel
}

func (m *Mux) run(ctx context.Context) {
	defer close(m.done)
	defer m.closeAll()
	for {
		f, err := m.bus.Receive(ctx)
		if err != nil {
			return
		}
		m.mu.RLock()
		for _, s := range m.subs {
			if s.filter == nil || s.filter(f) {
				select {
				case s.ch <- f:
				default:
					// Slow subscriber; drop.
				}
			}
		}
		m.mu.RUnlock()
	}
}

func (m *Mux) closeAll() {
	m.mu.Lock()
	for id, s := range m.subs {
		close(s.ch)
		delete(m.subs, id)
	}
	m.subs = nil
	m.mu.Unlock()
}
