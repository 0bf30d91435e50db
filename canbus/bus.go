package canbus

import (
	"context"
	"errors"
)

// Sender transmits frames. Send may block until the frame is queued and must
// return the context error when ctx is cancelled first.
type Sender interface {
	Send(ctx context.Context, frame Frame) error
}

// Receiver yields frames. Receive blocks until a frame arrives or ctx is done.
type Receiver interface {
	Receive(ctx context.Context) (Frame, error)
}

// Bus is a full duplex CAN connection. Implementations in this package are
// safe for concurrent use by multiple goroutines.
type Bus interface {
	Sender
	Receiver

	// Close releases resources. Further Send/Receive return ErrClosed.
	Close() error
}

// ErrClosed indicates the bus or endpoint has been closed.
var ErrClosed = errors.New("canbus: closed")

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, frame Frame) error

// Send calls fn(ctx, frame).
func (fn SenderFunc) Send(ctx context.Context, frame Frame) error {
	return fn(ctx, frame)
}
