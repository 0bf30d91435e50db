package canbus

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// SerialOptions configures the serial link to an SLCAN adapter.
type SerialOptions struct {
	Port     string // e.g. /dev/ttyACM0 or COM15
	Baud     int    // serial baud rate; USB CDC adapters ignore it
	Bitrate  uint32 // CAN bitrate, default 1 Mbit/s
	Interval time.Duration
}

// DialSLCAN opens a serial SLCAN adapter and returns a Bus on it.
func DialSLCAN(opts SerialOptions) (Bus, error) {
	if opts.Baud == 0 {
		opts.Baud = 115200
	}
	if opts.Bitrate == 0 {
		opts.Bitrate = 1000000
	}
	if opts.Interval == 0 {
		opts.Interval = 100 * time.Millisecond
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        opts.Port,
		Baud:        opts.Baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: opts.Interval,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "canbus: open %s", opts.Port)
	}
	bus, err := OpenSLCAN(&pollingPort{port: port}, opts.Bitrate)
	if err != nil {
		port.Close()
		return nil, err
	}
	return bus, nil
}

// pollingPort hides serial read timeouts, which surface as (0, io.EOF), so
// that a bufio reader only sees real data or a real failure.
type pollingPort struct {
	port   *serial.Port
	closed atomic.Bool
}

func (p *pollingPort) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		if n == 0 && (err == nil || err == io.EOF) {
			if p.closed.Load() {
				return 0, ErrClosed
			}
			continue
		}
		return n, err
	}
}

func (p *pollingPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *pollingPort) Close() error {
	p.closed.Store(true)
	return p.port.Close()
}
