package canbus

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN (227). Wireshark decodes
// these records as SocketCAN frames.
const LinkTypeCANSocketCAN = layers.LinkType(227)

// CaptureWriter appends frames to a pcap stream.
type CaptureWriter struct {
	mu  sync.Mutex
	w   *pcapgo.Writer
	now func() time.Time
}

// NewCaptureWriter writes the pcap file header to w and returns a writer
// for SocketCAN records.
func NewCaptureWriter(w io.Writer) (*CaptureWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65535, LinkTypeCANSocketCAN); err != nil {
		return nil, errors.Wrap(err, "canbus: write pcap header")
	}
	return &CaptureWriter{w: pw, now: time.Now}, nil
}

// WriteFrame records one frame. LINKTYPE_CAN_SOCKETCAN stores can_id in
// network byte order, unlike the in-kernel layout.
func (c *CaptureWriter) WriteFrame(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	var rec [16]byte
	binary.BigEndian.PutUint32(rec[0:4], f.canID())
	rec[4] = f.Len
	copy(rec[8:], f.Data[:])
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     c.now(),
		CaptureLength: len(rec),
		Length:        len(rec),
	}, rec[:])
	return errors.Wrap(err, "canbus: write pcap record")
}

// ReadCapture decodes all frames from a pcap stream written by CaptureWriter
// (or any LINKTYPE_CAN_SOCKETCAN capture).
func ReadCapture(r io.Reader) ([]Frame, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "canbus: read pcap header")
	}
	if pr.LinkType() != LinkTypeCANSocketCAN {
		return nil, errors.Errorf("canbus: unexpected link type %d", pr.LinkType())
	}
	var frames []Frame
	for {
		data, _, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, errors.Wrap(err, "canbus: read pcap record")
		}
		if len(data) < 8 {
			return frames, errors.Errorf("canbus: pcap record too short: %d", len(data))
		}
		var f Frame
		f.setCanID(binary.BigEndian.Uint32(data[0:4]))
		f.Len = data[4]
		copy(f.Data[:], data[8:])
		if err := f.Validate(); err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// NewCaptureBus tees every frame sent or received through inner into the
// capture. Capture failures never fail the bus operation; they are reported
// on the next Close. Closing the bus also closes sink when it is non-nil.
func NewCaptureBus(inner Bus, capture *CaptureWriter, sink io.Closer) Bus {
	return &captureBus{inner: inner, capture: capture, sink: sink}
}

type captureBus struct {
	inner   Bus
	capture *CaptureWriter
	sink    io.Closer

	mu  sync.Mutex
	err error
}

func (c *captureBus) record(f Frame) {
	if err := c.capture.WriteFrame(f); err != nil {
		c.mu.Lock()
		c.err = multierr.Append(c.err, err)
		c.mu.Unlock()
	}
}

func (c *captureBus) Send(ctx context.Context, frame Frame) error {
	if err := c.inner.Send(ctx, frame); err != nil {
		return err
	}
	c.record(frame)
	return nil
}

func (c *captureBus) Receive(ctx context.Context) (Frame, error) {
	f, err := c.inner.Receive(ctx)
	if err == nil {
		c.record(f)
	}
	return f, err
}

func (c *captureBus) Close() error {
	err := c.inner.Close()
	if c.sink != nil {
		err = multierr.Append(err, c.sink.Close())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return multierr.Append(err, c.err)
}
