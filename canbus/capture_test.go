package canbus

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

type closeRecorder struct {
	bytes.Buffer
	closed int
	err    error
}

func (c *closeRecorder) Close() error {
	c.closed++
	return c.err
}

func TestCaptureWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw, err := NewCaptureWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	cw.now = func() time.Time { return time.Unix(1700000000, 0) }

	frames := []Frame{
		ExtendedFrame(0x0300007F, nil),
		ExtendedFrame(0x1200007F, []byte{0x0A, 0x70, 0, 0, 0x66, 0x66, 0x06, 0x40}),
		MustFrame(0x123, []byte{1, 2}),
		{ID: 0x1ABCDEFF, Extended: true, RTR: true},
	}
	for _, f := range frames {
		if err := cw.WriteFrame(f); err != nil {
			t.Fatalf("write %v: %v", f, err)
		}
	}
	if err := cw.WriteFrame(Frame{ID: 0x800}); err == nil {
		t.Fatal("invalid frame captured")
	}

	// 24-byte file header; 16-byte record header + 16-byte frame each.
	if want := 24 + len(frames)*32; buf.Len() != want {
		t.Fatalf("capture size %d, want %d", buf.Len(), want)
	}
	// can_id is big-endian with CAN_EFF_FLAG in the first record.
	if rec := buf.Bytes()[24+16:]; !bytes.Equal(rec[:4], []byte{0x83, 0x00, 0x00, 0x7F}) {
		t.Fatalf("can_id bytes % X", rec[:4])
	}

	got, err := ReadCapture(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(frames) {
		t.Fatalf("read %d frames", len(got))
	}
	for i := range frames {
		if got[i] != frames[i] {
			t.Fatalf("frame %d: got %v want %v", i, got[i], frames[i])
		}
	}
}

func TestCaptureBus(t *testing.T) {
	lb := NewLoopbackBus()
	defer lb.Close()
	peer := lb.Open()

	sink := &closeRecorder{}
	cw, err := NewCaptureWriter(sink)
	if err != nil {
		t.Fatal(err)
	}
	bus := NewCaptureBus(lb.Open(), cw, sink)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := ExtendedFrame(0x0300007F, nil)
	in := ExtendedFrame(0x02807F00, []byte{0x80, 0, 0x80, 0, 0x80, 0, 0x01, 0x2C})
	if err := bus.Send(ctx, out); err != nil {
		t.Fatal(err)
	}
	if _, err := peer.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if err := peer.Send(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	sink.err = errors.New("disk full")
	if err := bus.Close(); err == nil || sink.closed != 1 {
		t.Fatalf("close err=%v closed=%d", err, sink.closed)
	}

	got, err := ReadCapture(bytes.NewReader(sink.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != out || got[1] != in {
		t.Fatalf("captured %v", got)
	}
}
