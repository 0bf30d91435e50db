//go:build linux

package canbus

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// RawFilter is a SocketCAN receive filter. A frame passes when
// received_id & Mask == ID & Mask.
type RawFilter struct {
	ID       uint32
	Mask     uint32
	Extended bool
}

func (r RawFilter) kernel() unix.CanFilter {
	id, mask := r.ID&sffMask, r.Mask&sffMask
	if r.Extended {
		id, mask = r.ID&effMask|effFlag, r.Mask&effMask|effFlag
	} else {
		// Require the EFF flag to be clear.
		mask |= effFlag
	}
	return unix.CanFilter{Id: id, Mask: mask}
}

// socketCAN implements Bus over a Linux CAN_RAW socket. The fd is
// non-blocking and registered with the runtime poller through os.File, so
// context cancellation maps onto I/O deadlines.
type socketCAN struct {
	file *os.File
}

// DialSocketCAN opens a raw CAN socket bound to the named interface
// (e.g. "can0"). When filters are given only matching frames are received.
func DialSocketCAN(iface string, filters ...RawFilter) (Bus, error) {
	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, errors.Wrapf(err, "canbus: lookup %s", iface)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "canbus: socket")
	}
	if len(filters) > 0 {
		kf := make([]unix.CanFilter, len(filters))
		for i, f := range filters {
			kf[i] = f.kernel()
		}
		if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, kf); err != nil {
			unix.Close(fd)
			return nil, errors.Wrap(err, "canbus: set raw filter")
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "canbus: bind %s", iface)
	}
	return &socketCAN{file: os.NewFile(uintptr(fd), "socketcan:"+iface)}, nil
}

func (s *socketCAN) Close() error {
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// Send writes one frame in the can_frame layout.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	stop, err := bindDeadline(ctx, s.file.SetWriteDeadline)
	if err != nil {
		return s.mapErr(ctx, err)
	}
	defer stop()
	n, err := s.file.Write(buf)
	if err != nil {
		return s.mapErr(ctx, err)
	}
	if n != len(buf) {
		return errors.New("canbus: short write")
	}
	return nil
}

// Receive reads one frame.
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	stop, err := bindDeadline(ctx, s.file.SetReadDeadline)
	if err != nil {
		return Frame{}, s.mapErr(ctx, err)
	}
	defer stop()
	buf := make([]byte, 16)
	n, err := s.file.Read(buf)
	if err != nil {
		return Frame{}, s.mapErr(ctx, err)
	}
	if n != len(buf) {
		return Frame{}, errors.New("canbus: short read")
	}
	var f Frame
	if err := f.UnmarshalBinary(buf); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (s *socketCAN) mapErr(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, os.ErrClosed):
		return ErrClosed
	default:
		return err
	}
}

// bindDeadline clears the deadline and arranges for it to expire as soon as
// ctx is done. The returned stop func detaches the watcher.
func bindDeadline(ctx context.Context, set func(time.Time) error) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	if err := set(time.Time{}); err != nil {
		return func() {}, err
	}
	if ctx.Done() == nil {
		return func() {}, nil
	}
	stop := context.AfterFunc(ctx, func() {
		_ = set(time.Unix(1, 0))
	})
	return func() { stop() }, nil
}
