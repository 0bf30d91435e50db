package canbus

import (
	"bufio"
	"context"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// SLCAN (Lawicel) ASCII framing as spoken by USB-CAN adapters such as the
// CANable. Frames are:
//
//	T iiiiiiii L dd..  extended data
//	t iii L dd..       standard data
//	R iiiiiiii L       extended remote
//	r iii L            standard remote
//
// each terminated by '\r'.

// ErrSLCANSyntax reports a malformed SLCAN line.
var ErrSLCANSyntax = errors.New("canbus: slcan syntax error")

// slcanBitrates maps bitrates to the adapter's "Sn" setup codes.
var slcanBitrates = map[uint32]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// EncodeSLCAN renders the frame as one SLCAN command including the trailing
// carriage return.
func EncodeSLCAN(f Frame) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	switch {
	case f.RTR && f.Extended:
		b.WriteByte('R')
	case f.RTR:
		b.WriteByte('r')
	case f.Extended:
		b.WriteByte('T')
	default:
		b.WriteByte('t')
	}
	b.WriteString(f.idString())
	b.WriteByte('0' + f.Len)
	if !f.RTR {
		b.WriteString(strings.ToUpper(hex.EncodeToString(f.Payload())))
	}
	b.WriteByte('\r')
	return b.String(), nil
}

// DecodeSLCAN parses one SLCAN frame line. A trailing '\r' is optional.
func DecodeSLCAN(line string) (Frame, error) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return Frame{}, errors.Wrap(ErrSLCANSyntax, "empty line")
	}
	var f Frame
	idLen := 3
	switch line[0] {
	case 'T':
		f.Extended, idLen = true, 8
	case 't':
	case 'R':
		f.Extended, f.RTR, idLen = true, true, 8
	case 'r':
		f.RTR = true
	default:
		return Frame{}, errors.Wrapf(ErrSLCANSyntax, "unknown command %q", line[0])
	}
	if len(line) < 1+idLen+1 {
		return Frame{}, errors.Wrapf(ErrSLCANSyntax, "short frame %q", line)
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return Frame{}, errors.Wrapf(ErrSLCANSyntax, "identifier %q", line[1:1+idLen])
	}
	f.ID = uint32(id)
	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return Frame{}, errors.Wrapf(ErrSLCANSyntax, "dlc %q", dlc)
	}
	f.Len = dlc - '0'
	rest := line[2+idLen:]
	if !f.RTR {
		if len(rest) < 2*int(f.Len) {
			return Frame{}, errors.Wrapf(ErrSLCANSyntax, "want %d data bytes in %q", f.Len, line)
		}
		// Anything after the data (e.g. a timestamp) is ignored.
		if _, err := hex.Decode(f.Data[:f.Len], []byte(rest[:2*int(f.Len)])); err != nil {
			return Frame{}, errors.Wrapf(ErrSLCANSyntax, "data %q", rest)
		}
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// slcanBus speaks SLCAN over any byte stream (serial port, pty, pipe).
type slcanBus struct {
	rw  io.ReadWriteCloser
	wmu sync.Mutex

	frames chan Frame
	closed chan struct{}
	once   sync.Once

	emu     sync.Mutex
	readErr error
}

// NewSLCANBus starts a Bus on an already opened SLCAN channel. Use OpenSLCAN
// to also configure the bitrate and open the channel.
func NewSLCANBus(rw io.ReadWriteCloser) Bus {
	b := &slcanBus{
		rw:     rw,
		frames: make(chan Frame, 64),
		closed: make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// OpenSLCAN resets the adapter, selects the bitrate and opens the channel in
// normal mode, then returns a Bus over rw.
func OpenSLCAN(rw io.ReadWriteCloser, bitrate uint32) (Bus, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, errors.Errorf("canbus: unsupported slcan bitrate %d", bitrate)
	}
	// Closing an already closed channel answers BEL, which is harmless here.
	for _, cmd := range []string{"C\r", "S" + string(code) + "\r", "O\r"} {
		if _, err := io.WriteString(rw, cmd); err != nil {
			return nil, errors.Wrapf(err, "canbus: slcan setup %q", strings.TrimSpace(cmd))
		}
	}
	return NewSLCANBus(rw), nil
}

func (b *slcanBus) Send(ctx context.Context, frame Frame) error {
	line, err := EncodeSLCAN(frame)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if _, err := io.WriteString(b.rw, line); err != nil {
		return errors.Wrap(err, "canbus: slcan write")
	}
	return nil
}

func (b *slcanBus) Receive(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-b.frames:
		if !ok {
			return Frame{}, b.err()
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (b *slcanBus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.closed)
		b.wmu.Lock()
		_, _ = io.WriteString(b.rw, "C\r")
		b.wmu.Unlock()
		err = b.rw.Close()
	})
	return err
}

func (b *slcanBus) err() error {
	b.emu.Lock()
	defer b.emu.Unlock()
	if b.readErr == nil {
		return ErrClosed
	}
	return b.readErr
}

func (b *slcanBus) readLoop() {
	defer close(b.frames)
	r := bufio.NewReader(b.rw)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			select {
			case <-b.closed:
			default:
				if !errors.Is(err, io.EOF) {
					b.emu.Lock()
					b.readErr = errors.Wrap(err, "canbus: slcan read")
					b.emu.Unlock()
				}
			}
			return
		}
		// Acks ("\r", "z\r", "Z\r") and BEL errors are not frames.
		line = strings.TrimLeft(line, "\a")
		if len(line) == 0 || !strings.ContainsRune("tTrR", rune(line[0])) {
			continue
		}
		f, perr := DecodeSLCAN(line)
		if perr != nil {
			continue
		}
		select {
		case b.frames <- f:
		case <-b.closed:
			return
		}
	}
}
