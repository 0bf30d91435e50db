package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame is a classical CAN 2.0A/2.0B frame. CAN FD is not supported.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // true for 29-bit identifier
	RTR      bool   // remote transmission request
	Len      uint8  // 0..8
	Data     [8]byte
}

const (
	maxStdID = 0x7FF
	maxExtID = 0x1FFFFFFF
)

// SocketCAN can_id flag bits and masks.
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	effMask = 0x1FFFFFFF
	sffMask = 0x7FF
)

var (
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	if f.Extended {
		if f.ID > maxExtID {
			return ErrInvalidID
		}
	} else if f.ID > maxStdID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the valid data bytes of the frame.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

// MustFrame constructs a Frame and panics if invalid. Identifiers above the
// 11-bit range are marked extended.
func MustFrame(id uint32, data []byte) Frame {
	var f Frame
	f.ID = id
	if id > maxStdID {
		f.Extended = true
	}
	if len(data) > 8 {
		panic(ErrInvalidLen)
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		panic(err)
	}
	return f
}

// ExtendedFrame builds a 29-bit data frame. The identifier is masked to 29
// bits and data beyond 8 bytes is dropped.
func ExtendedFrame(id uint32, data []byte) Frame {
	f := Frame{ID: id & effMask, Extended: true}
	n := copy(f.Data[:], data)
	f.Len = uint8(n)
	return f
}

func (f Frame) idString() string {
	if f.Extended {
		return fmt.Sprintf("%08X", f.ID)
	}
	return fmt.Sprintf("%03X", f.ID)
}

// String renders the frame in candump-like form, e.g. "123 [2] DE AD".
func (f Frame) String() string {
	var b strings.Builder
	b.WriteString(f.idString())
	fmt.Fprintf(&b, " [%d]", f.Len)
	if f.RTR {
		b.WriteString(" RTR")
		return b.String()
	}
	for _, c := range f.Payload() {
		fmt.Fprintf(&b, " %02X", c)
	}
	return b.String()
}

// MarshalBinary encodes the frame to the Linux SocketCAN "struct can_frame"
// layout (16 bytes, little-endian can_id).
//
//	0..3  can_id (with EFF/RTR flags)
//	4     can_dlc
//	5..7  padding
//	8..15 data
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], f.canID())
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the Linux SocketCAN can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("canbus: need 16 bytes, got %d", len(data))
	}
	f.setCanID(binary.LittleEndian.Uint32(data[0:4]))
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

func (f Frame) canID() uint32 {
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.RTR {
		id |= rtrFlag
	}
	return id
}

func (f *Frame) setCanID(id uint32) {
	f.Extended = id&effFlag != 0
	f.RTR = id&rtrFlag != 0
	if f.Extended {
		f.ID = id & effMask
	} else {
		f.ID = id & sffMask
	}
}
