package cybergear

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/notnil/cybergear/canbus"
)

// FrameMarshaler encodes a typed message into a CAN frame.
type FrameMarshaler interface {
	MarshalCANFrame() (canbus.Frame, error)
}

// FrameUnmarshaler decodes a typed message from a CAN frame.
type FrameUnmarshaler interface {
	UnmarshalCANFrame(canbus.Frame) error
}

// Faults is the fault bitmap reported in feedback identifiers (bits 16..21).
type Faults uint8

const (
	FaultUndervoltage Faults = 1 << iota
	FaultOvercurrent
	FaultOvertemperature
	FaultMagneticEncoder
	FaultHallEncoder
	FaultNotCalibrated
)

var faultText = []struct {
	bit  Faults
	text string
}{
	{FaultUndervoltage, "undervoltage"},
	{FaultOvercurrent, "overcurrent"},
	{FaultOvertemperature, "overtemperature"},
	{FaultMagneticEncoder, "magnetic encoder fault"},
	{FaultHallEncoder, "hall encoder fault"},
	{FaultNotCalibrated, "not calibrated"},
}

func (f Faults) String() string {
	if f == 0 {
		return "ok"
	}
	var parts []string
	for _, ft := range faultText {
		if f&ft.bit != 0 {
			parts = append(parts, ft.text)
		}
	}
	return strings.Join(parts, "|")
}

// MotorState is the controller state reported in feedback (bits 22..23).
type MotorState uint8

const (
	StateReset MotorState = iota
	StateCalibration
	StateRun
)

func (s MotorState) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateCalibration:
		return "calibration"
	case StateRun:
		return "run"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Feedback is the status a motor reports in mode 2 frames, in reply to
// enable, disable and control commands.
type Feedback struct {
	Host        uint8 // addressee, the target byte of the identifier
	Motor       uint8
	Faults      Faults
	State       MotorState
	Angle       float64 // rad
	Velocity    float64 // rad/s
	Torque      float64 // N·m
	Temperature float64 // °C
}

func (fb Feedback) String() string {
	return fmt.Sprintf("motor %d %s angle=%.3f vel=%.3f torque=%.3f temp=%.1f faults=%s",
		fb.Motor, fb.State, fb.Angle, fb.Velocity, fb.Torque, fb.Temperature, fb.Faults)
}

// offset encodes v as the device does in feedback: an unsigned value
// spanning [Min, Max].
func (q Quantity) offset(v float64) uint16 {
	return EncodeUnsigned((v/q.Scale - q.Lo) / (q.Hi - q.Lo))
}

// fromOffset inverts offset. Feedback carries every quantity, torque
// included, as an offset value spanning [Min, Max].
func (q Quantity) fromOffset(raw uint16) float64 {
	return (q.Lo + DecodeUnsigned(raw)*(q.Hi-q.Lo)) * q.Scale
}

// MarshalCANFrame encodes the feedback as a motor would send it. Used to
// simulate a motor on a loopback bus.
func (fb Feedback) MarshalCANFrame() (canbus.Frame, error) {
	field := uint32(fb.Motor) | uint32(fb.Faults&0x3F)<<8 | uint32(fb.State&0x3)<<14
	var data [8]byte
	binary.BigEndian.PutUint16(data[0:2], Angle.offset(fb.Angle))
	binary.BigEndian.PutUint16(data[2:4], Velocity.offset(fb.Velocity))
	binary.BigEndian.PutUint16(data[4:6], Torque.offset(fb.Torque))
	binary.BigEndian.PutUint16(data[6:8], uint16(math.Round(fb.Temperature*10)))
	return canbus.ExtendedFrame(ComposeID(ModeFeedback, field, fb.Host), data[:]), nil
}

// UnmarshalCANFrame decodes a mode 2 frame.
func (fb *Feedback) UnmarshalCANFrame(f canbus.Frame) error {
	got, err := ParseFeedback(f)
	if err != nil {
		return err
	}
	*fb = got
	return nil
}

// ParseFeedback decodes a mode 2 frame. Data words are big-endian.
func ParseFeedback(f canbus.Frame) (Feedback, error) {
	if !f.Extended || f.RTR {
		return Feedback{}, errors.Wrapf(ErrNotFeedback, "id=%s", f)
	}
	mode, field, host := DecomposeID(f.ID)
	if mode != ModeFeedback {
		return Feedback{}, errors.Wrapf(ErrNotFeedback, "mode %v", mode)
	}
	if f.Len != 8 {
		return Feedback{}, errors.Errorf("cybergear: feedback length %d, want 8", f.Len)
	}
	return Feedback{
		Host:        host,
		Motor:       uint8(field),
		Faults:      Faults(field>>8) & 0x3F,
		State:       MotorState(field >> 14),
		Angle:       Angle.fromOffset(binary.BigEndian.Uint16(f.Data[0:2])),
		Velocity:    Velocity.fromOffset(binary.BigEndian.Uint16(f.Data[2:4])),
		Torque:      Torque.fromOffset(binary.BigEndian.Uint16(f.Data[4:6])),
		Temperature: float64(binary.BigEndian.Uint16(f.Data[6:8])) / 10,
	}, nil
}

// IsFeedback reports whether f is a mode 2 frame from motor.
func IsFeedback(motor uint8) canbus.FrameFilter {
	const mask = 0x1F<<24 | 0xFF<<8
	return canbus.And(
		canbus.And(canbus.DataOnly(), canbus.LenExactly(8)),
		canbus.ByExtendedMask(ComposeID(ModeFeedback, uint32(motor), 0), mask),
	)
}

// SubscribeFeedback delivers decoded feedback from motor via mux. The
// returned cancel must be called when done. The channel is closed on cancel
// or when the mux shuts down. Feedback is dropped while the channel is full.
func SubscribeFeedback(mux *canbus.Mux, motor uint8, buffer int) (<-chan Feedback, func()) {
	frames, cancel := mux.Subscribe(IsFeedback(motor), buffer)
	out := make(chan Feedback, buffer)
	go func() {
		defer close(out)
		for f := range frames {
			fb, err := ParseFeedback(f)
			if err != nil {
				continue
			}
			select {
			case out <- fb:
			default:
			}
		}
	}()
	return out, cancel
}

// ParamReply is a mode 17 answer to ParamReadFrame.
type ParamReply struct {
	Host    uint8
	Motor   uint8
	Address uint16
	Raw     [4]byte
}

// Value interprets the reply using the kind of reg.
func (r ParamReply) Value(reg Register) (Value, error) {
	if reg.Address != r.Address {
		return nil, errors.Wrapf(ErrTypeMismatch, "reply for 0x%04X, not %s", r.Address, reg)
	}
	return DecodeValue(reg.Kind, r.Raw[:])
}

// MarshalCANFrame encodes the reply as a motor would send it.
func (r ParamReply) MarshalCANFrame() (canbus.Frame, error) {
	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], r.Address)
	copy(data[4:], r.Raw[:])
	return canbus.ExtendedFrame(ComposeID(ModeParamRead, uint32(r.Motor), r.Host), data[:]), nil
}

// UnmarshalCANFrame decodes a mode 17 reply.
func (r *ParamReply) UnmarshalCANFrame(f canbus.Frame) error {
	got, err := ParseParamRead(f)
	if err != nil {
		return err
	}
	*r = got
	return nil
}

// ParseParamRead decodes a mode 17 reply: address u16 LE, two reserved
// bytes, then the 4-byte value.
func ParseParamRead(f canbus.Frame) (ParamReply, error) {
	mode, field, host := DecomposeID(f.ID)
	if !f.Extended || mode != ModeParamRead {
		return ParamReply{}, errors.Errorf("cybergear: not a param read frame (id=0x%08X)", f.ID)
	}
	if f.Len != 8 {
		return ParamReply{}, errors.Errorf("cybergear: param read length %d, want 8", f.Len)
	}
	r := ParamReply{
		Host:    host,
		Motor:   uint8(field),
		Address: binary.LittleEndian.Uint16(f.Data[0:2]),
	}
	copy(r.Raw[:], f.Data[4:8])
	return r, nil
}
