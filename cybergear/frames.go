package cybergear

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/notnil/cybergear/canbus"
)

// Setpoint is one closed-loop command for the operation control mode.
type Setpoint struct {
	Torque   float64 // N·m, feed-forward
	Angle    float64 // rad, [-4π, 4π]
	Velocity float64 // rad/s, [-30π, 30π]
	Kp       float64 // [0, 500]
	Kd       float64 // [0, 5]
}

// torqueField is the normalized value placed in the identifier field.
//
// The device documents torque as [-12, 12] N·m, which would normalize as
// torque/12. The existing wire format multiplies by 12, so only
// |torque| <= 1/12 is representable without saturating.
// TODO: confirm the scaling against firmware before changing it to a division.
func (s Setpoint) torqueField() float64 { return s.Torque * 12 }

type normalized struct {
	field  string
	value  float64 // caller supplied, physical units
	norm   float64
	signed bool
}

func (s Setpoint) normalized() [5]normalized {
	return [5]normalized{
		{"torque", s.Torque, s.torqueField(), true},
		{"angle", s.Angle, Angle.Normalize(s.Angle), false},
		{"velocity", s.Velocity, Velocity.Normalize(s.Velocity), false},
		{"kp", s.Kp, Kp.Normalize(s.Kp), false},
		{"kd", s.Kd, Kd.Normalize(s.Kd), false},
	}
}

// Saturated returns the names of the fields that will be clamped on the wire.
func (s Setpoint) Saturated() []string {
	var out []string
	for _, n := range s.normalized() {
		lo := 0.0
		if n.signed {
			lo = -1
		}
		if !(n.norm >= lo && n.norm <= 1) {
			out = append(out, n.field)
		}
	}
	return out
}

// Encoder builds command frames stamped with a host id. The zero value uses
// host id 0, which is what the package level builders use.
type Encoder struct {
	Host uint8
}

// NewEncoder returns an Encoder for the given host id.
func NewEncoder(host uint8) Encoder {
	return Encoder{Host: host}
}

func (e Encoder) frame(mode Mode, field uint32, target uint8, data []byte) canbus.Frame {
	return canbus.ExtendedFrame(ComposeID(mode, field, target), data)
}

// EnableFrame builds a mode 3 frame with no payload.
func (e Encoder) EnableFrame(target uint8) canbus.Frame {
	return e.frame(ModeEnable, uint32(e.Host), target, nil)
}

// DisableFrame builds a mode 4 frame with no payload.
func (e Encoder) DisableFrame(target uint8) canbus.Frame {
	return e.frame(ModeDisable, uint32(e.Host), target, nil)
}

// ControlFrame builds a mode 1 frame. Out-of-range inputs saturate. The
// host id is not carried; the field holds the quantized torque.
func (e Encoder) ControlFrame(target uint8, sp Setpoint) canbus.Frame {
	f, _ := e.controlFrame(target, sp, Quantizer{})
	return f
}

// CheckedControlFrame is ControlFrame with range checking. It returns an
// *OutOfRangeError naming the first offending field.
func (e Encoder) CheckedControlFrame(target uint8, sp Setpoint) (canbus.Frame, error) {
	return e.controlFrame(target, sp, Quantizer{Mode: Checked})
}

func (e Encoder) controlFrame(target uint8, sp Setpoint, qz Quantizer) (canbus.Frame, error) {
	fields := sp.normalized()
	var raw [5]uint16
	for i, n := range fields {
		var err error
		if n.signed {
			raw[i], err = qz.Signed(n.norm)
		} else {
			raw[i], err = qz.Unsigned(n.norm)
		}
		if err != nil {
			return canbus.Frame{}, physicalRangeError(n.field, n.value)
		}
	}
	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], raw[1])
	binary.LittleEndian.PutUint16(data[2:4], raw[2])
	binary.LittleEndian.PutUint16(data[4:6], raw[3])
	binary.LittleEndian.PutUint16(data[6:8], raw[4])
	return e.frame(ModeControl, uint32(raw[0]), target, data[:]), nil
}

// physicalRangeError reports the accepted range in the caller's units.
func physicalRangeError(field string, v float64) error {
	e := &OutOfRangeError{Field: field, Value: v}
	switch field {
	case "torque":
		e.Min, e.Max = -1.0/12, 1.0/12
	case "angle":
		e.Min, e.Max = Angle.Min(), Angle.Max()
	case "velocity":
		e.Min, e.Max = Velocity.Min(), Velocity.Max()
	case "kp":
		e.Min, e.Max = Kp.Min(), Kp.Max()
	case "kd":
		e.Min, e.Max = Kd.Min(), Kd.Max()
	}
	return e
}

func (e Encoder) paramWrite(target uint8, addr uint16, v Value) canbus.Frame {
	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], addr)
	v.putLE(data[4:8])
	return e.frame(ModeParamWrite, uint32(e.Host), target, data[:])
}

// ParamWriteU32 builds a mode 18 frame writing an unsigned register.
func (e Encoder) ParamWriteU32(target uint8, reg U32Register, v uint32) canbus.Frame {
	return e.paramWrite(target, reg.Address, U32Value(v))
}

// ParamWriteI32 builds a mode 18 frame writing a signed register.
func (e Encoder) ParamWriteI32(target uint8, reg I32Register, v int32) canbus.Frame {
	return e.paramWrite(target, reg.Address, I32Value(v))
}

// ParamWriteF32 builds a mode 18 frame writing a float register.
func (e Encoder) ParamWriteF32(target uint8, reg F32Register, v float32) canbus.Frame {
	return e.paramWrite(target, reg.Address, F32Value(v))
}

// ParamWrite builds a mode 18 frame from a dynamically typed value. It fails
// with ErrTypeMismatch when v's kind differs from the register's, and for
// nil or pointer values.
func (e Encoder) ParamWrite(target uint8, reg Register, v Value) (canbus.Frame, error) {
	pv, ok := plainValue(v)
	if !ok {
		return canbus.Frame{}, errors.Wrapf(ErrTypeMismatch, "%s wants %v, got %T", reg.Name, reg.Kind, v)
	}
	if pv.Kind() != reg.Kind {
		return canbus.Frame{}, errors.Wrapf(ErrTypeMismatch, "%s wants %v, got %v", reg.Name, reg.Kind, pv.Kind())
	}
	return e.paramWrite(target, reg.Address, pv), nil
}

// ParamReadFrame builds a mode 17 request. The device answers with a mode
// 17 frame carrying the value, see ParseParamRead.
func (e Encoder) ParamReadFrame(target uint8, reg Register) canbus.Frame {
	var data [8]byte
	binary.LittleEndian.PutUint16(data[0:2], reg.Address)
	return e.frame(ModeParamRead, uint32(e.Host), target, data[:])
}

// SetZeroFrame builds a mode 6 frame that makes the current position the
// mechanical zero. The setting is lost on power cycle.
func (e Encoder) SetZeroFrame(target uint8) canbus.Frame {
	data := [8]byte{1}
	return e.frame(ModeSetZero, uint32(e.Host), target, data[:])
}

// SetCANIDFrame builds a mode 7 frame that moves the motor to newID.
func (e Encoder) SetCANIDFrame(target, newID uint8) canbus.Frame {
	var data [8]byte
	return e.frame(ModeSetCANID, uint32(newID)<<8|uint32(e.Host), target, data[:])
}

var defaultEncoder Encoder

// EnableFrame builds an enable frame with host id 0.
func EnableFrame(target uint8) canbus.Frame { return defaultEncoder.EnableFrame(target) }

// DisableFrame builds a disable frame with host id 0.
func DisableFrame(target uint8) canbus.Frame { return defaultEncoder.DisableFrame(target) }

// ControlFrame builds a saturating control frame.
func ControlFrame(target uint8, sp Setpoint) canbus.Frame {
	return defaultEncoder.ControlFrame(target, sp)
}

// CheckedControlFrame builds a control frame, rejecting out-of-range input.
func CheckedControlFrame(target uint8, sp Setpoint) (canbus.Frame, error) {
	return defaultEncoder.CheckedControlFrame(target, sp)
}

func ParamWriteU32(target uint8, reg U32Register, v uint32) canbus.Frame {
	return defaultEncoder.ParamWriteU32(target, reg, v)
}

func ParamWriteI32(target uint8, reg I32Register, v int32) canbus.Frame {
	return defaultEncoder.ParamWriteI32(target, reg, v)
}

func ParamWriteF32(target uint8, reg F32Register, v float32) canbus.Frame {
	return defaultEncoder.ParamWriteF32(target, reg, v)
}

// ParamWrite builds a parameter write from a dynamically typed value.
func ParamWrite(target uint8, reg Register, v Value) (canbus.Frame, error) {
	return defaultEncoder.ParamWrite(target, reg, v)
}

func ParamReadFrame(target uint8, reg Register) canbus.Frame {
	return defaultEncoder.ParamReadFrame(target, reg)
}

func SetZeroFrame(target uint8) canbus.Frame { return defaultEncoder.SetZeroFrame(target) }

func SetCANIDFrame(target, newID uint8) canbus.Frame {
	return defaultEncoder.SetCANIDFrame(target, newID)
}
