package cybergear

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the wire type of a register value.
type Kind uint8

const (
	KindU32 Kind = iota + 1
	KindI32
	KindF32
)

func (k Kind) String() string {
	switch k {
	case KindU32:
		return "u32"
	case KindI32:
		return "i32"
	case KindF32:
		return "f32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Access describes whether a register may be written.
type Access uint8

const (
	ReadWrite Access = iota
	ReadOnly
)

func (a Access) String() string {
	if a == ReadOnly {
		return "r"
	}
	return "rw"
}

// Register is a run-time parameter of the motor controller.
type Register struct {
	Address     uint16
	Kind        Kind
	Name        string
	Unit        string
	Access      Access
	Description string
}

func (r Register) String() string {
	return fmt.Sprintf("%s(0x%04X,%s)", r.Name, r.Address, r.Kind)
}

// U32Register, I32Register and F32Register bind a register to its Go type so
// that writes of the wrong kind do not compile.
type (
	U32Register struct{ Register }
	I32Register struct{ Register }
	F32Register struct{ Register }
)

func u32(addr uint16, name, unit, desc string) U32Register {
	return U32Register{Register{Address: addr, Kind: KindU32, Name: name, Unit: unit, Description: desc}}
}

func i32(addr uint16, name, unit, desc string) I32Register {
	return I32Register{Register{Address: addr, Kind: KindI32, Name: name, Unit: unit, Description: desc}}
}

func f32(addr uint16, name, unit, desc string) F32Register {
	return F32Register{Register{Address: addr, Kind: KindF32, Name: name, Unit: unit, Description: desc}}
}

func readOnly(r F32Register) F32Register {
	r.Access = ReadOnly
	return r
}

// Run-time parameters.
var (
	RegRunMode     = u32(0x7005, "RUN_MODE", "", "control mode, see RunMode")
	RegIqRef       = f32(0x7006, "IQ_REF", "A", "current mode Iq command")
	RegSpdRef      = f32(0x700A, "SPD_REF", "rad/s", "speed mode command")
	RegLimitTorque = f32(0x700B, "LIMIT_TORQUE", "N·m", "torque limit")
	RegCurKp       = f32(0x7010, "CUR_KP", "", "current loop Kp")
	RegCurKi       = f32(0x7011, "CUR_KI", "", "current loop Ki")
	RegCurFiltGain = f32(0x7014, "CUR_FILT_GAIN", "", "current filter coefficient")
	RegLocRef      = f32(0x7016, "LOC_REF", "rad", "position mode command")
	RegLimitSpd    = f32(0x7017, "LIMIT_SPD", "rad/s", "position mode speed limit")
	RegLimitCur    = f32(0x7018, "LIMIT_CUR", "A", "speed/position mode current limit")
	RegMechPos     = readOnly(f32(0x7019, "MECH_POS", "rad", "load side mechanical angle"))
	RegIqf         = readOnly(f32(0x701A, "IQF", "A", "filtered Iq"))
	RegMechVel     = readOnly(f32(0x701B, "MECH_VEL", "rad/s", "load side speed"))
	RegVBus        = readOnly(f32(0x701C, "VBUS", "V", "bus voltage"))
	RegRotation    = i32(0x701D, "ROTATION", "turns", "turn count")
	RegLocKp       = f32(0x701E, "LOC_KP", "", "position loop Kp")
	RegSpdKp       = f32(0x701F, "SPD_KP", "", "speed loop Kp")
	RegSpdKi       = f32(0x7020, "SPD_KI", "", "speed loop Ki")
)

var catalog = []Register{
	RegRunMode.Register,
	RegIqRef.Register,
	RegSpdRef.Register,
	RegLimitTorque.Register,
	RegCurKp.Register,
	RegCurKi.Register,
	RegCurFiltGain.Register,
	RegLocRef.Register,
	RegLimitSpd.Register,
	RegLimitCur.Register,
	RegMechPos.Register,
	RegIqf.Register,
	RegMechVel.Register,
	RegVBus.Register,
	RegRotation.Register,
	RegLocKp.Register,
	RegSpdKp.Register,
	RegSpdKi.Register,
}

// Registers returns the catalog ordered by address.
func Registers() []Register {
	out := make([]Register, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// LookupRegister finds a register by address.
func LookupRegister(addr uint16) (Register, error) {
	for _, r := range catalog {
		if r.Address == addr {
			return r, nil
		}
	}
	return Register{}, errors.Wrapf(ErrUnknownRegister, "address 0x%04X", addr)
}

// RegisterByName finds a register by name, ignoring case and an optional
// "REG_" prefix.
func RegisterByName(name string) (Register, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "REG_")
	for _, r := range catalog {
		if r.Name == n {
			return r, nil
		}
	}
	return Register{}, errors.Wrapf(ErrUnknownRegister, "name %q", name)
}

// RunMode is the value of RUN_MODE.
type RunMode uint32

const (
	RunModeOperation RunMode = 0
	RunModePosition  RunMode = 1
	RunModeSpeed     RunMode = 2
	RunModeCurrent   RunMode = 3
)

func (m RunMode) String() string {
	switch m {
	case RunModeOperation:
		return "operation"
	case RunModePosition:
		return "position"
	case RunModeSpeed:
		return "speed"
	case RunModeCurrent:
		return "current"
	default:
		return fmt.Sprintf("runmode(%d)", uint32(m))
	}
}

// ParseRunMode accepts the names printed by RunMode.String.
func ParseRunMode(s string) (RunMode, error) {
	for m := RunModeOperation; m <= RunModeCurrent; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, errors.Errorf("cybergear: unknown run mode %q", s)
}

// Value is a register value of one of the three wire kinds. Pointers to
// U32Value, I32Value and F32Value also satisfy it; ParamWrite rejects them.
type Value interface {
	Kind() Kind
	// putLE writes the 4-byte little-endian encoding.
	putLE(b []byte)
}

type (
	U32Value uint32
	I32Value int32
	F32Value float32
)

func (U32Value) Kind() Kind { return KindU32 }
func (I32Value) Kind() Kind { return KindI32 }
func (F32Value) Kind() Kind { return KindF32 }

func (v U32Value) putLE(b []byte) { binary.LittleEndian.PutUint32(b, uint32(v)) }
func (v I32Value) putLE(b []byte) { binary.LittleEndian.PutUint32(b, uint32(v)) }
func (v F32Value) putLE(b []byte) { binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v))) }

// plainValue reports v as one of the three concrete value types, or false
// for nil, pointers and anything else.
func plainValue(v Value) (Value, bool) {
	switch v.(type) {
	case U32Value, I32Value, F32Value:
		return v, true
	}
	return nil, false
}

// DecodeValue interprets a 4-byte little-endian slot as a value of kind k.
func DecodeValue(k Kind, b []byte) (Value, error) {
	if len(b) < 4 {
		return nil, errors.Errorf("cybergear: value needs 4 bytes, got %d", len(b))
	}
	raw := binary.LittleEndian.Uint32(b)
	switch k {
	case KindU32:
		return U32Value(raw), nil
	case KindI32:
		return I32Value(int32(raw)), nil
	case KindF32:
		return F32Value(math.Float32frombits(raw)), nil
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "kind %v", k)
}

// ParseValue parses text as a value of kind k.
func ParseValue(k Kind, s string) (Value, error) {
	var err error
	switch k {
	case KindU32:
		var v uint32
		if _, err = fmt.Sscan(s, &v); err == nil {
			return U32Value(v), nil
		}
	case KindI32:
		var v int32
		if _, err = fmt.Sscan(s, &v); err == nil {
			return I32Value(v), nil
		}
	case KindF32:
		var v float32
		if _, err = fmt.Sscan(s, &v); err == nil {
			return F32Value(v), nil
		}
	default:
		return nil, errors.Wrapf(ErrTypeMismatch, "kind %v", k)
	}
	return nil, errors.Wrapf(err, "cybergear: parse %v %q", k, s)
}
