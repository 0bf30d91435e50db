package cybergear

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/notnil/cybergear/canbus"
)

func TestComposeDecompose(t *testing.T) {
	for _, mode := range []Mode{0, 1, 17, 18, 31} {
		for _, field := range []uint32{0, 1, 0x7F, 0x8000, 0xFFFF} {
			for _, target := range []uint8{0, 1, 0x7F, 0xFF} {
				id := ComposeID(mode, field, target)
				if id > 0x1FFFFFFF {
					t.Fatalf("id 0x%X exceeds 29 bits", id)
				}
				m, f, tg := DecomposeID(id)
				if m != mode || uint32(f) != field || tg != target {
					t.Fatalf("round trip (%d,0x%X,%d) -> (%d,0x%X,%d)", mode, field, target, m, f, tg)
				}
			}
		}
	}
}

func TestComposeMasks(t *testing.T) {
	// mode 35 keeps its low 5 bits (3); the field loses bits above 16.
	if id := ComposeID(35, 0x1ABCD, 0x7F); id != ComposeID(3, 0xABCD, 0x7F) {
		t.Fatalf("masking: 0x%08X", id)
	}
	if got := ComposeID(ModeEnable, 0, 0x7F); got != 0x0300007F {
		t.Fatalf("enable id 0x%08X", got)
	}
}

func TestEnableDisableFrames(t *testing.T) {
	cases := []struct {
		name string
		f    canbus.Frame
		id   uint32
	}{
		{"enable", EnableFrame(0x7F), 0x0300007F},
		{"disable", DisableFrame(0x7F), 0x0400007F},
		{"enable host 0xFD", NewEncoder(0xFD).EnableFrame(0x7F), 0x0300FD7F},
		{"disable host 1", NewEncoder(1).DisableFrame(0x01), 0x04000101},
	}
	for _, c := range cases {
		if c.f.ID != c.id || !c.f.Extended || c.f.Len != 0 {
			t.Fatalf("%s: got %v", c.name, c.f)
		}
	}
}

func TestControlFrameZero(t *testing.T) {
	f := ControlFrame(0x7F, Setpoint{})
	if f.ID != 0x0100007F || !f.Extended {
		t.Fatalf("control id: %v", f)
	}
	want := []byte{0x00, 0x80, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(f.Payload(), want) {
		t.Fatalf("control payload % X", f.Payload())
	}
}

func TestControlFrameFields(t *testing.T) {
	f := ControlFrame(0x01, Setpoint{
		Torque:   1.0 / 24, // *12 = 0.5
		Angle:    -4 * math.Pi,
		Velocity: 30 * math.Pi,
		Kp:       250,
		Kd:       1.25,
	})
	mode, field, target := DecomposeID(f.ID)
	if mode != ModeControl || target != 0x01 || field != 0x4000 {
		t.Fatalf("control id: mode=%v field=0x%X target=%d", mode, field, target)
	}
	words := []uint16{
		binary.LittleEndian.Uint16(f.Data[0:2]),
		binary.LittleEndian.Uint16(f.Data[2:4]),
		binary.LittleEndian.Uint16(f.Data[4:6]),
		binary.LittleEndian.Uint16(f.Data[6:8]),
	}
	want := []uint16{0, 65535, 32768, 16384}
	for i := range want {
		if words[i] != want[i] {
			t.Fatalf("word %d = %d, want %d", i, words[i], want[i])
		}
	}
}

func TestControlFrameSaturates(t *testing.T) {
	sp := Setpoint{Torque: 12, Angle: 100, Velocity: -1000, Kp: 1e6, Kd: -1}
	f := ControlFrame(0x7F, sp)
	_, field, _ := DecomposeID(f.ID)
	if field != 0x7FFF {
		t.Fatalf("torque field 0x%X", field)
	}
	want := []byte{0xFF, 0xFF, 0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
	if !bytes.Equal(f.Payload(), want) {
		t.Fatalf("payload % X", f.Payload())
	}
	if got := sp.Saturated(); len(got) != 5 {
		t.Fatalf("saturated fields %v", got)
	}
	if got := (Setpoint{Angle: 1, Kp: 10}).Saturated(); len(got) != 0 {
		t.Fatalf("unexpected saturation %v", got)
	}
}

func TestCheckedControlFrame(t *testing.T) {
	if _, err := CheckedControlFrame(0x7F, Setpoint{Angle: 1, Kp: 10, Kd: 1}); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		sp    Setpoint
		field string
	}{
		{Setpoint{Torque: 1}, "torque"},
		{Setpoint{Angle: 13}, "angle"},
		{Setpoint{Velocity: -95}, "velocity"},
		{Setpoint{Kp: 500.5}, "kp"},
		{Setpoint{Kd: -0.1}, "kd"},
	}
	for _, c := range cases {
		_, err := CheckedControlFrame(0x7F, c.sp)
		var oor *OutOfRangeError
		if !errors.As(err, &oor) || oor.Field != c.field {
			t.Fatalf("%s: err=%v", c.field, err)
		}
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("%s: not ErrOutOfRange", c.field)
		}
	}
}

func TestParamWriteFloat(t *testing.T) {
	f := ParamWriteF32(0x7F, RegSpdRef, 2.1)
	if f.ID != 0x1200007F || f.Len != 8 {
		t.Fatalf("param write: %v", f)
	}
	want := make([]byte, 8)
	copy(want, []byte{0x0A, 0x70, 0x00, 0x00})
	binary.LittleEndian.PutUint32(want[4:], math.Float32bits(2.1))
	if !bytes.Equal(f.Payload(), want) {
		t.Fatalf("payload % X, want % X", f.Payload(), want)
	}
	if !bytes.Equal(f.Payload()[4:], []byte{0x66, 0x66, 0x06, 0x40}) {
		t.Fatalf("float bits % X", f.Payload()[4:])
	}
}

func TestParamWriteKinds(t *testing.T) {
	u := ParamWriteU32(0x7F, RegRunMode, uint32(RunModeSpeed))
	if !bytes.Equal(u.Payload(), []byte{0x05, 0x70, 0, 0, 0x02, 0, 0, 0}) {
		t.Fatalf("u32 payload % X", u.Payload())
	}
	i := ParamWriteI32(0x7F, RegRotation, -2)
	if !bytes.Equal(i.Payload(), []byte{0x1D, 0x70, 0, 0, 0xFE, 0xFF, 0xFF, 0xFF}) {
		t.Fatalf("i32 payload % X", i.Payload())
	}
	h := NewEncoder(0xAA).ParamWriteU32(0x10, RegRunMode, 1)
	if h.ID != 0x1200AA10 {
		t.Fatalf("host stamped id 0x%08X", h.ID)
	}
}

func TestParamWriteDynamic(t *testing.T) {
	f, err := ParamWrite(0x7F, RegSpdRef.Register, F32Value(2.1))
	if err != nil {
		t.Fatal(err)
	}
	if f != ParamWriteF32(0x7F, RegSpdRef, 2.1) {
		t.Fatalf("dynamic and typed paths differ: %v", f)
	}
	if _, err := ParamWrite(0x7F, RegSpdRef.Register, U32Value(2)); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("mismatch err=%v", err)
	}
	if _, err := ParamWrite(0x7F, RegRunMode.Register, nil); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("nil err=%v", err)
	}
	v := U32Value(1)
	for _, bad := range []Value{&v, (*U32Value)(nil), (*I32Value)(nil)} {
		if _, err := ParamWrite(0x7F, RegRunMode.Register, bad); !errors.Is(err, ErrTypeMismatch) {
			t.Fatalf("%T err=%v", bad, err)
		}
	}
}

func TestAuxFrames(t *testing.T) {
	r := ParamReadFrame(0x7F, RegVBus.Register)
	if r.ID != 0x1100007F || !bytes.Equal(r.Payload(), []byte{0x1C, 0x70, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("param read: %v", r)
	}
	z := SetZeroFrame(0x7F)
	if z.ID != 0x0600007F || !bytes.Equal(z.Payload(), []byte{1, 0, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("set zero: %v", z)
	}
	c := NewEncoder(0xFD).SetCANIDFrame(0x7F, 0x10)
	if c.ID != 0x0710FD7F || c.Len != 8 {
		t.Fatalf("set can id: %v", c)
	}
}
