package canbus

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrame_Validate_Marshal_Unmarshal_String(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantStr string
	}{
		{
			name:    "standard frame with data",
			frame:   MustFrame(0x123, []byte{0xDE, 0xAD}),
			wantStr: "123 [2] DE AD",
		},
		{
			name:    "extended RTR, zero length",
			frame:   Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true},
			wantStr: "1ABCDEFF [0] RTR",
		},
		{
			name:    "extended data",
			frame:   ExtendedFrame(0x0300007F, nil),
			wantStr: "0300007F [0]",
		},
	}

	for _, tc := range cases {
		if err := tc.frame.Validate(); err != nil {
			t.Fatalf("%s: Validate() = %v", tc.name, err)
		}
		b, err := tc.frame.MarshalBinary()
		if err != nil {
			t.Fatalf("%s: MarshalBinary() error = %v", tc.name, err)
		}
		if len(b) != 16 {
			t.Fatalf("%s: encoded %d bytes", tc.name, len(b))
		}
		var g Frame
		if err := g.UnmarshalBinary(b); err != nil {
			t.Fatalf("%s: UnmarshalBinary() error = %v", tc.name, err)
		}
		if g != tc.frame {
			t.Fatalf("%s: roundtrip mismatch: got %+v want %+v", tc.name, g, tc.frame)
		}
		if got := g.String(); got != tc.wantStr {
			t.Fatalf("%s: String() = %q, want %q", tc.name, got, tc.wantStr)
		}
	}

	if err := (Frame{ID: 0x800}).Validate(); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("standard id 0x800: %v", err)
	}
	if err := (Frame{ID: 0x20000000, Extended: true}).Validate(); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("extended id 0x20000000: %v", err)
	}
	if err := (Frame{ID: 1, Len: 9}).Validate(); !errors.Is(err, ErrInvalidLen) {
		t.Fatalf("len 9: %v", err)
	}
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("MustFrame should panic for len>8")
			}
		}()
		_ = MustFrame(0x123, make([]byte, 9))
	}()
}

func TestFrame_KernelLayout(t *testing.T) {
	f := ExtendedFrame(0x1200007F, []byte{0x0A, 0x70})
	b, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	// can_id little-endian with CAN_EFF_FLAG set
	want := []byte{0x7F, 0x00, 0x00, 0x92, 2, 0, 0, 0, 0x0A, 0x70, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("layout % X", b)
	}
	var g Frame
	if err := g.UnmarshalBinary(b[:15]); err == nil {
		t.Fatal("short buffer accepted")
	}
}

func TestExtendedFrame(t *testing.T) {
	f := ExtendedFrame(0xFFFFFFFF, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if f.ID != 0x1FFFFFFF || !f.Extended || f.Len != 8 {
		t.Fatalf("got %+v", f)
	}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Payload(), []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("payload % X", f.Payload())
	}
}
