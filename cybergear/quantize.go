package cybergear

import "math"

const quantScale = 65536

// EncodeUnsigned maps v in [0,1] to round(v*65536) clamped to [0,65535].
// Values outside the range saturate. NaN encodes as 0.
//
// The vendor's reference tooling truncates instead of rounding, so a
// non-zero input can land one unit higher here (kp=10 encodes as 1311, not
// 1310).
func EncodeUnsigned(v float64) uint16 {
	if math.IsNaN(v) {
		return 0
	}
	q := math.Round(v * quantScale)
	switch {
	case q < 0:
		return 0
	case q > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(q)
}

// EncodeSigned maps v in [-1,1] onto the signed-biased 16-bit field:
// EncodeUnsigned((v+1)/2) - 32768, wrapping modulo 65536. -1 encodes as
// 0x8000, 0 as 0x0000 and 1 as 0x7FFF.
func EncodeSigned(v float64) uint16 {
	return EncodeUnsigned((v+1)/2) - 0x8000
}

// DecodeUnsigned is the inverse of EncodeUnsigned.
func DecodeUnsigned(q uint16) float64 {
	return float64(q) / quantScale
}

// DecodeSigned is the inverse of EncodeSigned.
func DecodeSigned(q uint16) float64 {
	return 2*DecodeUnsigned(q+0x8000) - 1
}

// QuantMode selects how a Quantizer treats out-of-range input.
type QuantMode int

const (
	// Saturating clamps silently. This is the wire-compatible default.
	Saturating QuantMode = iota
	// Checked rejects input outside the normalized range with *OutOfRangeError.
	Checked
)

func (m QuantMode) String() string {
	switch m {
	case Saturating:
		return "saturating"
	case Checked:
		return "checked"
	default:
		return "unknown"
	}
}

// Quantizer encodes normalized values according to its Mode. The zero value
// saturates.
type Quantizer struct {
	Mode QuantMode
}

// Unsigned encodes v in [0,1].
func (qz Quantizer) Unsigned(v float64) (uint16, error) {
	if qz.Mode == Checked && !(v >= 0 && v <= 1) {
		return 0, &OutOfRangeError{Field: "unsigned", Value: v, Min: 0, Max: 1}
	}
	return EncodeUnsigned(v), nil
}

// Signed encodes v in [-1,1].
func (qz Quantizer) Signed(v float64) (uint16, error) {
	if qz.Mode == Checked && !(v >= -1 && v <= 1) {
		return 0, &OutOfRangeError{Field: "signed", Value: v, Min: -1, Max: 1}
	}
	return EncodeSigned(v), nil
}

// Quantity is a bounded physical value with a fixed conversion law to the
// 16-bit wire representation. Lo and Hi bound the value after division by
// Scale; angle and velocity are carried in multiples of pi.
type Quantity struct {
	Name   string
	Unit   string
	Lo, Hi float64
	Scale  float64
	Signed bool // encoded with EncodeSigned
}

// The five quantities carried by control and feedback frames.
var (
	Torque   = Quantity{Name: "torque", Unit: "N·m", Lo: -12, Hi: 12, Scale: 1, Signed: true}
	Angle    = Quantity{Name: "angle", Unit: "rad", Lo: -4, Hi: 4, Scale: math.Pi}
	Velocity = Quantity{Name: "velocity", Unit: "rad/s", Lo: -30, Hi: 30, Scale: math.Pi}
	Kp       = Quantity{Name: "kp", Lo: 0, Hi: 500, Scale: 1}
	Kd       = Quantity{Name: "kd", Lo: 0, Hi: 5, Scale: 1}
)

// Min is the lower bound in physical units.
func (q Quantity) Min() float64 { return q.Lo * q.Scale }

// Max is the upper bound in physical units.
func (q Quantity) Max() float64 { return q.Hi * q.Scale }

// InRange reports whether v lies within [Min, Max].
func (q Quantity) InRange(v float64) bool {
	x := v / q.Scale
	return x >= q.Lo && x <= q.Hi
}

// Normalize maps v into [0,1], or [-1,1] for signed quantities.
func (q Quantity) Normalize(v float64) float64 {
	x := v / q.Scale
	if q.Signed {
		return x / q.Hi
	}
	return (x - q.Lo) / (q.Hi - q.Lo)
}

// Encode normalizes v and quantizes it with the saturating law.
func (q Quantity) Encode(v float64) uint16 {
	if q.Signed {
		return EncodeSigned(q.Normalize(v))
	}
	return EncodeUnsigned(q.Normalize(v))
}

// Decode inverts Encode to within one quantization unit of the normalized
// range.
func (q Quantity) Decode(raw uint16) float64 {
	if q.Signed {
		return DecodeSigned(raw) * q.Hi * q.Scale
	}
	return (q.Lo + DecodeUnsigned(raw)*(q.Hi-q.Lo)) * q.Scale
}
