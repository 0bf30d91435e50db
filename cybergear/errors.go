package cybergear

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEnabled is returned by Motor.Control while the motor is disabled.
	ErrNotEnabled = errors.New("cybergear: motor not enabled")
	// ErrTypeMismatch reports a register value of the wrong kind.
	ErrTypeMismatch = errors.New("cybergear: register kind mismatch")
	// ErrOutOfRange matches every *OutOfRangeError.
	ErrOutOfRange = errors.New("cybergear: value out of range")
	// ErrNotFeedback is returned when decoding a frame of the wrong mode.
	ErrNotFeedback = errors.New("cybergear: not a feedback frame")
	// ErrUnknownRegister is returned by catalog lookups that miss.
	ErrUnknownRegister = errors.New("cybergear: unknown register")
)

// OutOfRangeError describes a value a Checked quantizer refused to encode.
type OutOfRangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("cybergear: %s %g outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// Is reports whether target is ErrOutOfRange.
func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }
