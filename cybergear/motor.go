package cybergear

import (
	"context"
	"log/slog"

	"github.com/notnil/cybergear/canbus"
)

// State is the client-side lifecycle state of a Motor. It is optimistic:
// the device does not acknowledge transitions.
type State uint8

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Motor drives one actuator through a canbus.Sender.
//
// A Motor is not safe for concurrent use. Callers sharing one across
// goroutines must serialize access themselves.
type Motor struct {
	tx     canbus.Sender
	target uint8
	enc    Encoder
	qz     Quantizer
	logger *slog.Logger

	state      State
	runMode    RunMode
	hasRunMode bool
}

// Option configures a Motor.
type Option func(*Motor)

// WithHostID sets the host id stamped into enable, disable and parameter
// frames. The default is 0.
func WithHostID(host uint8) Option {
	return func(m *Motor) { m.enc.Host = host }
}

// WithLogger sets the logger for state transitions and saturation events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Motor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithQuantizer selects saturating (default) or checked control encoding.
func WithQuantizer(q Quantizer) Option {
	return func(m *Motor) { m.qz = q }
}

// NewMotor binds target to tx. The motor starts Disabled.
func NewMotor(tx canbus.Sender, target uint8, opts ...Option) *Motor {
	m := &Motor{
		tx:     tx,
		target: target,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With("motor", target)
	return m
}

// Target returns the motor's bus address.
func (m *Motor) Target() uint8 { return m.target }

// State returns the client-side state.
func (m *Motor) State() State { return m.state }

func (m *Motor) setState(s State) {
	if m.state != s {
		m.logger.Debug("cybergear state", "from", m.state, "to", s)
	}
	m.state = s
}

// Enable sends an enable frame. The motor is considered Enabled even when
// the send fails; the transport error is returned unchanged.
func (m *Motor) Enable(ctx context.Context) error {
	err := m.tx.Send(ctx, m.enc.EnableFrame(m.target))
	m.setState(Enabled)
	return err
}

// Disable sends a disable frame from any state and marks the motor
// Disabled. Calling it repeatedly sends identical frames.
func (m *Motor) Disable(ctx context.Context) error {
	err := m.tx.Send(ctx, m.enc.DisableFrame(m.target))
	m.setState(Disabled)
	return err
}

// Control sends a closed-loop setpoint. It fails with ErrNotEnabled while
// the motor is Disabled. With the default quantizer out-of-range fields
// saturate and are logged at warn level; with a Checked quantizer they are
// rejected with *OutOfRangeError and nothing is sent.
func (m *Motor) Control(ctx context.Context, sp Setpoint) error {
	if m.state != Enabled {
		return ErrNotEnabled
	}
	var f canbus.Frame
	if m.qz.Mode == Checked {
		var err error
		if f, err = m.enc.CheckedControlFrame(m.target, sp); err != nil {
			return err
		}
	} else {
		if sat := sp.Saturated(); len(sat) > 0 {
			m.logger.Warn("cybergear setpoint saturated", "fields", sat, "setpoint", sp)
		}
		f = m.enc.ControlFrame(m.target, sp)
	}
	return m.tx.Send(ctx, f)
}

// WriteU32 writes an unsigned register. Allowed in any state.
func (m *Motor) WriteU32(ctx context.Context, reg U32Register, v uint32) error {
	return m.tx.Send(ctx, m.enc.ParamWriteU32(m.target, reg, v))
}

// WriteI32 writes a signed register. Allowed in any state.
func (m *Motor) WriteI32(ctx context.Context, reg I32Register, v int32) error {
	return m.tx.Send(ctx, m.enc.ParamWriteI32(m.target, reg, v))
}

// WriteF32 writes a float register. Allowed in any state.
func (m *Motor) WriteF32(ctx context.Context, reg F32Register, v float32) error {
	return m.tx.Send(ctx, m.enc.ParamWriteF32(m.target, reg, v))
}

// WriteRegister writes a dynamically typed value. It returns ErrTypeMismatch
// without sending when v does not match reg.Kind.
func (m *Motor) WriteRegister(ctx context.Context, reg Register, v Value) error {
	f, err := m.enc.ParamWrite(m.target, reg, v)
	if err != nil {
		return err
	}
	if err := m.tx.Send(ctx, f); err != nil {
		return err
	}
	if mode, ok := v.(U32Value); ok && reg.Address == RegRunMode.Address {
		m.cacheRunMode(RunMode(mode))
	}
	return nil
}

// RequestRegister sends a parameter read request. The reply arrives as a
// mode 17 frame, see ParseParamRead.
func (m *Motor) RequestRegister(ctx context.Context, reg Register) error {
	return m.tx.Send(ctx, m.enc.ParamReadFrame(m.target, reg))
}

// SetRunMode writes RUN_MODE and remembers the value.
func (m *Motor) SetRunMode(ctx context.Context, mode RunMode) error {
	if err := m.WriteU32(ctx, RegRunMode, uint32(mode)); err != nil {
		return err
	}
	m.cacheRunMode(mode)
	return nil
}

func (m *Motor) cacheRunMode(mode RunMode) {
	m.runMode, m.hasRunMode = mode, true
	m.logger.Debug("cybergear run mode", "mode", mode)
}

// RunMode returns the last run mode written through this Motor. It is never
// read back from the device.
func (m *Motor) RunMode() (RunMode, bool) { return m.runMode, m.hasRunMode }

// SetZero makes the current position the mechanical zero.
func (m *Motor) SetZero(ctx context.Context) error {
	return m.tx.Send(ctx, m.enc.SetZeroFrame(m.target))
}

// SetCANID moves the motor to newID. Subsequent commands from this Motor
// address newID.
func (m *Motor) SetCANID(ctx context.Context, newID uint8) error {
	if err := m.tx.Send(ctx, m.enc.SetCANIDFrame(m.target, newID)); err != nil {
		return err
	}
	m.logger.Info("cybergear can id changed", "new", newID)
	m.target = newID
	m.logger = m.logger.With("motor", newID)
	return nil
}
