package cybergear

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/notnil/cybergear/canbus"
)

// recorder is a Sender that keeps every frame and fails with err.
type recorder struct {
	frames []canbus.Frame
	err    error
}

func (r *recorder) Send(ctx context.Context, f canbus.Frame) error {
	r.frames = append(r.frames, f)
	return r.err
}

func TestMotorLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new motor", t, func() {
		tx := &recorder{}
		m := NewMotor(tx, 0x7F)

		Convey("It starts disabled", func() {
			So(m.State(), ShouldEqual, Disabled)
			So(m.Target(), ShouldEqual, uint8(0x7F))
		})

		Convey("Control before enable is rejected without sending", func() {
			err := m.Control(ctx, Setpoint{})
			So(errors.Is(err, ErrNotEnabled), ShouldBeTrue)
			So(tx.frames, ShouldBeEmpty)
		})

		Convey("Enable sends mode 3 and moves to enabled", func() {
			So(m.Enable(ctx), ShouldBeNil)
			So(m.State(), ShouldEqual, Enabled)
			So(tx.frames, ShouldHaveLength, 1)
			So(tx.frames[0].ID, ShouldEqual, uint32(0x0300007F))

			Convey("Control then sends the setpoint", func() {
				So(m.Control(ctx, Setpoint{}), ShouldBeNil)
				So(tx.frames, ShouldHaveLength, 2)
				So(tx.frames[1], ShouldResemble, ControlFrame(0x7F, Setpoint{}))
			})

			Convey("Disable returns to disabled", func() {
				So(m.Disable(ctx), ShouldBeNil)
				So(m.State(), ShouldEqual, Disabled)
				So(tx.frames[1].ID, ShouldEqual, uint32(0x0400007F))
				So(errors.Is(m.Control(ctx, Setpoint{}), ErrNotEnabled), ShouldBeTrue)
			})
		})

		Convey("Disable twice sends identical frames and stays disabled", func() {
			So(m.Disable(ctx), ShouldBeNil)
			So(m.Disable(ctx), ShouldBeNil)
			So(tx.frames, ShouldHaveLength, 2)
			So(tx.frames[0], ShouldResemble, tx.frames[1])
			So(m.State(), ShouldEqual, Disabled)
		})

		Convey("Register writes are allowed while disabled", func() {
			So(m.WriteF32(ctx, RegSpdRef, 2.1), ShouldBeNil)
			So(m.WriteI32(ctx, RegRotation, 3), ShouldBeNil)
			So(m.WriteU32(ctx, RegRunMode, 1), ShouldBeNil)
			So(tx.frames, ShouldHaveLength, 3)
			So(tx.frames[0], ShouldResemble, ParamWriteF32(0x7F, RegSpdRef, 2.1))
		})

		Convey("A dynamic write of the wrong kind sends nothing", func() {
			err := m.WriteRegister(ctx, RegSpdRef.Register, I32Value(1))
			So(errors.Is(err, ErrTypeMismatch), ShouldBeTrue)
			So(tx.frames, ShouldBeEmpty)
		})

		Convey("Pointer and nil values are rejected without sending", func() {
			for _, v := range []Value{new(U32Value), (*U32Value)(nil), (*F32Value)(nil)} {
				err := m.WriteRegister(ctx, RegRunMode.Register, v)
				So(errors.Is(err, ErrTypeMismatch), ShouldBeTrue)
			}
			So(tx.frames, ShouldBeEmpty)
			_, ok := m.RunMode()
			So(ok, ShouldBeFalse)
		})

		Convey("A hand-built RUN_MODE register of another kind does not cache", func() {
			reg := Register{Address: RegRunMode.Address, Kind: KindF32}
			So(m.WriteRegister(ctx, reg, F32Value(1)), ShouldBeNil)
			So(tx.frames, ShouldHaveLength, 1)
			_, ok := m.RunMode()
			So(ok, ShouldBeFalse)
		})

		Convey("SetRunMode caches the mode", func() {
			_, ok := m.RunMode()
			So(ok, ShouldBeFalse)
			So(m.SetRunMode(ctx, RunModeSpeed), ShouldBeNil)
			mode, ok := m.RunMode()
			So(ok, ShouldBeTrue)
			So(mode, ShouldEqual, RunModeSpeed)
			So(tx.frames[0], ShouldResemble, ParamWriteU32(0x7F, RegRunMode, 2))

			Convey("and a dynamic RUN_MODE write updates it", func() {
				So(m.WriteRegister(ctx, RegRunMode.Register, U32Value(RunModeCurrent)), ShouldBeNil)
				mode, _ := m.RunMode()
				So(mode, ShouldEqual, RunModeCurrent)
			})
		})

		Convey("SetCANID retargets later commands", func() {
			So(m.SetCANID(ctx, 0x10), ShouldBeNil)
			So(m.Target(), ShouldEqual, uint8(0x10))
			So(m.Enable(ctx), ShouldBeNil)
			So(tx.frames[1].ID, ShouldEqual, uint32(0x03000010))
		})
	})
}

func TestMotorTransportErrors(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sender that always fails", t, func() {
		boom := errors.New("bus off")
		tx := &recorder{err: boom}
		m := NewMotor(tx, 1)

		Convey("Enable returns the error verbatim but still enables", func() {
			So(m.Enable(ctx), ShouldEqual, boom)
			So(m.State(), ShouldEqual, Enabled)
		})

		Convey("Disable returns the error verbatim and disables", func() {
			tx.err = nil
			So(m.Enable(ctx), ShouldBeNil)
			tx.err = boom
			So(m.Disable(ctx), ShouldEqual, boom)
			So(m.State(), ShouldEqual, Disabled)
		})

		Convey("A failed set-id keeps the old target", func() {
			So(m.SetCANID(ctx, 9), ShouldEqual, boom)
			So(m.Target(), ShouldEqual, uint8(1))
		})

		Convey("A failed run mode write is not cached", func() {
			So(m.SetRunMode(ctx, RunModePosition), ShouldEqual, boom)
			_, ok := m.RunMode()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestMotorOptions(t *testing.T) {
	ctx := context.Background()

	Convey("Host id is stamped into enable frames", t, func() {
		tx := &recorder{}
		m := NewMotor(tx, 0x7F, WithHostID(0xFD))
		So(m.Enable(ctx), ShouldBeNil)
		So(tx.frames[0].ID, ShouldEqual, uint32(0x0300FD7F))
	})

	Convey("Saturating control logs a warning", t, func() {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		tx := &recorder{}
		m := NewMotor(tx, 0x7F, WithLogger(logger))
		So(m.Enable(ctx), ShouldBeNil)
		So(m.Control(ctx, Setpoint{Kp: 900}), ShouldBeNil)
		So(tx.frames, ShouldHaveLength, 2)
		So(buf.String(), ShouldContainSubstring, "cybergear setpoint saturated")
		So(buf.String(), ShouldContainSubstring, "kp")
	})

	Convey("Checked control rejects without sending", t, func() {
		tx := &recorder{}
		m := NewMotor(tx, 0x7F, WithQuantizer(Quantizer{Mode: Checked}))
		So(m.Enable(ctx), ShouldBeNil)
		err := m.Control(ctx, Setpoint{Kd: 6})
		So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
		So(tx.frames, ShouldHaveLength, 1)
	})
}

func TestGuard(t *testing.T) {
	Convey("Engage enables and Release disables exactly once", t, func() {
		tx := &recorder{}
		m := NewMotor(tx, 0x7F)
		g, err := m.Engage(context.Background())
		So(err, ShouldBeNil)
		So(g.Motor(), ShouldEqual, m)
		So(m.State(), ShouldEqual, Enabled)

		So(g.Release(context.Background()), ShouldBeNil)
		So(g.Release(context.Background()), ShouldBeNil)
		So(tx.frames, ShouldHaveLength, 2)
		So(tx.frames[1].ID, ShouldEqual, uint32(0x0400007F))
		So(m.State(), ShouldEqual, Disabled)
	})

	Convey("Release still sends after the context is cancelled", t, func() {
		var got context.Context
		tx := canbus.SenderFunc(func(ctx context.Context, f canbus.Frame) error {
			got = ctx
			return ctx.Err()
		})
		m := NewMotor(tx, 0x7F)
		ctx, cancel := context.WithCancel(context.Background())
		g, err := m.Engage(ctx)
		So(err, ShouldBeNil)
		cancel()

		So(g.Release(ctx), ShouldBeNil)
		_, hasDeadline := got.Deadline()
		So(hasDeadline, ShouldBeTrue)
		So(m.State(), ShouldEqual, Disabled)
	})

	Convey("ReleaseInto appends the disable error", t, func() {
		boom := errors.New("bus off")
		run := func() (err error) {
			tx := &recorder{}
			m := NewMotor(tx, 0x7F)
			g, err := m.Engage(context.Background())
			if err != nil {
				return err
			}
			defer g.ReleaseInto(context.Background(), &err)
			tx.err = boom
			return errors.New("control loop failed")
		}
		err := run()
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "control loop failed")
		So(errors.Is(err, boom), ShouldBeTrue)
	})
}

func TestMotorOnLoopback(t *testing.T) {
	Convey("Frames sent by a motor arrive on a peer endpoint", t, func() {
		bus := canbus.NewLoopbackBus()
		defer bus.Close()
		host := bus.Open()
		peer := bus.Open()

		m := NewMotor(host, 0x7F)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		g, err := m.Engage(ctx)
		So(err, ShouldBeNil)
		So(m.WriteF32(ctx, RegSpdRef, 2.1), ShouldBeNil)
		So(g.Release(ctx), ShouldBeNil)

		var ids []uint32
		for i := 0; i < 3; i++ {
			f, err := peer.Receive(ctx)
			So(err, ShouldBeNil)
			ids = append(ids, f.ID)
		}
		So(ids, ShouldResemble, []uint32{0x0300007F, 0x1200007F, 0x0400007F})
	})
}
