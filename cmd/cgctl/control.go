package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/notnil/cybergear/canbus"
	"github.com/notnil/cybergear/cybergear"
)

type setpointFlags struct {
	sp cybergear.Setpoint
}

func (f *setpointFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.sp.Torque, "torque", 0, "feed-forward torque")
	fs.Float64Var(&f.sp.Angle, "angle", 0, "target angle in rad")
	fs.Float64Var(&f.sp.Velocity, "velocity", 0, "target velocity in rad/s")
	fs.Float64Var(&f.sp.Kp, "kp", 0, "position gain")
	fs.Float64Var(&f.sp.Kd, "kd", 0, "damping gain")
}

// watchFeedback logs feedback from the session motor until the returned
// stop function is called.
func watchFeedback(s *session) (stop func()) {
	mux := canbus.NewMux(s.bus)
	ch, cancel := cybergear.SubscribeFeedback(mux, s.motor.Target(), 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for fb := range ch {
			s.logger.Info("feedback",
				"motor", fb.Motor,
				"state", fb.State,
				"faults", fb.Faults,
				"angle", fb.Angle,
				"velocity", fb.Velocity,
				"torque", fb.Torque,
				"temperature", fb.Temperature,
			)
		}
	}()
	return func() {
		cancel()
		mux.Close()
		<-done
	}
}

// holdFor waits for d, or until ctx is done when d is zero.
func holdFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func newControlCmd(flags *globalFlags) *cobra.Command {
	var (
		sp       setpointFlags
		rate     float64
		duration time.Duration
		feedback bool
	)
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Stream operation-mode setpoints to the motor",
		Long: `control enables the motor, sends the setpoint at --rate until --duration
elapses or the command is interrupted, then disables the motor.`,
		Example: "  cgctl control --angle 1.57 --kp 10 --kd 0.5 --duration 3s",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rate <= 0 {
				return errors.Errorf("rate must be positive, got %g", rate)
			}
			return flags.withSession(cmd, func(ctx context.Context, s *session) (err error) {
				if feedback {
					defer watchFeedback(s)()
				}
				g, err := s.motor.Engage(ctx)
				defer g.ReleaseInto(ctx, &err)
				if err != nil {
					return err
				}
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}
				ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
				defer ticker.Stop()
				for {
					opCtx, cancel := s.op(ctx)
					err := s.motor.Control(opCtx, sp.sp)
					cancel()
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}
	sp.register(cmd)
	cmd.Flags().Float64Var(&rate, "rate", 100, "setpoints per second")
	cmd.Flags().DurationVar(&duration, "duration", time.Second, "how long to stream; 0 runs until interrupted")
	cmd.Flags().BoolVar(&feedback, "feedback", false, "log motor feedback")
	return cmd
}

func newSpinCmd(flags *globalFlags) *cobra.Command {
	var (
		speed    float64
		duration time.Duration
		feedback bool
	)
	cmd := &cobra.Command{
		Use:   "spin",
		Short: "Run the motor in speed mode",
		Long: `spin enables the motor, switches it to speed mode and writes SPD_REF.
The motor is disabled when --duration elapses or on interrupt.`,
		Example: "  cgctl spin --speed 2.1 --duration 5s",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withSession(cmd, func(ctx context.Context, s *session) (err error) {
				if feedback {
					defer watchFeedback(s)()
				}
				g, err := s.motor.Engage(ctx)
				defer g.ReleaseInto(ctx, &err)
				if err != nil {
					return err
				}
				opCtx, cancel := s.op(ctx)
				defer cancel()
				if err := s.motor.SetRunMode(opCtx, cybergear.RunModeSpeed); err != nil {
					return err
				}
				if err := s.motor.WriteF32(opCtx, cybergear.RegSpdRef, float32(speed)); err != nil {
					return err
				}
				s.logger.Info("spinning", "motor", s.motor.Target(), "speed", speed)
				holdFor(ctx, duration)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 2.1, "target speed in rad/s")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long to spin; 0 runs until interrupted")
	cmd.Flags().BoolVar(&feedback, "feedback", false, "log motor feedback")
	return cmd
}
