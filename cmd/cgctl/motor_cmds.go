package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/notnil/cybergear/cybergear"
)

func newEnableCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Enable the motor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withSession(cmd, func(ctx context.Context, s *session) error {
				ctx, cancel := s.op(ctx)
				defer cancel()
				return s.motor.Enable(ctx)
			})
		},
	}
}

func newDisableCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the motor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withSession(cmd, func(ctx context.Context, s *session) error {
				ctx, cancel := s.op(ctx)
				defer cancel()
				return s.motor.Disable(ctx)
			})
		},
	}
}

func newZeroCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "zero",
		Short: "Make the current position the mechanical zero (until power cycle)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withSession(cmd, func(ctx context.Context, s *session) error {
				ctx, cancel := s.op(ctx)
				defer cancel()
				return s.motor.SetZero(ctx)
			})
		},
	}
}

func parseCANID(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid CAN id %q", s)
	}
	return uint8(v), nil
}

func newSetIDCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "set-id <new-id>",
		Short:   "Change the motor's CAN id",
		Example: "  cgctl set-id 0x10 --motor 0x7F",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newID, err := parseCANID(args[0])
			if err != nil {
				return err
			}
			return flags.withSession(cmd, func(ctx context.Context, s *session) error {
				ctx, cancel := s.op(ctx)
				defer cancel()
				return s.motor.SetCANID(ctx, newID)
			})
		},
	}
}

func newModeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "mode <operation|position|speed|current>",
		Short:     "Write the RUN_MODE register",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"operation", "position", "speed", "current"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := cybergear.ParseRunMode(args[0])
			if err != nil {
				return err
			}
			return flags.withSession(cmd, func(ctx context.Context, s *session) error {
				ctx, cancel := s.op(ctx)
				defer cancel()
				if err := s.motor.SetRunMode(ctx, mode); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run mode %s\n", mode)
				return nil
			})
		},
	}
}
