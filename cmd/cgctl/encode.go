package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/notnil/cybergear/canbus"
	"github.com/notnil/cybergear/cybergear"
)

// frameBuilder produces frames for the configured motor without a bus.
type frameBuilder func(enc cybergear.Encoder, target uint8, checked bool) (canbus.Frame, error)

func formatFrame(w io.Writer, format string, f canbus.Frame) error {
	switch format {
	case "frame":
		_, err := fmt.Fprintln(w, f)
		return err
	case "cansend":
		var b strings.Builder
		fmt.Fprintf(&b, "%08X#", f.ID)
		for _, c := range f.Payload() {
			fmt.Fprintf(&b, "%02X", c)
		}
		_, err := fmt.Fprintln(w, b.String())
		return err
	case "slcan":
		line, err := canbus.EncodeSLCAN(f)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, strings.TrimSuffix(line, "\r"))
		return err
	default:
		return errors.Errorf("unknown format %q (want frame, cansend or slcan)", format)
	}
}

func newEncodeCmd(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the frames a command would send, without opening a bus",
		Example: `  cgctl encode enable --motor 0x7F
  cgctl encode control --angle 1 --kp 5 --format cansend
  cgctl encode write SPD_REF 2.1 --format slcan`,
	}
	cmd.PersistentFlags().StringVarP(&format, "format", "f", "frame", "frame, cansend or slcan")

	sub := func(c *cobra.Command, build func(args []string) (frameBuilder, error)) *cobra.Command {
		c.RunE = func(cmd *cobra.Command, args []string) error {
			b, err := build(args)
			if err != nil {
				return err
			}
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			enc := cybergear.NewEncoder(uint8(cfg.Motor.Host))
			f, err := b(enc, uint8(cfg.Motor.ID), cfg.Motor.Checked)
			if err != nil {
				return err
			}
			return formatFrame(cmd.OutOrStdout(), format, f)
		}
		cmd.AddCommand(c)
		return c
	}
	fixed := func(fn func(enc cybergear.Encoder, target uint8) canbus.Frame) func([]string) (frameBuilder, error) {
		return func([]string) (frameBuilder, error) {
			return func(enc cybergear.Encoder, target uint8, _ bool) (canbus.Frame, error) {
				return fn(enc, target), nil
			}, nil
		}
	}

	sub(&cobra.Command{Use: "enable", Short: "Enable frame", Args: cobra.NoArgs},
		fixed(cybergear.Encoder.EnableFrame))
	sub(&cobra.Command{Use: "disable", Short: "Disable frame", Args: cobra.NoArgs},
		fixed(cybergear.Encoder.DisableFrame))
	sub(&cobra.Command{Use: "zero", Short: "Set mechanical zero frame", Args: cobra.NoArgs},
		fixed(cybergear.Encoder.SetZeroFrame))

	sub(&cobra.Command{Use: "set-id <new-id>", Short: "CAN id change frame", Args: cobra.ExactArgs(1)},
		func(args []string) (frameBuilder, error) {
			newID, err := parseCANID(args[0])
			if err != nil {
				return nil, err
			}
			return func(enc cybergear.Encoder, target uint8, _ bool) (canbus.Frame, error) {
				return enc.SetCANIDFrame(target, newID), nil
			}, nil
		})

	sub(&cobra.Command{Use: "mode <run-mode>", Short: "RUN_MODE write frame", Args: cobra.ExactArgs(1)},
		func(args []string) (frameBuilder, error) {
			mode, err := cybergear.ParseRunMode(args[0])
			if err != nil {
				return nil, err
			}
			return func(enc cybergear.Encoder, target uint8, _ bool) (canbus.Frame, error) {
				return enc.ParamWriteU32(target, cybergear.RegRunMode, uint32(mode)), nil
			}, nil
		})

	sub(&cobra.Command{Use: "write <register> <value>", Short: "Parameter write frame", Args: cobra.ExactArgs(2)},
		func(args []string) (frameBuilder, error) {
			reg, err := lookupRegister(args[0])
			if err != nil {
				return nil, err
			}
			v, err := cybergear.ParseValue(reg.Kind, args[1])
			if err != nil {
				return nil, err
			}
			return func(enc cybergear.Encoder, target uint8, _ bool) (canbus.Frame, error) {
				return enc.ParamWrite(target, reg, v)
			}, nil
		})

	sub(&cobra.Command{Use: "read <register>", Short: "Parameter read request frame", Args: cobra.ExactArgs(1)},
		func(args []string) (frameBuilder, error) {
			reg, err := lookupRegister(args[0])
			if err != nil {
				return nil, err
			}
			return func(enc cybergear.Encoder, target uint8, _ bool) (canbus.Frame, error) {
				return enc.ParamReadFrame(target, reg), nil
			}, nil
		})

	var sp setpointFlags
	control := sub(&cobra.Command{Use: "control", Short: "Operation-mode control frame", Args: cobra.NoArgs},
		func([]string) (frameBuilder, error) {
			return func(enc cybergear.Encoder, target uint8, checked bool) (canbus.Frame, error) {
				if checked {
					return enc.CheckedControlFrame(target, sp.sp)
				}
				return enc.ControlFrame(target, sp.sp), nil
			}, nil
		})
	sp.register(control)

	return cmd
}
