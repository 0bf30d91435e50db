package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/notnil/cybergear/canbus"
	"github.com/notnil/cybergear/cybergear"
)

func newRegistersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "registers",
		Short: "List the run-time parameter registers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDR\tNAME\tKIND\tACCESS\tUNIT\tDESCRIPTION")
			for _, r := range cybergear.Registers() {
				fmt.Fprintf(w, "0x%04X\t%s\t%s\t%s\t%s\t%s\n", r.Address, r.Name, r.Kind, r.Access, r.Unit, r.Description)
			}
			w.Flush()
		},
	}
}

func newWriteCmd(flags *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "write <register> <value>",
		Short: "Write a parameter register",
		Example: `  cgctl write SPD_REF 2.1
  cgctl write run_mode 2
  cgctl write 0x7016 -3.14`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := lookupRegister(args[0])
			if err != nil {
				return err
			}
			if reg.Access == cybergear.ReadOnly && !force {
				return errors.Errorf("register %s is read-only (use --force to write anyway)", reg.Name)
			}
			v, err := cybergear.ParseValue(reg.Kind, args[1])
			if err != nil {
				return err
			}
			return flags.withSession(cmd, func(ctx context.Context, s *session) error {
				ctx, cancel := s.op(ctx)
				defer cancel()
				return s.motor.WriteRegister(ctx, reg, v)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "write read-only registers")
	return cmd
}

// lookupRegister accepts a catalog name or a numeric address.
func lookupRegister(s string) (cybergear.Register, error) {
	if reg, err := cybergear.RegisterByName(s); err == nil {
		return reg, nil
	}
	addr, err := parseAddress(s)
	if err != nil {
		return cybergear.Register{}, errors.Wrapf(cybergear.ErrUnknownRegister, "%q", s)
	}
	return cybergear.LookupRegister(addr)
}

func parseAddress(s string) (uint16, error) {
	var addr uint16
	_, err := fmt.Sscanf(s, "0x%x", &addr)
	if err != nil {
		_, err = fmt.Sscanf(s, "%d", &addr)
	}
	return addr, err
}

func newReadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <register>",
		Short: "Read a parameter register",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := lookupRegister(args[0])
			if err != nil {
				return err
			}
			return flags.withSession(cmd, func(ctx context.Context, s *session) error {
				v, err := readRegister(ctx, s, reg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v %s\n", reg.Name, v, reg.Unit)
				return nil
			})
		},
	}
}

// readRegister requests reg and waits for the matching mode 17 reply.
func readRegister(ctx context.Context, s *session, reg cybergear.Register) (cybergear.Value, error) {
	mux := canbus.NewMux(s.bus)
	defer mux.Close()
	target := s.motor.Target()
	replies, cancel := mux.Subscribe(func(f canbus.Frame) bool {
		r, err := cybergear.ParseParamRead(f)
		return err == nil && r.Motor == target && r.Address == reg.Address
	}, 1)
	defer cancel()

	ctx, done := s.op(ctx)
	defer done()
	if err := s.motor.RequestRegister(ctx, reg); err != nil {
		return nil, err
	}
	select {
	case f, ok := <-replies:
		if !ok {
			return nil, canbus.ErrClosed
		}
		r, err := cybergear.ParseParamRead(f)
		if err != nil {
			return nil, err
		}
		return r.Value(reg)
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "no reply for %s from motor %d", reg.Name, target)
	}
}
