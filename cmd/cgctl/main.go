package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "cgctl",
		Short: "Drive a CyberGear servo over CAN",
		Long: `cgctl sends enable, disable, control and parameter frames to one
CyberGear actuator over SocketCAN, a serial SLCAN adapter, or an in-memory
loopback bus for dry runs.

Settings come from --config (YAML), then CYBERGEAR_* environment variables,
then command line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.register(rootCmd)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newEnableCmd(flags))
	rootCmd.AddCommand(newDisableCmd(flags))
	rootCmd.AddCommand(newZeroCmd(flags))
	rootCmd.AddCommand(newSetIDCmd(flags))
	rootCmd.AddCommand(newModeCmd(flags))
	rootCmd.AddCommand(newWriteCmd(flags))
	rootCmd.AddCommand(newReadCmd(flags))
	rootCmd.AddCommand(newControlCmd(flags))
	rootCmd.AddCommand(newSpinCmd(flags))
	rootCmd.AddCommand(newRegistersCmd())
	rootCmd.AddCommand(newEncodeCmd(flags))
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cgctl %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
