package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sealbridge/sealrepos/internal/daemon"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the periodic sync loop until interrupted",
	Long: `Run the sync daemon in the foreground.

The daemon holds a host-wide lock, reloads policy.yaml at the top of
every cycle, syncs each eligible repository in order, and sleeps a
jittered interval between cycles. Editing policy.yaml wakes it early.
Logs go to stderr and to a rotated file in the state directory.

Run under a supervisor (systemd, launchd) for unattended operation.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, err := daemonLogger("sealreposd.log")
		if err != nil {
			fail(err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		d := &daemon.Daemon{
			ConfigPath: configPath,
			Git:        gitwrap.New(logger),
			Logger:     logger,
		}

		logger.Printf("sync daemon starting")
		err = d.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			fail(err)
		}
		fmt.Println("daemon stopped")
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
