package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sealbridge/sealrepos/internal/daemon"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
	"github.com/sealbridge/sealrepos/internal/ui"
)

var bridgeOnce bool

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the two-clone bridge for sealed repositories",
	Long: `Mirror sealed repositories between their personal and relay remotes.

The bridge maintains a pair of working clones per repository under the
data directory and copies policy-filtered trees between them. It only
runs on the home profile, where both sides are reachable in plaintext.

By default the bridge loops like the daemon; --once runs a single cycle
and exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, err := daemonLogger("sealbridge-bridge.log")
		if err != nil {
			fail(err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		b := &daemon.BridgeDaemon{
			ConfigPath: configPath,
			Git:        gitwrap.New(logger),
			Logger:     logger,
		}
		if bridgeOnce {
			b.MaxCycles = 1
		}

		logger.Printf("bridge starting")
		err = b.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			fail(err)
		}
		if bridgeOnce {
			fmt.Printf("%s bridge cycle complete\n", ui.RenderPass("✓"))
		}
	},
}

func init() {
	bridgeCmd.Flags().BoolVar(&bridgeOnce, "once", false, "run one bridge cycle and exit")
	rootCmd.AddCommand(bridgeCmd)
}
