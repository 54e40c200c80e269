package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/ui"
)

var setProfileCmd = &cobra.Command{
	Use:   "set-profile <home|work>",
	Short: "Switch the machine profile in policy.yaml",
	Long: `Rewrite the profile field of policy.yaml in place.

The profile gates which loops may run on this machine: the bridge only
runs on home, and the work profile keeps sealed plaintext from ever
being pushed to the personal side. The rewrite is atomic; a running
daemon picks it up on its next cycle.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.SetProfile(configPath, args[0]); err != nil {
			fail(err)
		}
		fmt.Printf("%s profile set to %s\n", ui.RenderPass("✓"), args[0])
	},
}

func init() {
	rootCmd.AddCommand(setProfileCmd)
}
