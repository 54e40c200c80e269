package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/cryptmode"
	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
	"github.com/sealbridge/sealrepos/internal/ui"
)

var unlockGPGUser string

var unlockCmd = &cobra.Command{
	Use:   "unlock <repo>",
	Short: "Decrypt a sealed repository's working tree",
	Long: `Unlock the named sealed repository with the configured crypto mode.

Unlocking is idempotent. With --add-gpg-user the given GPG fingerprint
is additionally granted access to the repository's encrypted content
(git-crypt mode only).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		repo, ok := cfg.RepoByName(args[0])
		if !ok {
			fail(fmt.Errorf("%w: unknown repository %q", errdefs.ErrConfig, args[0]))
		}
		if repo.Mode != config.ModeSealed {
			fail(fmt.Errorf("%w: repository %q is not sealed", errdefs.ErrPolicyViolation, repo.Name))
		}

		git := gitwrap.New(cliLogger())
		mode, err := cryptmode.For(cfg.Crypto.Mode, git)
		if err != nil {
			fail(fmt.Errorf("%w: %v", errdefs.ErrConfig, err))
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := mode.Unlock(ctx, repo.Path); err != nil {
			fail(err)
		}
		fmt.Printf("%s %s unlocked (%s)\n", ui.RenderPass("✓"), repo.Name, mode.Name())

		if unlockGPGUser != "" {
			gc, ok := mode.(*cryptmode.GitCrypt)
			if !ok {
				fail(fmt.Errorf("%w: --add-gpg-user requires crypto mode %q",
					errdefs.ErrConfig, cryptmode.ModeGitCrypt))
			}
			if err := gc.AddGPGUser(ctx, repo.Path, unlockGPGUser); err != nil {
				fail(err)
			}
			fmt.Printf("%s granted access to %s\n", ui.RenderPass("✓"), unlockGPGUser)
		}
	},
}

func init() {
	unlockCmd.Flags().StringVar(&unlockGPGUser, "add-gpg-user", "",
		"GPG fingerprint to grant access (git-crypt only)")
	rootCmd.AddCommand(unlockCmd)
}
