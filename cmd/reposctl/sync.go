package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/cryptmode"
	"github.com/sealbridge/sealrepos/internal/daemon"
	"github.com/sealbridge/sealrepos/internal/engine"
	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
	"github.com/sealbridge/sealrepos/internal/scan"
	"github.com/sealbridge/sealrepos/internal/ui"
)

var syncAll bool

var syncCmd = &cobra.Command{
	Use:   "sync [repo]",
	Short: "Sync one repository now, or all of them with --all",
	Long: `Run one synchronization cycle outside the daemon.

With a repository name the named repository is synced directly. With
--all the full cycle runs under the daemon's lock, so it will not race
a running daemon.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if syncAll {
			if len(args) != 0 {
				fail(fmt.Errorf("%w: --all takes no repository name", errdefs.ErrConfig))
			}
			syncEverything()
			return
		}
		if len(args) != 1 {
			fail(fmt.Errorf("%w: a repository name (or --all) is required", errdefs.ErrConfig))
		}
		syncOne(args[0])
	},
}

func syncOne(name string) {
	cfg := loadConfig()
	repo, ok := cfg.RepoByName(name)
	if !ok {
		fail(fmt.Errorf("%w: unknown repository %q", errdefs.ErrConfig, name))
	}
	if repo.Mode == config.ModeNoSync {
		fail(fmt.Errorf("%w: repository %q is marked nosync", errdefs.ErrPolicyViolation, name))
	}

	git := gitwrap.New(cliLogger())
	scanner, err := scan.ForPolicy(cfg.Defaults.Scan.Enable, cfg.Defaults.Scan.Tool, cfg.Defaults.Scan.Config)
	if err != nil {
		fail(fmt.Errorf("%w: %v", errdefs.ErrConfig, err))
	}

	var crypt cryptmode.Mode
	if repo.Mode == config.ModeSealed {
		if crypt, err = cryptmode.For(cfg.Crypto.Mode, git); err != nil {
			fail(fmt.Errorf("%w: %v", errdefs.ErrConfig, err))
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := engine.New(repo, cfg.Defaults, git, scanner, crypt, cliLogger()).Sync(ctx)
	if err != nil {
		fail(err)
	}

	fmt.Printf("%s %s: branch=%s state=%s rebased=%t pushed=%t\n",
		ui.RenderPass("✓"), name, res.Branch, res.State, res.Rebased, res.Pushed)
}

func syncEverything() {
	logger, err := daemonLogger("sealreposd.log")
	if err != nil {
		fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	d := &daemon.Daemon{
		ConfigPath: configPath,
		Git:        gitwrap.New(cliLogger()),
		Logger:     logger,
		MaxCycles:  1,
	}
	if err := d.Run(ctx); err != nil {
		fail(err)
	}
	fmt.Printf("%s cycle complete\n", ui.RenderPass("✓"))
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every eligible repository")
	rootCmd.AddCommand(syncCmd)
}
