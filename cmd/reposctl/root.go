package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/pathdir"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "reposctl",
	Short: "Synchronize git repositories between personal and work machines",
	Long: `reposctl keeps a set of git repositories mirrored between a plaintext
personal side and an encryption-gated work side.

Repositories are declared in policy.yaml. Each sync cycle classifies a
repository as up-to-date, ahead, behind, or diverged against its remote
and rebases, scans for secrets, and pushes as the classification and
the configured policy allow.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to policy.yaml (default: XDG config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log every git invocation to stderr")
}

// fail prints the error and exits with its family's code.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(errdefs.ExitCode(err))
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fail(err)
	}
	return cfg
}

// cliLogger returns a stderr logger when --verbose is set, nil otherwise.
func cliLogger() *log.Logger {
	if !verbose {
		return nil
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// daemonLogger tees daemon output to stderr and a rotated log file in
// the state directory.
func daemonLogger(filename string) (*log.Logger, error) {
	dir, err := pathdir.StateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, filename),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return log.New(io.MultiWriter(os.Stderr, rotated), "", log.LstdFlags), nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
