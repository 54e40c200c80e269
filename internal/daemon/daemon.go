// Package daemon runs the unattended loops: the sync daemon that cycles
// the engine over every configured repository, and the bridge daemon
// that cycles the two-clone mirror for sealed repositories.
//
// Both loops hold a host-wide advisory lock for their lifetime, reload
// the configuration at the top of every cycle, and sleep a jittered
// interval between cycles. An edit to the configuration file cuts the
// sleep short so policy changes apply on the next cycle, not the one
// after.
package daemon

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sealbridge/sealrepos/internal/bridge"
	"github.com/sealbridge/sealrepos/internal/config"
	"github.com/sealbridge/sealrepos/internal/cryptmode"
	"github.com/sealbridge/sealrepos/internal/engine"
	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
	"github.com/sealbridge/sealrepos/internal/pathdir"
	"github.com/sealbridge/sealrepos/internal/scan"
)

// Daemon is the periodic sync loop. Construct, then call Run once.
type Daemon struct {
	// ConfigPath locates policy.yaml; empty means the XDG default.
	ConfigPath string

	Git    *gitwrap.Runner
	Logger *log.Logger

	// MaxCycles stops the loop after that many cycles. Zero means run
	// until the context is canceled. Used by tests and `sync --all`.
	MaxCycles int
}

// Run holds the sync lock and cycles until ctx is canceled. Per-repo
// failures are logged and isolated; only configuration failures and
// cancellation end the loop.
func (d *Daemon) Run(ctx context.Context) error {
	release, err := acquireLock(SyncLockName)
	if err != nil {
		return err
	}
	defer release()

	return d.loop(ctx, d.cycle)
}

// cycle loads a fresh configuration and syncs every eligible repository
// in declared order.
func (d *Daemon) cycle(ctx context.Context) (config.Defaults, error) {
	cfg, err := config.Load(d.ConfigPath)
	if err != nil {
		return config.Defaults{}, err
	}

	scanner, err := scan.ForPolicy(cfg.Defaults.Scan.Enable, cfg.Defaults.Scan.Tool, cfg.Defaults.Scan.Config)
	if err != nil {
		return cfg.Defaults, fmt.Errorf("%w: %v", errdefs.ErrConfig, err)
	}

	for _, repo := range cfg.SyncRepos() {
		if ctx.Err() != nil {
			return cfg.Defaults, ctx.Err()
		}

		var crypt cryptmode.Mode
		if repo.Mode == config.ModeSealed {
			crypt, err = cryptmode.For(cfg.Crypto.Mode, d.Git)
			if err != nil {
				return cfg.Defaults, fmt.Errorf("%w: %v", errdefs.ErrConfig, err)
			}
		}

		res, err := engine.New(repo, cfg.Defaults, d.Git, scanner, crypt, d.Logger).Sync(ctx)
		if err != nil {
			d.logf("repo=%s sync failed: %v", repo.Name, err)
			continue
		}
		d.logf("repo=%s branch=%s state=%s rebased=%t pushed=%t",
			repo.Name, res.Branch, res.State, res.Rebased, res.Pushed)
	}
	return cfg.Defaults, nil
}

// loop drives cycles separated by jittered sleeps, waking early when
// the configuration file changes.
func (d *Daemon) loop(ctx context.Context, cycle func(context.Context) (config.Defaults, error)) error {
	changed, closeWatch, err := watchConfig(d.ConfigPath, d.Logger)
	if err != nil {
		return err
	}
	defer closeWatch()

	for n := 0; ; n++ {
		defaults, err := cycle(ctx)
		if err != nil {
			return err
		}
		if d.MaxCycles > 0 && n+1 >= d.MaxCycles {
			return nil
		}

		interval := jitteredInterval(defaults.IntervalSec, defaults.Jitter)
		d.logf("cycle complete, sleeping %s", interval.Round(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			d.logf("configuration changed, starting next cycle")
		case <-time.After(interval):
		}
	}
}

func (d *Daemon) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// BridgeDaemon is the periodic bridge loop for sealed repositories. It
// only runs on the home profile, where both remotes are reachable in
// plaintext.
type BridgeDaemon struct {
	// ConfigPath locates policy.yaml; empty means the XDG default.
	ConfigPath string

	// CloneDir overrides the directory for the working clones; empty
	// means <data dir>/bridge_clones.
	CloneDir string

	Git    *gitwrap.Runner
	Logger *log.Logger

	// MaxCycles stops the loop after that many cycles; zero means run
	// until the context is canceled.
	MaxCycles int
}

// Run holds the bridge lock and cycles until ctx is canceled.
func (b *BridgeDaemon) Run(ctx context.Context) error {
	release, err := acquireLock(BridgeLockName)
	if err != nil {
		return err
	}
	defer release()

	d := &Daemon{Logger: b.Logger, MaxCycles: b.MaxCycles, ConfigPath: b.ConfigPath}
	return d.loop(ctx, b.cycle)
}

func (b *BridgeDaemon) cycle(ctx context.Context) (config.Defaults, error) {
	cfg, err := config.Load(b.ConfigPath)
	if err != nil {
		return config.Defaults{}, err
	}
	if cfg.Profile != config.ProfileHome {
		return cfg.Defaults, fmt.Errorf("%w: bridge requires the %q profile, configuration is %q",
			errdefs.ErrPolicyViolation, config.ProfileHome, cfg.Profile)
	}

	cloneDir := b.CloneDir
	if cloneDir == "" {
		data, err := pathdir.DataDir()
		if err != nil {
			return cfg.Defaults, err
		}
		cloneDir = filepath.Join(data, "bridge_clones")
	}

	for _, repo := range cfg.SyncRepos() {
		if ctx.Err() != nil {
			return cfg.Defaults, ctx.Err()
		}
		if bridge.Validate(repo) != nil {
			continue
		}

		br, err := bridge.New(repo, cfg.Defaults, cloneDir, b.Git, b.Logger)
		if err != nil {
			b.logf("repo=%s bridge setup failed: %v", repo.Name, err)
			continue
		}
		if err := br.Run(ctx); err != nil {
			b.logf("repo=%s bridge cycle failed: %v", repo.Name, err)
		}
	}
	return cfg.Defaults, nil
}

func (b *BridgeDaemon) logf(format string, args ...any) {
	if b.Logger != nil {
		b.Logger.Printf(format, args...)
	}
}

// jitteredInterval spreads daemon wakeups across hosts: the sleep is
// interval plus or minus interval*jitter, uniformly.
func jitteredInterval(intervalSec int, jitter float64) time.Duration {
	base := time.Duration(intervalSec) * time.Second
	if jitter <= 0 {
		return base
	}
	spread := (rand.Float64()*2 - 1) * jitter
	return time.Duration(float64(base) * (1 + spread))
}

// watchConfig signals on the returned channel when the configuration
// file is written, created, or replaced. Editors that rename over the
// file still trigger because the watch is on the parent directory.
func watchConfig(path string, logger *log.Logger) (<-chan struct{}, func(), error) {
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, nil, err
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	changed := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Printf("config watcher: %v", err)
				}
			}
		}
	}()

	return changed, func() { w.Close() }, nil
}
