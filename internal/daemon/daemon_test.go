package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
)

// setupDirs isolates HOME and the XDG state dir so locks and config
// resolution never touch the real user environment.
func setupDirs(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	return home
}

func writePolicy(t *testing.T, home, content string) string {
	t.Helper()
	path := filepath.Join(home, "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing policy: %v", err)
	}
	return path
}

func TestJitteredInterval(t *testing.T) {
	if got := jitteredInterval(60, 0); got != 60*time.Second {
		t.Errorf("jitteredInterval(60, 0) = %s, want 60s", got)
	}

	lo, hi := 48*time.Second, 72*time.Second
	for i := 0; i < 100; i++ {
		got := jitteredInterval(60, 0.2)
		if got < lo || got > hi {
			t.Fatalf("jitteredInterval(60, 0.2) = %s, want within [%s, %s]", got, lo, hi)
		}
	}
}

func TestAcquireLockContention(t *testing.T) {
	setupDirs(t)

	release, err := acquireLock(SyncLockName)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := acquireLock(SyncLockName); !errors.Is(err, errdefs.ErrLockHeld) {
		t.Errorf("second acquire error = %v, want ErrLockHeld", err)
	}

	release()
	release2, err := acquireLock(SyncLockName)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestLocksAreIndependent(t *testing.T) {
	setupDirs(t)

	r1, err := acquireLock(SyncLockName)
	if err != nil {
		t.Fatalf("sync lock: %v", err)
	}
	defer r1()

	r2, err := acquireLock(BridgeLockName)
	if err != nil {
		t.Fatalf("bridge lock should not contend with sync lock: %v", err)
	}
	r2()
}

func TestDaemonSingleCycleEmptyConfig(t *testing.T) {
	home := setupDirs(t)
	path := writePolicy(t, home, `
version: 1
profile: home
repos: []
`)

	d := &Daemon{ConfigPath: path, Git: gitwrap.New(nil), MaxCycles: 1}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
}

func TestDaemonFailsFastOnHeldLock(t *testing.T) {
	home := setupDirs(t)
	path := writePolicy(t, home, `
version: 1
profile: home
repos: []
`)

	release, err := acquireLock(SyncLockName)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	d := &Daemon{ConfigPath: path, Git: gitwrap.New(nil), MaxCycles: 1}
	err = d.Run(context.Background())
	if !errors.Is(err, errdefs.ErrLockHeld) {
		t.Errorf("Run() error = %v, want ErrLockHeld", err)
	}
	if errdefs.ExitCode(err) != errdefs.ExitLockContended {
		t.Errorf("ExitCode = %d, want %d", errdefs.ExitCode(err), errdefs.ExitLockContended)
	}
}

func TestDaemonBadConfigIsFatal(t *testing.T) {
	home := setupDirs(t)
	path := writePolicy(t, home, `
version: 99
profile: home
repos: []
`)

	d := &Daemon{ConfigPath: path, Git: gitwrap.New(nil), MaxCycles: 1}
	if err := d.Run(context.Background()); !errors.Is(err, errdefs.ErrConfig) {
		t.Errorf("Run() error = %v, want ErrConfig", err)
	}
}

func TestBridgeDaemonRequiresHomeProfile(t *testing.T) {
	home := setupDirs(t)
	path := writePolicy(t, home, `
version: 1
profile: work
repos: []
`)

	b := &BridgeDaemon{ConfigPath: path, Git: gitwrap.New(nil), MaxCycles: 1}
	err := b.Run(context.Background())
	if !errors.Is(err, errdefs.ErrPolicyViolation) {
		t.Errorf("Run() error = %v, want ErrPolicyViolation", err)
	}
}

func TestWatchConfigSignalsOnWrite(t *testing.T) {
	home := setupDirs(t)
	path := writePolicy(t, home, "version: 1\nprofile: home\nrepos: []\n")

	changed, closeWatch, err := watchConfig(path, nil)
	if err != nil {
		t.Fatalf("watchConfig() failed: %v", err)
	}
	defer closeWatch()

	if err := os.WriteFile(path, []byte("version: 1\nprofile: work\nrepos: []\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after config rewrite")
	}
}
