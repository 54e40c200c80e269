package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/pathdir"
)

// Lock file names under the state directory. The sync daemon and the
// bridge daemon contend on separate locks; they may run side by side.
const (
	SyncLockName   = "sealreposd.lock"
	BridgeLockName = "sealbridge-bridge.lock"
)

// acquireLock takes the named advisory lock non-blocking. A held lock
// fails immediately with ErrLockHeld; a second daemon must never queue
// behind the first. The returned release function is safe to call once.
func acquireLock(name string) (func(), error) {
	dir, err := pathdir.StateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	fl := flock.New(filepath.Join(dir, name))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held", errdefs.ErrLockHeld, name)
	}
	return func() { fl.Unlock() }, nil
}
