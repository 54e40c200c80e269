// Package cryptmode implements the encryption strategies guarding the
// relay side of a sealed repository.
//
// The supported set is closed: git-crypt and sops-age, selected once at
// configuration-load time via For. Unlock is idempotent for both modes;
// unlocking an already-unlocked repository is not an error.
package cryptmode

import (
	"context"
	"fmt"

	"github.com/sealbridge/sealrepos/internal/gitwrap"
)

// Mode names accepted in the crypto.mode configuration field.
const (
	ModeGitCrypt = "git-crypt"
	ModeSopsAge  = "sops-age"
)

// Mode is an encryption strategy for the relay side.
//
// The sync engine confirms IsUnlocked before trusting any file content
// comparison on a sealed repository, but never calls Unlock itself: the
// unlock is an explicit operator action invoked by the CLI or bridge
// before sync begins.
type Mode interface {
	// Name returns the configuration name of this mode.
	Name() string

	// Unlock makes plaintext content available in the working tree.
	// Idempotent.
	Unlock(ctx context.Context, repoPath string) error

	// IsUnlocked reports whether plaintext content is currently
	// available at repoPath.
	IsUnlocked(ctx context.Context, repoPath string) bool
}

// For resolves a configured mode name to its implementation. The set is
// fixed; unknown names are configuration errors surfaced by the caller.
func For(mode string, git *gitwrap.Runner) (Mode, error) {
	switch mode {
	case ModeGitCrypt:
		return &GitCrypt{git: git}, nil
	case ModeSopsAge:
		return &SopsAge{git: git}, nil
	default:
		return nil, fmt.Errorf("unknown crypto mode %q (supported: %s, %s)",
			mode, ModeGitCrypt, ModeSopsAge)
	}
}
