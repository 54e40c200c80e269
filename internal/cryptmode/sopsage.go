package cryptmode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
)

// SopsAge covers repositories encrypted with sops using the age backend.
// Decryption happens transparently through a git content filter, so
// Unlock only verifies the setup rather than performing any action.
type SopsAge struct {
	git *gitwrap.Runner
}

// Name implements Mode.
func (s *SopsAge) Name() string { return ModeSopsAge }

// Unlock verifies the sops-age configuration. There is nothing to
// decrypt explicitly; the git filter handles content on checkout.
func (s *SopsAge) Unlock(ctx context.Context, repoPath string) error {
	if !s.hasSopsConfig(repoPath) {
		return s.verifyErr(repoPath, "no .sops.yaml found")
	}
	if !s.hasFilterConfig(ctx, repoPath) {
		return s.verifyErr(repoPath, "git sops filter not configured")
	}
	return nil
}

// IsUnlocked reports whether the sops filter setup is in place. With a
// working filter the checked-out tree is always plaintext.
func (s *SopsAge) IsUnlocked(ctx context.Context, repoPath string) bool {
	return s.hasSopsConfig(repoPath) && s.hasFilterConfig(ctx, repoPath)
}

func (s *SopsAge) hasSopsConfig(repoPath string) bool {
	_, err := os.Stat(filepath.Join(repoPath, ".sops.yaml"))
	return err == nil
}

func (s *SopsAge) hasFilterConfig(ctx context.Context, repoPath string) bool {
	out, err := s.git.Run(ctx, repoPath, "config", "--get", "filter.sops.smudge")
	return err == nil && out != ""
}

// verifyErr classifies an incomplete sops-age setup as a configuration
// error, so it exits through the taxonomy like every other failure.
func (s *SopsAge) verifyErr(repoPath, reason string) error {
	return fmt.Errorf("%w: sops-age setup at %s is incomplete: %s",
		errdefs.ErrConfig, repoPath, reason)
}
