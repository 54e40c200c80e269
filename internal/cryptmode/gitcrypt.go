package cryptmode

import (
	"context"
	"fmt"

	"github.com/sealbridge/sealrepos/internal/gitwrap"
)

// GitCrypt drives the git-crypt extension. Unlocking is an explicit
// action that decrypts the working tree with the user's GPG key.
type GitCrypt struct {
	git *gitwrap.Runner
}

// Name implements Mode.
func (g *GitCrypt) Name() string { return ModeGitCrypt }

// Unlock runs `git crypt unlock`. Failure almost always means missing
// key material, so the error carries that hint for the operator.
func (g *GitCrypt) Unlock(ctx context.Context, repoPath string) error {
	if _, err := g.git.Run(ctx, repoPath, "crypt", "unlock"); err != nil {
		return fmt.Errorf("unlocking git-crypt repository at %s "+
			"(is your GPG key configured for this repo?): %w", repoPath, err)
	}
	return nil
}

// IsUnlocked runs `git crypt status -e`, which exits zero only when the
// working tree holds no still-encrypted files. Any failure, including
// "not a git-crypt repo", reads as locked.
func (g *GitCrypt) IsUnlocked(ctx context.Context, repoPath string) bool {
	_, err := g.git.Run(ctx, repoPath, "crypt", "status", "-e")
	return err == nil
}

// AddGPGUser grants an additional GPG key access to the repository's
// encrypted content.
func (g *GitCrypt) AddGPGUser(ctx context.Context, repoPath, fingerprint string) error {
	if _, err := g.git.Run(ctx, repoPath, "crypt", "add-gpg-user", fingerprint); err != nil {
		return fmt.Errorf("adding GPG user %s: %w", fingerprint, err)
	}
	return nil
}
