package cryptmode

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/gitwrap"
)

func setupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init failed: %v\n%s", err, out)
	}
	return dir
}

func TestForResolvesModes(t *testing.T) {
	git := gitwrap.New(nil)

	tests := []struct {
		mode    string
		wantErr bool
	}{
		{ModeGitCrypt, false},
		{ModeSopsAge, false},
		{"vault", true},
		{"", true},
	}

	for _, tt := range tests {
		m, err := For(tt.mode, git)
		if tt.wantErr {
			if err == nil {
				t.Errorf("For(%q) should fail", tt.mode)
			}
			continue
		}
		if err != nil {
			t.Errorf("For(%q) failed: %v", tt.mode, err)
			continue
		}
		if m.Name() != tt.mode {
			t.Errorf("For(%q).Name() = %q", tt.mode, m.Name())
		}
	}
}

func TestGitCryptFailedUnlock(t *testing.T) {
	dir := setupTestRepo(t)
	git := gitwrap.New(nil)
	gc := &GitCrypt{git: git}
	ctx := context.Background()

	// A plain repository has no git-crypt metadata: the unlock attempt
	// fails and the repository reads as locked afterwards.
	if err := gc.Unlock(ctx, dir); err == nil {
		t.Error("Unlock() on a non-git-crypt repo should fail")
	}
	if gc.IsUnlocked(ctx, dir) {
		t.Error("IsUnlocked() = true after failed unlock, want false")
	}
}

func TestSopsAgeVerification(t *testing.T) {
	dir := setupTestRepo(t)
	git := gitwrap.New(nil)
	sa := &SopsAge{git: git}
	ctx := context.Background()

	// Nothing configured yet. The failure is a configuration matter and
	// must exit through the taxonomy, same as any other config error.
	if sa.IsUnlocked(ctx, dir) {
		t.Error("IsUnlocked() = true without sops config, want false")
	}
	err := sa.Unlock(ctx, dir)
	if err == nil {
		t.Fatal("Unlock() should report incomplete setup")
	}
	if !errors.Is(err, errdefs.ErrConfig) {
		t.Errorf("Unlock() error = %v, want ErrConfig", err)
	}
	if got := errdefs.ExitCode(err); got != errdefs.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", got, errdefs.ExitConfig)
	}

	// Configure .sops.yaml plus the smudge filter.
	if err := os.WriteFile(filepath.Join(dir, ".sops.yaml"), []byte("creation_rules: []\n"), 0o644); err != nil {
		t.Fatalf("writing .sops.yaml: %v", err)
	}
	cmd := exec.Command("git", "config", "filter.sops.smudge", "sops --decrypt /dev/stdin")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git config failed: %v\n%s", err, out)
	}

	if !sa.IsUnlocked(ctx, dir) {
		t.Error("IsUnlocked() = false with full setup, want true")
	}
	// Unlock is verification only and idempotent.
	if err := sa.Unlock(ctx, dir); err != nil {
		t.Errorf("Unlock() failed on configured repo: %v", err)
	}
	if err := sa.Unlock(ctx, dir); err != nil {
		t.Errorf("second Unlock() failed: %v", err)
	}
}
