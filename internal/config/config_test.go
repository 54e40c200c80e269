package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sealbridge/sealrepos/internal/errdefs"
)

// writeConfig drops a policy.yaml into a temp dir and points HOME at the
// same dir so the home guard accepts the repo paths it references.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	path := filepath.Join(home, "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
version: 1
profile: home
repos:
  - name: notes
    path: ~/repos/notes
    personal: git@personal:me/notes.git
    relay: git@relay:me/notes.git
    mode: sealed
  - name: dotfiles
    path: ~/repos/dotfiles
    personal: git@personal:me/dotfiles.git
    mode: plain
  - name: archive
    path: ~/repos/archive
    personal: git@personal:me/archive.git
    mode: nosync
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Profile != ProfileHome {
		t.Errorf("Profile = %q, want %q", cfg.Profile, ProfileHome)
	}
	if cfg.Defaults.IntervalSec != 60 {
		t.Errorf("IntervalSec = %d, want 60", cfg.Defaults.IntervalSec)
	}
	if cfg.Defaults.Jitter != 0.2 {
		t.Errorf("Jitter = %g, want 0.2", cfg.Defaults.Jitter)
	}
	if len(cfg.Defaults.ProtectedBranches) != 2 ||
		cfg.Defaults.ProtectedBranches[0] != "main" ||
		cfg.Defaults.ProtectedBranches[1] != "master" {
		t.Errorf("ProtectedBranches = %v, want [main master]", cfg.Defaults.ProtectedBranches)
	}
	if cfg.Defaults.Direction != DirectionBidirectional {
		t.Errorf("Direction = %q, want bidirectional", cfg.Defaults.Direction)
	}
	if !cfg.Defaults.Scan.Enable || cfg.Defaults.Scan.Tool != "gitleaks" {
		t.Errorf("Scan = %+v, want enabled gitleaks", cfg.Defaults.Scan)
	}
	if cfg.Crypto.Mode != "git-crypt" {
		t.Errorf("Crypto.Mode = %q, want git-crypt", cfg.Crypto.Mode)
	}
}

func TestLoadExpandsRepoPaths(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	notes, ok := cfg.RepoByName("notes")
	if !ok {
		t.Fatal("RepoByName(notes) not found")
	}
	if !filepath.IsAbs(notes.Path) {
		t.Errorf("Path = %q, want absolute", notes.Path)
	}
	want := filepath.Join(os.Getenv("HOME"), "repos", "notes")
	if notes.Path != want {
		t.Errorf("Path = %q, want %q", notes.Path, want)
	}
}

func TestLoadRepoOverrides(t *testing.T) {
	path := writeConfig(t, `
version: 1
profile: work
defaults:
  direction: bidirectional
  protected_branches: [main]
repos:
  - name: notes
    path: ~/repos/notes
    personal: git@personal:me/notes.git
    relay: git@relay:me/notes.git
    mode: sealed
    direction: home-to-work
    protected_branches: [main, release]
    paths:
      include: ["*.md"]
      exclude: ["drafts/**"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	repo, _ := cfg.RepoByName("notes")

	if got := repo.EffectiveDirection(cfg.Defaults); got != DirectionHomeToWork {
		t.Errorf("EffectiveDirection = %q, want home-to-work", got)
	}
	if got := repo.EffectiveProtectedBranches(cfg.Defaults); len(got) != 2 || got[1] != "release" {
		t.Errorf("EffectiveProtectedBranches = %v, want [main release]", got)
	}
	pp := repo.EffectivePaths(cfg.Defaults)
	if len(pp.Include) != 1 || pp.Include[0] != "*.md" {
		t.Errorf("EffectivePaths.Include = %v, want [*.md]", pp.Include)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"unsupported version", `
version: 2
profile: home
repos: []
`},
		{"bad profile", `
version: 1
profile: office
repos: []
`},
		{"sealed without relay", `
version: 1
profile: home
repos:
  - name: notes
    path: ~/repos/notes
    personal: git@personal:me/notes.git
    mode: sealed
`},
		{"duplicate names", `
version: 1
profile: home
repos:
  - name: notes
    path: ~/repos/a
    personal: u
    mode: plain
  - name: notes
    path: ~/repos/b
    personal: u
    mode: plain
`},
		{"invalid mode", `
version: 1
profile: home
repos:
  - name: notes
    path: ~/repos/notes
    personal: u
    mode: mirrored
`},
		{"missing personal", `
version: 1
profile: home
repos:
  - name: notes
    path: ~/repos/notes
    mode: plain
`},
		{"bad jitter", `
version: 1
profile: home
defaults:
  jitter: 1.5
repos: []
`},
		{"path outside home", `
version: 1
profile: home
repos:
  - name: notes
    path: /opt/notes
    personal: u
    mode: plain
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.config)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !errors.Is(err, errdefs.ErrConfig) {
				t.Errorf("error %v should wrap ErrConfig", err)
			}
			if errdefs.ExitCode(err) != errdefs.ExitConfig {
				t.Errorf("ExitCode = %d, want %d", errdefs.ExitCode(err), errdefs.ExitConfig)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load(filepath.Join(os.Getenv("HOME"), "nope.yaml"))
	if !errors.Is(err, errdefs.ErrConfig) {
		t.Errorf("error %v should wrap ErrConfig", err)
	}
}

func TestSyncReposFiltersNoSync(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	repos := cfg.SyncRepos()
	if len(repos) != 2 {
		t.Fatalf("SyncRepos() returned %d repos, want 2", len(repos))
	}
	for _, r := range repos {
		if r.Mode == ModeNoSync {
			t.Errorf("nosync repo %q leaked into sync set", r.Name)
		}
	}
	if repos[0].Name != "notes" || repos[1].Name != "dotfiles" {
		t.Errorf("SyncRepos() order = %v, want declared order", []string{repos[0].Name, repos[1].Name})
	}
}

func TestSetProfile(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	if err := SetProfile(path, ProfileWork); err != nil {
		t.Fatalf("SetProfile() failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after SetProfile failed: %v", err)
	}
	if cfg.Profile != ProfileWork {
		t.Errorf("Profile = %q, want work", cfg.Profile)
	}
	// The rest of the document survives the rewrite.
	if _, ok := cfg.RepoByName("notes"); !ok {
		t.Error("repo list lost during profile rewrite")
	}
}

func TestSetProfileRejectsUnknown(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	err := SetProfile(path, "vacation")
	if !errors.Is(err, errdefs.ErrConfig) {
		t.Errorf("error %v should wrap ErrConfig", err)
	}
}

func TestEnvExpansionInPatterns(t *testing.T) {
	path := writeConfig(t, `
version: 1
profile: home
defaults:
  paths:
    exclude: ["${HOME}/workspace/**"]
repos: []
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	want := os.Getenv("HOME") + "/workspace/**"
	if len(cfg.Defaults.Paths.Exclude) == 0 || cfg.Defaults.Paths.Exclude[0] != want {
		t.Errorf("Exclude = %v, want first pattern %q", cfg.Defaults.Paths.Exclude, want)
	}
}
