// Package config loads and validates the policy.yaml configuration file.
//
// The file lives at $XDG_CONFIG_HOME/sealbridge/policy.yaml unless an
// explicit path is given. Configuration is immutable for a run: the
// daemon reloads it at the top of every cycle so policy edits take
// effect without a restart, and each reload produces fresh descriptors.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/pathdir"
)

// Repository modes.
const (
	ModeSealed = "sealed" // must stay encrypted on the relay side
	ModePlain  = "plain"  // no encryption required
	ModeNoSync = "nosync" // excluded from automated sync entirely
)

// Sync directions.
const (
	DirectionBidirectional = "bidirectional"
	DirectionHomeToWork    = "home-to-work"
	DirectionWorkToHome    = "work-to-home"
)

// Profiles.
const (
	ProfileHome = "home"
	ProfileWork = "work"
)

// PushPolicy controls how pushes may rewrite remote history.
type PushPolicy struct {
	AllowForceWithLease bool `mapstructure:"allow_force_with_lease"`
}

// PRPolicy configures the pull-request escalation for conflicted
// divergence.
type PRPolicy struct {
	Enable    bool     `mapstructure:"enable"`
	Reviewers []string `mapstructure:"reviewers"`
	Labels    []string `mapstructure:"labels"`
}

// ScanPolicy selects the secret scanner gating pushes.
type ScanPolicy struct {
	Enable bool   `mapstructure:"enable"`
	Tool   string `mapstructure:"tool"`
	Config string `mapstructure:"config"`
}

// PathPolicy holds include/exclude glob patterns for mirroring and
// scanning scope.
type PathPolicy struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// Defaults are the process-wide fallbacks a repository's optional fields
// resolve to.
type Defaults struct {
	IntervalSec       int        `mapstructure:"interval_sec"`
	Jitter            float64    `mapstructure:"jitter"`
	ProtectedBranches []string   `mapstructure:"protected_branches"`
	Direction         string     `mapstructure:"direction"`
	Push              PushPolicy `mapstructure:"push"`
	PR                PRPolicy   `mapstructure:"pr"`
	Scan              ScanPolicy `mapstructure:"scan"`
	Paths             PathPolicy `mapstructure:"paths"`
}

// Crypto selects the encryption strategy for sealed repositories.
type Crypto struct {
	Mode            string   `mapstructure:"mode"`
	GPGFingerprints []string `mapstructure:"gpg_fprs"`
}

// Repo describes one repository under management. Constructed once per
// configuration load and never mutated by the engine.
type Repo struct {
	Name              string      `mapstructure:"name"`
	Path              string      `mapstructure:"path"`
	Personal          string      `mapstructure:"personal"`
	Relay             string      `mapstructure:"relay"`
	Mode              string      `mapstructure:"mode"`
	Direction         string      `mapstructure:"direction"`
	ProtectedBranches []string    `mapstructure:"protected_branches"`
	Paths             *PathPolicy `mapstructure:"paths"`
}

// Config is the validated top-level configuration.
type Config struct {
	Version  int      `mapstructure:"version"`
	Profile  string   `mapstructure:"profile"`
	Defaults Defaults `mapstructure:"defaults"`
	Crypto   Crypto   `mapstructure:"crypto"`
	Repos    []Repo   `mapstructure:"repos"`
}

// supportedVersion is the only policy.yaml schema version this build
// understands.
const supportedVersion = 1

// DefaultPath returns the XDG location of policy.yaml.
func DefaultPath() (string, error) {
	dir, err := pathdir.ConfigDir()
	if err != nil {
		return "", err
	}
	return dir + string(os.PathSeparator) + "policy.yaml", nil
}

// Load reads, expands, and validates the configuration at path. An empty
// path resolves to DefaultPath. All failures wrap errdefs.ErrConfig and
// are fatal to the run: no repository is touched on a bad configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, fmt.Errorf("%w: %v", errdefs.ErrConfig, err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: configuration file not found at %s", errdefs.ErrConfig, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", errdefs.ErrConfig, path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", errdefs.ErrConfig, path, err)
	}

	if err := expand(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrConfig, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errdefs.ErrConfig, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.interval_sec", 60)
	v.SetDefault("defaults.jitter", 0.2)
	v.SetDefault("defaults.protected_branches", []string{"main", "master"})
	v.SetDefault("defaults.direction", DirectionBidirectional)
	v.SetDefault("defaults.pr.enable", true)
	v.SetDefault("defaults.pr.labels", []string{"sealbridge"})
	v.SetDefault("defaults.scan.enable", true)
	v.SetDefault("defaults.scan.tool", "gitleaks")
	v.SetDefault("defaults.paths.exclude", []string{
		"${HOME}/workspace/**",
		"**/.venv/**",
		"**/node_modules/**",
	})
	v.SetDefault("crypto.mode", "git-crypt")
}

// expand resolves environment variables and ~ in every path-carrying
// field before validation sees them.
func expand(cfg *Config) error {
	for i := range cfg.Repos {
		p, err := pathdir.Expand(cfg.Repos[i].Path)
		if err != nil {
			return fmt.Errorf("repo %q: %v", cfg.Repos[i].Name, err)
		}
		cfg.Repos[i].Path = p

		if cfg.Repos[i].Paths != nil {
			expandPatterns(cfg.Repos[i].Paths)
		}
	}
	expandPatterns(&cfg.Defaults.Paths)
	if cfg.Defaults.Scan.Config != "" {
		p, err := pathdir.Expand(cfg.Defaults.Scan.Config)
		if err != nil {
			return err
		}
		cfg.Defaults.Scan.Config = p
	}
	return nil
}

// expandPatterns expands env vars in glob patterns without making them
// absolute; relative patterns stay relative to each repository root.
func expandPatterns(pp *PathPolicy) {
	for i, p := range pp.Include {
		pp.Include[i] = os.ExpandEnv(p)
	}
	for i, p := range pp.Exclude {
		pp.Exclude[i] = os.ExpandEnv(p)
	}
}

func validate(cfg *Config) error {
	if cfg.Version != supportedVersion {
		return fmt.Errorf("unsupported config version %d (want %d)", cfg.Version, supportedVersion)
	}
	if cfg.Profile != ProfileHome && cfg.Profile != ProfileWork {
		return fmt.Errorf("profile must be %q or %q, got %q", ProfileHome, ProfileWork, cfg.Profile)
	}

	switch cfg.Defaults.Direction {
	case DirectionBidirectional, DirectionHomeToWork, DirectionWorkToHome:
	default:
		return fmt.Errorf("invalid defaults.direction %q", cfg.Defaults.Direction)
	}
	if cfg.Defaults.IntervalSec <= 0 {
		return fmt.Errorf("defaults.interval_sec must be positive, got %d", cfg.Defaults.IntervalSec)
	}
	if cfg.Defaults.Jitter < 0 || cfg.Defaults.Jitter >= 1 {
		return fmt.Errorf("defaults.jitter must be in [0, 1), got %g", cfg.Defaults.Jitter)
	}

	seen := make(map[string]bool, len(cfg.Repos))
	for _, r := range cfg.Repos {
		if r.Name == "" {
			return fmt.Errorf("repo with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate repo name %q", r.Name)
		}
		seen[r.Name] = true

		if r.Path == "" {
			return fmt.Errorf("repo %q: path is required", r.Name)
		}
		if err := pathdir.EnsureHomeGuard(r.Path); err != nil {
			return fmt.Errorf("repo %q: %v", r.Name, err)
		}
		if r.Personal == "" {
			return fmt.Errorf("repo %q: personal remote is required", r.Name)
		}

		switch r.Mode {
		case ModeSealed, ModePlain, ModeNoSync:
		default:
			return fmt.Errorf("repo %q: invalid mode %q", r.Name, r.Mode)
		}
		if r.Mode == ModeSealed && r.Relay == "" {
			return fmt.Errorf("repo %q: sealed repos need a relay remote", r.Name)
		}

		switch r.Direction {
		case "", DirectionBidirectional, DirectionHomeToWork, DirectionWorkToHome:
		default:
			return fmt.Errorf("repo %q: invalid direction %q", r.Name, r.Direction)
		}
	}
	return nil
}

// SyncRepos returns the repositories eligible for syncing, in declared
// order. nosync repositories are filtered out here, before any git state
// is computed.
func (c *Config) SyncRepos() []Repo {
	out := make([]Repo, 0, len(c.Repos))
	for _, r := range c.Repos {
		if r.Mode == ModeNoSync {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RepoByName returns the named repository descriptor, if configured.
func (c *Config) RepoByName(name string) (Repo, bool) {
	for _, r := range c.Repos {
		if r.Name == name {
			return r, true
		}
	}
	return Repo{}, false
}

// EffectiveDirection resolves the repository's direction override
// against the process-wide defaults.
func (r Repo) EffectiveDirection(d Defaults) string {
	if r.Direction != "" {
		return r.Direction
	}
	return d.Direction
}

// EffectiveProtectedBranches resolves the protected-branch override.
func (r Repo) EffectiveProtectedBranches(d Defaults) []string {
	if r.ProtectedBranches != nil {
		return r.ProtectedBranches
	}
	return d.ProtectedBranches
}

// EffectivePaths resolves the path-policy override.
func (r Repo) EffectivePaths(d Defaults) PathPolicy {
	if r.Paths != nil {
		return *r.Paths
	}
	return d.Paths
}
