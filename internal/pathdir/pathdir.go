// Package pathdir resolves the XDG base directories used by sealrepos
// and provides path expansion helpers.
//
// All durable artifacts live under the user's home directory:
//
//	config:  $XDG_CONFIG_HOME/sealbridge  (policy.yaml)
//	data:    $XDG_DATA_HOME/sealbridge    (bridge working clones)
//	state:   $XDG_STATE_HOME/sealbridge   (lock files, daemon logs)
package pathdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sealbridge/sealrepos/internal/errdefs"
)

const appDir = "sealbridge"

// ConfigDir returns the directory holding policy.yaml.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// DataDir returns the directory holding the bridge working clones.
func DataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving data dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", appDir), nil
}

// StateDir returns the directory holding lock files and daemon logs.
func StateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving state dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", appDir), nil
}

// Expand expands environment variables and a leading ~ in a path and
// returns the cleaned absolute form.
func Expand(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %q: %w", path, err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// EnsureHomeGuard returns a policy violation if path resolves outside
// the user's home directory. sealrepos never operates outside HOME.
func EnsureHomeGuard(path string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home dir: %w", err)
	}

	resolved, err := Expand(path)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(home, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: path %q is outside home directory %q",
			errdefs.ErrPolicyViolation, resolved, home)
	}
	return nil
}
