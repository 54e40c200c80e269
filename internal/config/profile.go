package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sealbridge/sealrepos/internal/errdefs"
	"github.com/sealbridge/sealrepos/internal/fsutil"
)

// SetProfile rewrites the profile field of the configuration file in
// place, leaving every other key as the user wrote it. The write is
// atomic so a daemon reloading mid-edit never sees a torn file.
func SetProfile(path, profile string) error {
	if profile != ProfileHome && profile != ProfileWork {
		return fmt.Errorf("%w: profile must be %q or %q, got %q",
			errdefs.ErrConfig, ProfileHome, ProfileWork, profile)
	}
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return fmt.Errorf("%w: %v", errdefs.ErrConfig, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", errdefs.ErrConfig, path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", errdefs.ErrConfig, path, err)
	}
	doc["profile"] = profile

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", errdefs.ErrConfig, path, err)
	}

	if err := fsutil.AtomicWrite(path, out); err != nil {
		return fmt.Errorf("%w: writing %s: %v", errdefs.ErrConfig, path, err)
	}
	return nil
}
