package am

import (
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/teranos/mosaic/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Timeout fallback must stay positive; domains may override per-domain
	if c.Registry.DefaultActionTimeoutMS <= 0 {
		return errors.Newf("registry.default_action_timeout_ms must be > 0, got %d", c.Registry.DefaultActionTimeoutMS)
	}

	// Host version: empty means "use build version", otherwise must parse as semver
	if c.Registry.HostVersion != "" {
		if _, err := semver.NewVersion(c.Registry.HostVersion); err != nil {
			return errors.Wrapf(err, "registry.host_version %q is not valid semver", c.Registry.HostVersion)
		}
	}

	// Manifest paths must exist when configured; a missing manifest at
	// startup is a deployment error, not something to discover at mount time
	for _, path := range c.Manifest.Paths {
		if path == "" {
			return errors.New("manifest.paths entries cannot be empty")
		}
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(err, "manifest path %q is not readable", path)
		}
	}

	return nil
}
