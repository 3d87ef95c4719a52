// Package am manages the mosaic shell configuration ("I am").
//
// Configuration is read from TOML files merged in precedence order
// (system < user < project < environment), with MOSAIC_* environment
// variables taking priority over any file.
package am

import "fmt"

// Config represents the core mosaic configuration
type Config struct {
	Registry  RegistryConfig  `mapstructure:"registry"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Manifest  ManifestConfig  `mapstructure:"manifest"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RegistryConfig configures the extension registry runtime
type RegistryConfig struct {
	// HostVersion is the semver the shell advertises to domains and
	// extensions that declare a host_version constraint. Empty means
	// "use the build version".
	HostVersion string `mapstructure:"host_version"`

	// DefaultActionTimeoutMS is the fallback action timeout applied when
	// a domain omits its own default. Must be > 0.
	DefaultActionTimeoutMS int `mapstructure:"default_action_timeout_ms"`

	// ExclusiveMount enforces at most one mounted extension per domain.
	ExclusiveMount bool `mapstructure:"exclusive_mount"`
}

// LifecycleConfig configures lifecycle stage execution
type LifecycleConfig struct {
	// LogFailures controls whether hook failures are logged in addition
	// to being routed to the registered lifecycle error handler.
	LogFailures bool `mapstructure:"log_failures"`
}

// ManifestConfig configures declarative composition manifests
type ManifestConfig struct {
	// Paths lists manifest files applied at shell startup, in order.
	Paths []string `mapstructure:"paths"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	JSON  bool   `mapstructure:"json"`
	Theme string `mapstructure:"theme"`
}

// Default values applied when the corresponding key is absent.
const (
	DefaultActionTimeoutMS = 5000
	DefaultLogTheme        = "everforest"

	// DefaultDirPermissions is used when creating the config directory
	DefaultDirPermissions = 0750
)

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Registry: {DefaultActionTimeoutMS: %d, ExclusiveMount: %t}, Manifests: %d}",
		c.Registry.DefaultActionTimeoutMS, c.Registry.ExclusiveMount, len(c.Manifest.Paths))
}
