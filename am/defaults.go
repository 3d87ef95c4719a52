package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Registry defaults
	v.SetDefault("registry.host_version", "")
	v.SetDefault("registry.default_action_timeout_ms", DefaultActionTimeoutMS)
	v.SetDefault("registry.exclusive_mount", true)

	// Lifecycle defaults
	v.SetDefault("lifecycle.log_failures", true)

	// Manifest defaults
	v.SetDefault("manifest.paths", []string{})

	// Logging defaults
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.theme", DefaultLogTheme)
}

// BindSensitiveEnvVars explicitly binds configuration to environment variables
// that should work without the MOSAIC_ auto-env machinery.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("registry.host_version", "MOSAIC_HOST_VERSION")
	v.BindEnv("logging.json", "MOSAIC_LOG_JSON")
}
