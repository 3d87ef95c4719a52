package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultActionTimeoutMS, cfg.Registry.DefaultActionTimeoutMS)
	assert.True(t, cfg.Registry.ExclusiveMount)
	assert.True(t, cfg.Lifecycle.LogFailures)
	assert.Empty(t, cfg.Manifest.Paths)
	assert.Equal(t, DefaultLogTheme, cfg.Logging.Theme)
	assert.False(t, cfg.Logging.JSON)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mosaic.toml")
	content := `
[registry]
default_action_timeout_ms = 2500
exclusive_mount = false
host_version = "1.2.3"

[logging]
json = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2500, cfg.Registry.DefaultActionTimeoutMS)
	assert.False(t, cfg.Registry.ExclusiveMount)
	assert.Equal(t, "1.2.3", cfg.Registry.HostVersion)
	assert.True(t, cfg.Logging.JSON)
	// Untouched sections keep defaults
	assert.True(t, cfg.Lifecycle.LogFailures)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		cfg, err := LoadWithViper(v)
		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero timeout", func(t *testing.T) {
		cfg := &Config{}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_action_timeout_ms")
	})

	t.Run("bad host version", func(t *testing.T) {
		cfg := &Config{
			Registry: RegistryConfig{DefaultActionTimeoutMS: 1000, HostVersion: "not-semver"},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "host_version")
	})

	t.Run("missing manifest path", func(t *testing.T) {
		cfg := &Config{
			Registry: RegistryConfig{DefaultActionTimeoutMS: 1000},
			Manifest: ManifestConfig{Paths: []string{"/nonexistent/shell.toml"}},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "manifest path")
	})
}

func TestSetNested(t *testing.T) {
	doc := make(map[string]interface{})
	setNested(doc, "registry.default_action_timeout_ms", 1234)
	setNested(doc, "registry.exclusive_mount", false)
	setNested(doc, "logging.json", true)

	registry, ok := doc["registry"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1234, registry["default_action_timeout_ms"])
	assert.Equal(t, false, registry["exclusive_mount"])

	logging, ok := doc["logging"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, logging["json"])
}

func TestSplitKey(t *testing.T) {
	assert.Equal(t, []string{"a"}, splitKey("a"))
	assert.Equal(t, []string{"a", "b", "c"}, splitKey("a.b.c"))
}
