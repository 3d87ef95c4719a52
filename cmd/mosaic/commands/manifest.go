package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/mosaic/am"
	"github.com/teranos/mosaic/extension"
	"github.com/teranos/mosaic/logger"
	"github.com/teranos/mosaic/manifest"
	"github.com/teranos/mosaic/typesys"
	"github.com/teranos/mosaic/version"
)

// ManifestCmd represents the manifest command
var ManifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Validate and apply composition manifests",
	Long: `manifest — Work with declarative composition manifests

A manifest declares the domains, entries, and extensions a host
registers at startup, in TOML or YAML.

Examples:
  mosaic manifest validate app.toml   # Check references without registering
  mosaic manifest apply app.toml      # Register against a fresh registry`,
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate manifest files",
	Long:  "Parse each manifest and check its internal references without registering anything.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runManifestValidate,
}

var manifestApplyCmd = &cobra.Command{
	Use:   "apply <file>...",
	Short: "Apply manifests against a fresh registry",
	Long: `Build a registry from the current configuration, apply each manifest
in order, and report the resulting domains. This runs the full
registration pipeline, so contract and schema violations surface the
same way they would in a host.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runManifestApply,
}

func init() {
	ManifestCmd.AddCommand(manifestValidateCmd)
	ManifestCmd.AddCommand(manifestApplyCmd)
}

func runManifestValidate(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		m, err := manifest.Load(path)
		if err != nil {
			return err
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("✓ %s: %d domain(s), %d entry(ies), %d extension(s)\n",
			path, len(m.Domains), len(m.Entries), len(m.Extensions))
	}
	return nil
}

func runManifestApply(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	hostVersion := cfg.Registry.HostVersion
	if hostVersion == "" {
		hostVersion = version.Host()
	}

	port := typesys.New()
	registry := extension.New(extension.Config{
		HostVersion:          hostVersion,
		DefaultActionTimeout: time.Duration(cfg.Registry.DefaultActionTimeoutMS) * time.Millisecond,
		ExclusiveMount:       cfg.Registry.ExclusiveMount,
	}, port, logger.Logger)

	ctx := cmd.Context()
	for _, path := range args {
		m, err := manifest.Load(path)
		if err != nil {
			return err
		}
		if err := m.Apply(ctx, port, registry); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	for _, domainID := range registry.DomainIDs() {
		state, ok := registry.DomainState(domainID)
		if !ok {
			continue
		}
		fmt.Printf("domain %s: %d extension(s)\n", domainID, len(state.Extensions))
		for _, extensionID := range state.Extensions {
			fmt.Printf("  - %s\n", extensionID)
		}
	}
	return nil
}
