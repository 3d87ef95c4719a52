package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/mosaic/cmd/mosaic/commands"
	"github.com/teranos/mosaic/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Mosaic - UI extension runtime",
	Long: `Mosaic - Runtime composition of independently built UI modules.

Mosaic hosts extension points (domains), validates and registers
extensions against them, loads and mounts their modules, and routes
actions between host and modules.

Available commands:
  am        - Manage mosaic core configuration ("I am")
  manifest  - Validate and apply composition manifests
  version   - Show version information

Examples:
  mosaic am show                   # Show current configuration
  mosaic am get registry.host_version
  mosaic manifest validate app.toml
  mosaic manifest apply app.toml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() != "show" {
			if err := logger.Initialize(false); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.ManifestCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
