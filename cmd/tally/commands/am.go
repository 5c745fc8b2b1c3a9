package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/tallybill/tally/am"
	"gopkg.in/yaml.v3"
)

// AmCmd represents the am (process configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage tally process configuration",
	Long: `am — Manage tally process configuration ("I am")

Display and manage tally process configuration settings.

Configuration sources (in order of precedence):
1. Environment variables (TALLY_* prefix)
2. Project config (./tally.toml, walking up parent directories)
3. User config (~/.tally/tally.toml)
4. System config (/etc/tally/config.toml)
5. Default values

Examples:
  tally am show                    # Show current configuration
  tally am show --format json      # Show configuration in JSON format
  tally am get database.path       # Get specific config value
  tally am validate                # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current tally process configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, pulse.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current tally process configuration is valid",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration cascade and which files were checked.

Lists all configuration sources in order of precedence, showing
which files exist and which are missing.`,
	RunE: runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# tally process configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# tally process configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	if _, err := am.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	fmt.Println(v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	home, _ := os.UserHomeDir()

	sources := []struct {
		desc string
		path string
	}{
		{"System config", "/etc/tally/config.toml"},
		{"User config", filepath.Join(home, ".tally", "tally.toml")},
	}

	fmt.Println("Configuration cascade (lowest to highest precedence):")
	for _, s := range sources {
		marker := "missing"
		if _, err := os.Stat(s.path); err == nil {
			marker = "found"
		}
		fmt.Printf("  %-14s %s (%s)\n", s.desc+":", s.path, marker)
	}

	if project := am.FindProjectConfig(); project != "" {
		fmt.Printf("  %-14s %s (found)\n", "Project config:", project)
	} else {
		fmt.Printf("  %-14s tally.toml (not found in this directory or its parents)\n", "Project config:")
	}

	fmt.Println("  Environment:   TALLY_* variables override all files")
	return nil
}
