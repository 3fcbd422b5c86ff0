package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/refviewer/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage refviewer configuration",
	Long:  `View the saved session and the runtime settings, or reset the session.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved session",
	Long:  `Display the saved session document.`,
	Example: `  # Show the session as JSON (default)
  refviewer config show

  # Show the session as YAML
  refviewer config show --format yaml`,
	RunE: runConfigShow,
}

var configSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the effective runtime settings",
	Long:  `Display settings after defaults, settings.yaml, REFVIEWER_* variables and flags are merged.`,
	RunE:  runConfigSettings,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file paths",
	RunE:  runConfigPath,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the saved session",
	Long:  `Delete the session file. The next launch starts with no folders.`,
	RunE:  runConfigReset,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSettingsCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configResetCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "json", "output format (json or yaml)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	cfg, err := store.Load()
	if err != nil && !errors.Is(err, config.ErrConfigMissing) {
		return fmt.Errorf("failed to load session: %w", err)
	}

	switch formatFlag {
	case "json":
		return writeJSON(cmd.OutOrStdout(), cfg)
	case "yaml":
		// Round-trip through JSON so YAML keys match the file on disk
		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent(2)
		return encoder.Encode(doc)
	default:
		return fmt.Errorf("unsupported format: %s (use 'json' or 'yaml')", formatFlag)
	}
}

func runConfigSettings(cmd *cobra.Command, args []string) error {
	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	return encoder.Encode(settings)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session:  %s\n", store.Path())
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "settings: %s\n", used)
	}
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Reset(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Path())
	return nil
}
