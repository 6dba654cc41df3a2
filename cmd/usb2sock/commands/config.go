package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/usb2sock/config"
)

var (
	showOutput string
	initForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and create usb2sock configuration files.

Subcommands:
  show      Display the effective configuration
  init      Write a configuration file holding the defaults
  schema    Generate JSON schema for editors and validation`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after merging defaults, the config file and
USB2SOCK_* environment variables.

Examples:
  # Show as YAML
  usb2sock config show

  # Show as JSON
  usb2sock config show --output json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file holding the defaults",
	Long: `Write the default configuration to $XDG_CONFIG_HOME/usb2sock/config.yaml,
or to the path given by --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "output format: yaml, json")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	format, err := parseFormat(showOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if format == formatTable {
		format = formatYAML
	}
	return printValue(cmd.OutOrStdout(), format, cfg)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if err := config.SaveConfig(config.Default(), path, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", path)
	return nil
}
