package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igengage/pkg/auth"
	"igengage/pkg/config"
	"igengage/pkg/progress"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igengage configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (IGENGAGE_*, also read from .env)
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write the default configuration to .igengage.yaml, or to the path given
with --config. An existing file is never overwritten.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".igengage.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, progress.Green("Configuration file created: "+path))
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Store the proxy password with 'igengage proxy set-password'")
	fmt.Fprintln(out, "2. Run 'igengage config validate' to check the configuration")
	fmt.Fprintln(out, "3. Start with 'igengage run <username>...'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := maskSecrets(*cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, progress.Red("Configuration has errors:"))
		fmt.Fprintln(out, err.Error())
		return fmt.Errorf("invalid configuration")
	}

	fmt.Fprintln(out, progress.Green("Configuration is valid"))
	fmt.Fprintf(out, "  Usernames: %d\n", len(cfg.Run.Usernames))
	fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Run.Concurrency)
	fmt.Fprintf(out, "  Max retries: %d (base delay %s)\n", cfg.Fetch.MaxRetries, cfg.Fetch.BaseDelay)
	fmt.Fprintf(out, "  Proxy mode: %s\n", cfg.Proxy.Mode)
	fmt.Fprintf(out, "  Sink: %s\n", cfg.Output.Sink)
	return nil
}

// maskSecrets hides passwords before a configuration is printed
func maskSecrets(cfg config.Config) config.Config {
	if cfg.Proxy.Password != "" {
		cfg.Proxy.Password = auth.Mask(cfg.Proxy.Password)
	}
	if cfg.Output.DatabaseURL != "" {
		cfg.Output.DatabaseURL = auth.Mask(cfg.Output.DatabaseURL)
	}
	return cfg
}
