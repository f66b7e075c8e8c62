// Package cmd provides the scriptsmith command-line interface.
//
// Configuration is read from a YAML file with clear precedence:
//
//  1. Command-line flags (--port, --minify, ...) - highest priority
//  2. SCRIPTSMITH_<SECTION>_<KEY> environment variables
//  3. The configuration file - lowest priority
//
// The file itself is chosen by --config, then SCRIPTSMITH_CONFIG_FILE, then
// scriptsmith.yml in the working directory.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// logger is set up by the root PersistentPreRunE before any command runs.
	logger logging.Logger = logging.NewNop()

	// rootViper carries the flags and environment variables that pick the
	// configuration file. Project settings are loaded per build by config.Loader.
	rootViper = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scriptsmith",
	Short: "Build userscripts and live-reload them into open pages",
	Long: `scriptsmith bundles a userscript, prepends its metadata header and serves
the result to your userscript manager. During development every change is
rebuilt and pushed to the pages that run the script, without reinstalling.

Quick Start:
  scriptsmith init                Scaffold a project in the current directory
  scriptsmith dev                 Build, serve and live-reload on change
  scriptsmith build               Production build without the live-reload client
  scriptsmith tail                Print reload payloads as a page would receive them`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	defer syncLogger()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is scriptsmith.yml, can also use SCRIPTSMITH_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootViper.SetEnvPrefix(config.EnvPrefix)
	rootViper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	rootViper.AutomaticEnv()
	_ = rootViper.BindPFlag("config-file", rootCmd.PersistentFlags().Lookup("config"))
	_ = rootViper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = rootViper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(rootViper.GetString("log-level"))
	if err != nil {
		return err
	}
	format := rootViper.GetString("log-format")
	if format != "console" && format != "json" {
		return fmt.Errorf("unsupported log format: %s (supported: console, json)", format)
	}

	logger = logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func syncLogger() {
	if zl, ok := logger.(*logging.ZapLogger); ok {
		_ = zl.Sync()
	}
}

// configPath resolves the configuration file. rootViper sees --config
// before SCRIPTSMITH_CONFIG_FILE.
func configPath() string {
	if path := rootViper.GetString("config-file"); path != "" {
		return path
	}
	return config.DefaultFileName
}

// newLoader returns a loader for the active configuration file with the
// command's changed flags applied on every load.
func newLoader(cmd *cobra.Command) *config.Loader {
	loader := config.NewLoader(configPath())
	loader.Overrides = configOverrides(cmd.Flags())
	return loader
}
