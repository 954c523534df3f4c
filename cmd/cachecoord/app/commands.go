// Package app provides the cobra commands of cachecoord.
package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cachecoordinator "github.com/huykn/cache-coordinator"
)

// EnvPrefix is the prefix of environment variables read by cachecoord.
const EnvPrefix = "CACHECOORD"

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "cachecoord",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Cache update coordinator",
		Long: `cachecoord batches, prioritises and rate-limits cache invalidation requests
before they reach the cache store.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd.Flags(), "debug", "log-level", "config"); err != nil {
				return err
			}
			return loadConfigFile(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newSimulateCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := cachecoordinator.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("format version info: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cachecoord %s (%s)\n", info.Version, info.GoVersion)
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

// newLogger builds the process logger from the debug and log-level settings.
// Logs go to stderr so stdout stays clean for command output.
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if v.GetBool("debug") {
		level = zapcore.DebugLevel
	} else if s := v.GetString("log-level"); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
