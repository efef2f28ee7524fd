package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jandubois/healthmon/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/jandubois/healthmon/cmd.Version=..."
var Version = "dev"

const defaultConfigPath = "healthmon.yaml"

var rootCmd = &cobra.Command{
	Use:   "healthmon",
	Short: "Multi-service health monitor",
	Long: `Healthmon probes a fixed set of HTTP services on a schedule, classifies
each one as online, degraded or offline, and serves the latest results.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path (or HEALTHMON_CONFIG env, default healthmon.yaml)")
	rootCmd.PersistentFlags().StringP("database", "d", "", "SQLite database path (overrides config, or DATABASE_PATH env)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q", name)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func getConfigPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("HEALTHMON_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}
	return path
}

// loadConfig reads the config file and applies the flag and environment
// overrides shared by all commands.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(getConfigPath(cmd))
	if err != nil {
		return nil, err
	}

	if path, _ := cmd.Flags().GetString("database"); path != "" {
		cfg.Database = path
	} else if cfg.Database == "" {
		cfg.Database = os.Getenv("DATABASE_PATH")
	}
	return cfg, nil
}

// getDatabasePath resolves the database path without requiring a config file.
func getDatabasePath(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("database")
	if path == "" {
		path = os.Getenv("DATABASE_PATH")
	}
	if path == "" {
		if cfg, err := config.Load(getConfigPath(cmd)); err == nil {
			path = cfg.Database
		}
	}
	if path == "" {
		return "", fmt.Errorf("database path required (--database, DATABASE_PATH or config)")
	}
	return path, nil
}
