package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/osdl/internal/cli"
	"github.com/aretw0/osdl/internal/config"
	"github.com/aretw0/osdl/internal/logging"
	"github.com/spf13/cobra"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "osdl",
	Short: "OSDL renders declarative pages into live component trees",
	Long: `OSDL evaluates page schemas (YAML, JSON or Markdown front matter) into
materialized component trees: expressions, visibility, repeaters, local
state and data requirements included.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
		applyFlags(cmd)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to an osdl.yaml configuration file")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("pages", "", "Directory containing page files")
	flags.String("loam", "", "Loam repository to load pages from (overrides --pages)")
	flags.String("fixtures", "", "JSON, YAML or .xlsx file with mockData fixtures")
	flags.String("redis", "", "Redis address for sessions, cache and locks")
	flags.String("actions", "", "YAML or JSON file binding action types to commands")
	flags.String("sql-driver", "", "Driver of the sql data source: sqlite, postgres or mysql")
	flags.String("sql-dsn", "", "Connection string of the sql data source")
}

func applyFlags(cmd *cobra.Command) {
	str := func(name string, dst *string) {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("pages", &cfg.PagesDir)
	str("loam", &cfg.LoamRepo)
	str("fixtures", &cfg.Fixtures)
	str("redis", &cfg.RedisAddr)
	str("actions", &cfg.ActionsFile)
	str("sql-driver", &cfg.SQLDriver)
	str("sql-dsn", &cfg.SQLDSN)
}

// newLogger writes to Stderr so command output on Stdout stays clean.
func newLogger() *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if cfg.LogFormat == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

func newApp(opts ...cli.AppOption) (*cli.App, error) {
	return cli.NewApp(cfg, newLogger(), opts...)
}
