// Package cli implements the fortuned command line: the HTTP server plus
// operator commands that drive the same engine directly.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-fortune-backend/internal/config"
	"github.com/tbourn/go-fortune-backend/internal/sysutil"
)

// RootOptions holds global flags and the configuration loaded for every
// command.
type RootOptions struct {
	EnvFile string
	Format  string // "text" | "json"
	Version string

	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:     "fortuned",
		Short:   "Personalized fortune message engine",
		Long:    "fortuned generates personalized fortune messages that never repeat for a subject within the retention window.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := loadEnvFile(opts.EnvFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			opts.Config = cfg
			sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))

	return cmd
}

// loadEnvFile applies path without overriding variables already set. A
// missing default file is fine; a missing explicit one is an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}
