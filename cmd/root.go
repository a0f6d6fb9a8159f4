// Package cmd defines the harvester command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/archive-harvester/internal/config"
)

type configKeyType struct{}

var configKey configKeyType

type rootOptions struct {
	configPath string
	envFile    string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Incrementally harvest a dated news archive into object storage.",
		Long: `harvester walks a date range of a paginated news archive, downloads
each day's articles or PDF edition, and stores them under date-partitioned
keys. A checkpoint lets the next run resume where this one stopped.`,
		SilenceUsage: true,

		// Runs before every subcommand: load .env, then the configuration.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML); environment uses the HARVESTER_ prefix")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newHarvestCmd(config.ModeArticles, "Harvest the daily article archive"))
	cmd.AddCommand(newHarvestCmd(config.ModeEditions, "Harvest the daily PDF editions"))
	return cmd
}

// loadEnvFile loads path into the environment. A missing file is not an error
// and variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func configFromContext(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the CLI and returns the process exit code: 0 on success, 2
// for configuration errors, 1 otherwise.
func Execute() int {
	return execute(context.Background(), newRootCmd(), os.Args[1:])
}

func execute(ctx context.Context, cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if config.IsValidationError(err) {
			return 2
		}
		return 1
	}
	return 0
}
