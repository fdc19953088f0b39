package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/graystore/internal/infrastructure/config"
	"github.com/nerrad567/graystore/internal/infrastructure/logging"
)

// defaultConfigPath is used when neither --config nor GRAYSTORE_CONFIG is set.
const defaultConfigPath = "configs/graystore.yaml"

// newRootCmd creates the root graystore command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "graystore",
		Short:         "SQLite connection configuration and WAL checkpoint service",
		Long:          "graystore opens SQLite databases through ordered configuration chains\nand keeps their write-ahead logs short with debounced checkpoints.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("graystore {{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPathFromEnv(),
		"path to the configuration file (env GRAYSTORE_CONFIG)")

	load := func() (*config.Config, *logging.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, logging.New(cfg.Logging, version), nil
	}

	cmd.AddCommand(
		newRunCmd(load, &configPath),
		newCheckpointCmd(load),
		newInspectCmd(load),
		newTokenCmd(load),
	)

	return cmd
}

// loadFunc loads the configuration named by the --config flag.
type loadFunc func() (*config.Config, *logging.Logger, error)

// configPathFromEnv returns GRAYSTORE_CONFIG if set, otherwise the default.
func configPathFromEnv() string {
	if path := os.Getenv("GRAYSTORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
