package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/taskflow/internal/config"
)

func initCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize taskflow in a vault",
		Long:  "Initialize taskflow in a vault by creating the .taskflow directory and installing a default config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir := c.stateDir()
			log.Info().Str("dir", stateDir).Msg("creating taskflow directory")
			if err := os.MkdirAll(filepath.Join(stateDir, "locks"), 0o755); err != nil {
				return fmt.Errorf("create locks dir: %w", err)
			}

			configPath := filepath.Join(c.cfg.Vault, config.DefaultPath)
			if _, err := os.Stat(configPath); err == nil {
				log.Info().Msg("config.yaml already exists, skipping")
			} else {
				log.Info().Str("path", configPath).Msg("installing default config")
				if err := os.WriteFile(configPath, []byte(config.DefaultYAML), 0o644); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "taskflow initialized successfully")
			return nil
		},
	}
}
