package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metalagman/taskflow/internal/config"
	"github.com/metalagman/taskflow/internal/journal"
	"github.com/metalagman/taskflow/internal/logging"
	"github.com/metalagman/taskflow/internal/vault"
)

// cli holds the flags and the loaded configuration shared by all commands.
type cli struct {
	cfgFile  string
	vaultDir string
	debug    bool
	cfg      config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "taskflow",
		Short:         "taskflow indexes markdown tasks and runs their flow commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", config.DefaultPath, "config file path, relative to the vault")
	root.PersistentFlags().StringVar(&c.vaultDir, "vault", "", "vault directory (default: current directory)")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")

	root.AddCommand(initCmd(c))
	root.AddCommand(watchCmd(c))
	root.AddCommand(listCmd(c))
	root.AddCommand(checkCmd(c))
	root.AddCommand(doneCmd(c))
	root.AddCommand(historyCmd(c))
	return root
}

func (c *cli) load() error {
	base := c.vaultDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		base = wd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	// .env next to the vault supplies TASKFLOW_* overrides without replacing real env vars
	if err := godotenv.Load(filepath.Join(base, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(viper.New(), c.cfgFile, base)
	if err != nil {
		return err
	}
	if c.vaultDir != "" {
		cfg.Vault = base
	}
	logging.Init(cfg.Log.Debug || c.debug, cfg.Log.JSON)
	c.cfg = cfg
	return nil
}

func (c *cli) stateDir() string {
	return filepath.Join(c.cfg.Vault, config.Dir)
}

func (c *cli) vaultOptions() vault.Options {
	return vault.Options{
		Root:           c.cfg.Vault,
		Exclude:        c.cfg.Exclude,
		DayStartHour:   c.cfg.DayStartHour,
		NotifyDebounce: c.cfg.NotifyDebounce,
	}
}

// openJournal opens the configured journal. It returns nil when the journal is disabled.
func (c *cli) openJournal() (*journal.Store, error) {
	if c.cfg.Journal.Path == "" {
		return nil, nil
	}
	return journal.Open(c.cfg.Journal.Path)
}
