package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/metalagman/taskflow/internal/config"
	"github.com/metalagman/taskflow/internal/journal"
	"github.com/metalagman/taskflow/internal/vault"
	"github.com/metalagman/taskflow/internal/watch"
)

var errAlreadyWatching = errors.New("another taskflow watch is running for this vault")

func watchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index the vault and run flow commands as tasks are completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, ok, err := vault.TryAcquireLock(c.stateDir())
			if err != nil {
				return err
			}
			if !ok {
				return errAlreadyWatching
			}
			defer func() { _ = lock.Release() }()

			app := newWatchApp(c.cfg, c.vaultOptions())
			if err := app.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			select {
			case <-cmd.Context().Done():
			case sig := <-app.Done():
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			}
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 30*time.Second)
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
}

// newWatchApp wires the daemon: journal, vault, watcher. Components start in that order
// and stop in reverse.
func newWatchApp(cfg config.Config, opts vault.Options) *fx.App {
	return fx.New(
		fx.NopLogger,
		fx.Supply(cfg, opts),
		fx.Provide(newJournal, newVault, newWatcher),
		fx.Invoke(func(*watch.Watcher) {}),
	)
}

func newJournal(lc fx.Lifecycle, cfg config.Config) (*journal.Store, error) {
	if cfg.Journal.Path == "" {
		return nil, nil
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			policy := journal.RetentionPolicy(cfg.Journal.Retention)
			res, err := store.Prune(ctx, policy, false)
			if err != nil {
				return err
			}
			if res.Deleted > 0 {
				log.Info().Int("deleted", res.Deleted).Int("kept", res.Kept).Msg("journal pruned")
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func newVault(lc fx.Lifecycle, opts vault.Options, j *journal.Store) *vault.Vault {
	if j != nil {
		opts.Recorder = j
	}
	v := vault.New(opts)
	lc.Append(fx.Hook{
		OnStart: v.Start,
		OnStop: func(context.Context) error {
			v.Close()
			return nil
		},
	})
	return v
}

func newWatcher(lc fx.Lifecycle, cfg config.Config, v *vault.Vault) (*watch.Watcher, error) {
	w, err := watch.New(v.Root(), v.Scanner(), v.Repository(),
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithExternalEditsAreLocal(cfg.Watch.ExternalEditsAreLocal),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		// the event loop outlives the start context
		OnStart: func(context.Context) error { return w.Start(context.Background()) },
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	})
	return w, nil
}
