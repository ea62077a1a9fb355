package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/vault"
)

func doneCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "done <task-id>",
		Short: "Complete a task and run its flow commands",
		Long: "Complete a task by id (as printed by `taskflow list`) and run its flow commands.\n" +
			"When a watch daemon holds the vault, only the checkbox is written and the daemon runs the commands.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			lock, owned, err := vault.TryAcquireLock(c.stateDir())
			if err != nil {
				return err
			}
			if owned {
				defer func() { _ = lock.Release() }()
			}

			opts := c.vaultOptions()
			if owned {
				j, err := c.openJournal()
				if err != nil {
					return err
				}
				if j != nil {
					defer func() { _ = j.Close() }()
					opts.Recorder = j
				}
			}
			v := vault.New(opts)
			defer v.Close()
			if err := v.Start(ctx); err != nil {
				return err
			}

			t, ok := v.Task(id)
			if !ok {
				return fmt.Errorf("%s: %w", id, vault.ErrTaskNotFound)
			}
			if !t.IsOpen() {
				return fmt.Errorf("%s is already completed", id)
			}

			if !owned {
				t.Status = model.StatusDone
				if err := v.Repository().UpdateTask(ctx, t); err != nil {
					return err
				}
				log.Info().Str("task_id", id).Msg("watch daemon is running; it will run the commands")
				fmt.Fprintf(cmd.OutOrStdout(), "completed %s\n", id)
				return nil
			}

			if _, err := v.CompleteTask(ctx, id); err != nil {
				return err
			}
			if err := v.Drain(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %s\n", id)
			return nil
		},
	}
}
