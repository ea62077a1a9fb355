package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/metalagman/taskflow/internal/journal"
)

var errJournalDisabled = errors.New("journal is disabled (journal.path is empty)")

func historyCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show executed completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := c.openJournal()
			if err != nil {
				return err
			}
			if j == nil {
				return errJournalDisabled
			}
			defer func() { _ = j.Close() }()

			entries, err := j.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tOUTCOME\tTASK\tCOMMANDS\tNOTE")
			for _, e := range entries {
				note := e.Error
				if e.DeletedOriginal {
					note = "moved"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s:%d %s\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Outcome, e.File, e.Line, e.Content, e.Commands, note)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries (0 for all)")
	cmd.AddCommand(historyPruneCmd(c))
	return cmd
}

func historyPruneCmd(c *cli) *cobra.Command {
	var keepLast int
	var keepDays int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := journal.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				policy = journal.RetentionPolicy(c.cfg.Journal.Retention)
			}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return fmt.Errorf("set --keep-last or --keep-days (or configure journal.retention in %s)", c.cfgFile)
			}

			j, err := c.openJournal()
			if err != nil {
				return err
			}
			if j == nil {
				return errJournalDisabled
			}
			defer func() { _ = j.Close() }()

			res, err := j.Prune(cmd.Context(), policy, dryRun)
			if err != nil {
				return err
			}
			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "considered %d, kept %d, %s %d\n", res.Considered, res.Kept, verb, res.Deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N entries")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep entries younger than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report what would be deleted")
	return cmd
}
