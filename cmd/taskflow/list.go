package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/metalagman/taskflow/internal/model"
	"github.com/metalagman/taskflow/internal/notation"
	"github.com/metalagman/taskflow/internal/task"
	"github.com/metalagman/taskflow/internal/vault"
)

type listOptions struct {
	date    string
	today   bool
	someday bool
	file    string
	open    bool
	asJSON  bool
}

func listCmd(c *cli) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := vault.New(c.vaultOptions())
			defer v.Close()
			if err := v.Start(cmd.Context()); err != nil {
				return err
			}
			tasks, err := selectTasks(v, opts, time.Now())
			if err != nil {
				return err
			}
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tasks)
			}
			return printTasks(cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().StringVar(&opts.date, "date", "", "only tasks on this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.today, "today", false, "only tasks of the current visual day")
	cmd.Flags().BoolVar(&opts.someday, "someday", false, "only @future tasks")
	cmd.Flags().StringVar(&opts.file, "file", "", "only tasks of this vault-relative file")
	cmd.Flags().BoolVar(&opts.open, "open", false, "only open tasks")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON")
	return cmd
}

func selectTasks(v *vault.Vault, opts listOptions, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	switch {
	case opts.date != "":
		if _, err := time.Parse(model.DateLayout, opts.date); err != nil {
			return nil, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", opts.date)
		}
		tasks = v.TasksForDate(opts.date)
		task.SortBySchedule(tasks)
	case opts.today:
		tasks = v.TasksForVisualDay(now)
		task.SortBySchedule(tasks)
	case opts.someday:
		tasks = v.SomedayTasks()
	default:
		tasks = v.Tasks()
	}

	out := tasks[:0]
	for _, t := range tasks {
		if opts.file != "" && t.File != opts.file {
			continue
		}
		if opts.open && !t.IsOpen() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func printTasks(w io.Writer, tasks []model.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range tasks {
		line := notation.Format(&t)
		fmt.Fprintf(tw, "%s\t%s\n", t.ID, strings.TrimLeft(line, " \t"))
	}
	return tw.Flush()
}
