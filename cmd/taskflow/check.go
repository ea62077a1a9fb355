package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metalagman/taskflow/internal/executor"
	"github.com/metalagman/taskflow/internal/vault"
)

func checkCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check [files...]",
		Short: "Report tasks with suspicious dates or unknown commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := vault.New(c.vaultOptions())
			defer v.Close()
			if err := v.Start(cmd.Context()); err != nil {
				return err
			}

			only := make(map[string]bool, len(args))
			for _, f := range args {
				only[f] = true
			}
			registry := executor.DefaultRegistry()
			findings := 0
			out := cmd.OutOrStdout()
			for _, t := range v.Tasks() {
				if len(only) > 0 && !only[t.File] {
					continue
				}
				for _, w := range t.Warnings {
					fmt.Fprintf(out, "%s: %s\n", t.ID, w)
					findings++
				}
				for _, fc := range t.Commands {
					if _, err := registry.Lookup(fc.Name); err != nil {
						fmt.Fprintf(out, "%s: %v\n", t.ID, err)
						findings++
					}
				}
			}
			if findings > 0 {
				return fmt.Errorf("%d finding(s)", findings)
			}
			fmt.Fprintln(out, "no findings")
			return nil
		},
	}
}
