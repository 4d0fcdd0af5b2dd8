package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/syssam/orm/metadata"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <schema.yaml>",
		Short: "Validate entity declarations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(args[0])
			if reg == nil || reg.Validation() == nil {
				return err
			}
			res := reg.Validation()
			out := cmd.OutOrStdout()
			printIssues(cmd, color.New(color.FgRed), "error", res.Errors)
			printIssues(cmd, color.New(color.FgYellow), "warning", res.Warnings)
			if err != nil {
				return fmt.Errorf("%s: %d error(s)", args[0], len(res.Errors))
			}
			color.New(color.FgGreen).Fprintf(out, "%s: %d entities, no errors\n", args[0], len(reg.Entities()))
			return nil
		},
	}
}

func printIssues(cmd *cobra.Command, c *color.Color, label string, issues []*metadata.ValidationError) {
	for _, e := range issues {
		c.Fprintf(cmd.OutOrStdout(), "%s: ", label)
		fmt.Fprintln(cmd.OutOrStdout(), e)
	}
}
