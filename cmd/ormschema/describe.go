package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/syssam/orm/metadata"
)

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <schema.yaml>",
		Short: "Print the resolved tables, join columns and junction tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(args[0])
			if err != nil {
				return err
			}
			for _, m := range reg.Entities() {
				describe(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func describe(w io.Writer, m *metadata.EntityMetadata) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s", m.Name)
	fmt.Fprintf(w, " (table %s)\n", m.Table)
	for _, c := range m.Columns {
		fmt.Fprintf(w, "  %-20s %s\n", c.Name, columnFlags(c))
	}
	for _, rel := range m.Relations {
		fmt.Fprintf(w, "  %s %s -> %s", rel.Kind, rel.Name, rel.Target)
		switch {
		case rel.Junction() != nil:
			j := rel.Junction()
			fmt.Fprintf(w, " via %s(%s | %s)", j.Table, strings.Join(j.OwnerNames(), ", "), strings.Join(j.InverseNames(), ", "))
		case len(rel.ForeignKeys()) > 0:
			names := make([]string, len(rel.ForeignKeys()))
			for i, fk := range rel.ForeignKeys() {
				names[i] = fk.Name
			}
			fmt.Fprintf(w, " on %s", strings.Join(names, ", "))
		}
		fmt.Fprintln(w)
	}
}

func columnFlags(c *metadata.Column) string {
	var flags []string
	if c.Primary {
		flags = append(flags, "primary")
	}
	if c.Generated() {
		flags = append(flags, c.Generation.String())
	}
	if c.Relation() != nil {
		flags = append(flags, "references "+c.Referenced().Entity().Table+"."+c.Referenced().Name)
	}
	for _, f := range []struct {
		set  bool
		name string
	}{
		{c.Nullable, "nullable"},
		{c.Unique, "unique"},
		{c.Version, "version"},
		{c.CreateDate, "create date"},
		{c.UpdateDate, "update date"},
		{c.DeleteDate, "delete date"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return strings.Join(flags, ", ")
}
