package main

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/syssam/orm/dialect"
	"github.com/syssam/orm/dialect/sql"
	"github.com/syssam/orm/metadata"
	"github.com/syssam/orm/persist"
)

func newVerifyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <schema.yaml>",
		Short: "Verify that every table and column of the schema exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(args[0])
			if err != nil {
				return err
			}
			if v.GetString(cfgKeyDSN) == "" {
				return fmt.Errorf("no data source name: set --dsn or ORMSCHEMA_DSN")
			}
			drv, err := openDriver(v, cmd)
			if err != nil {
				return err
			}
			defer drv.Close()
			failed := verify(cmd, persist.NewQueryRunner(drv), reg)
			if failed > 0 {
				return fmt.Errorf("%d table(s) do not match the schema", failed)
			}
			return nil
		},
	}
}

func openDriver(v *viper.Viper, cmd *cobra.Command) (dialect.Driver, error) {
	name := v.GetString(cfgKeyDriver)
	db, err := stdsql.Open(name, v.GetString(cfgKeyDSN))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	var drv dialect.Driver = sql.OpenDB(name, db)
	if v.GetBool(cfgKeyDebug) {
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
		drv = sql.NewDebugDriver(drv, sql.DebugWithLogger(logger))
	}
	return drv, nil
}

// verify selects the declared columns of every entity and junction table
// and returns the number of tables the database rejected.
func verify(cmd *cobra.Command, r *persist.QueryRunner, reg *metadata.Registry) (failed int) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	check := func(table string, columns []string) {
		query, args := sql.Dialect(r.Dialect()).Select(columns...).From(table).Where(sql.False()).Query()
		if _, err := r.Query(ctx, query, args); err != nil {
			failed++
			color.New(color.FgRed).Fprintf(out, "FAIL ")
			fmt.Fprintf(out, "%s: %v\n", table, err)
			return
		}
		color.New(color.FgGreen).Fprintf(out, "ok   ")
		fmt.Fprintf(out, "%s (%d columns)\n", table, len(columns))
	}
	for _, m := range reg.Entities() {
		columns := make([]string, len(m.Columns))
		for i, c := range m.Columns {
			columns[i] = c.Name
		}
		check(m.Table, columns)
	}
	for _, m := range reg.Entities() {
		for _, rel := range m.Relations {
			if !rel.OwnsJunction() {
				continue
			}
			j := rel.Junction()
			check(j.Table, append(j.OwnerNames(), j.InverseNames()...))
		}
	}
	return failed
}
