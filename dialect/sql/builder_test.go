package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/orm/dialect"
)

func TestBuilder(t *testing.T) {
	tests := []struct {
		name      string
		input     Querier
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "insert/postgres/returning",
			input:     Dialect(dialect.Postgres).Insert("users").Columns("name", "age").Values("a8m", 10).Returning("id"),
			wantQuery: `INSERT INTO "users" ("name", "age") VALUES ($1, $2) RETURNING "id"`,
			wantArgs:  []any{"a8m", 10},
		},
		{
			name:      "insert/mysql/returning dropped",
			input:     Dialect(dialect.MySQL).Insert("users").Set("name", "a8m").Set("age", 10).Returning("id"),
			wantQuery: "INSERT INTO `users` (`name`, `age`) VALUES (?, ?)",
			wantArgs:  []any{"a8m", 10},
		},
		{
			name:      "insert/sqlite/default values",
			input:     Dialect(dialect.SQLite).Insert("users"),
			wantQuery: `INSERT INTO "users" DEFAULT VALUES`,
		},
		{
			name:      "insert/mysql/default values",
			input:     Dialect(dialect.MySQL).Insert("users"),
			wantQuery: "INSERT INTO `users` VALUES ()",
		},
		{
			name: "update/postgres/null and where",
			input: Dialect(dialect.Postgres).Update("users").
				Set("name", "foo").
				SetNull("parent_id").
				Where(EQ("id", 1)).
				Where(EQ("version", 3)),
			wantQuery: `UPDATE "users" SET "name" = $1, "parent_id" = NULL WHERE ("id" = $2 AND "version" = $3)`,
			wantArgs:  []any{"foo", 1, 3},
		},
		{
			name:      "delete/sqlite/composite key",
			input:     Dialect(dialect.SQLite).Delete("memberships").Where(ColumnsEQ([]string{"user_id", "group_id"}, []any{1, 2})),
			wantQuery: `DELETE FROM "memberships" WHERE ("user_id" = ? AND "group_id" = ?)`,
			wantArgs:  []any{1, 2},
		},
		{
			name:      "select/postgres/in",
			input:     Dialect(dialect.Postgres).Select("id", "name").From("users").Where(In("id", 1, 2)).OrderBy("id"),
			wantQuery: `SELECT "id", "name" FROM "users" WHERE "id" IN ($1, $2) ORDER BY "id"`,
			wantArgs:  []any{1, 2},
		},
		{
			name:      "select/mysql/or of tuples",
			input:     Dialect(dialect.MySQL).Select().From("t").Where(Or(And(EQ("a", 1), EQ("b", 2)), And(EQ("a", 3), EQ("b", 4)))),
			wantQuery: "SELECT * FROM `t` WHERE ((`a` = ? AND `b` = ?) OR (`a` = ? AND `b` = ?))",
			wantArgs:  []any{1, 2, 3, 4},
		},
		{
			name:      "select/empty in",
			input:     Dialect(dialect.SQLite).Select("id").From("t").Where(In("id")),
			wantQuery: `SELECT "id" FROM "t" WHERE FALSE`,
		},
		{
			name:      "select/nil equality",
			input:     Dialect(dialect.Postgres).Select("id").From("t").Where(EQ("deleted_at", nil)),
			wantQuery: `SELECT "id" FROM "t" WHERE "deleted_at" IS NULL`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := tt.input.Query()
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"public"."users"`, (&Builder{dialect: dialect.Postgres}).Quote("public.users"))
	assert.Equal(t, `"we""ird"`, (&Builder{dialect: dialect.Postgres}).Quote(`we"ird`))
	assert.Equal(t, "`we``ird`", (&Builder{dialect: dialect.MySQL}).Quote("we`ird"))
	assert.Equal(t, `"users"`, (&Builder{dialect: dialect.SQLite}).Quote("users"))
}
