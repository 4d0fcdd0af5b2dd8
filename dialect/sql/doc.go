// Package sql provides the database/sql backed driver used by the
// persistence engine, together with the statement builder it renders its
// single-table statements with.
//
// # Builder Types
//
//   - Builder: low-level SQL string builder with identifier quoting
//   - InsertBuilder: INSERT statement builder with RETURNING support
//   - UpdateBuilder: UPDATE statement builder with SET and WHERE clauses
//   - DeleteBuilder: DELETE statement builder with WHERE predicates
//   - Selector: SELECT statement builder for row lookups
//
// # Dialect Support
//
// Placeholders and identifier quoting follow the dialect:
//
//	import "github.com/syssam/orm/dialect"
//
//	// PostgreSQL: SELECT "id", "name" FROM "users" WHERE "id" = $1
//	sql.Dialect(dialect.Postgres).Select("id", "name").From("users").Where(sql.EQ("id", 1))
//
//	// MySQL: SELECT `id` FROM `users` WHERE `id` = ?
//	sql.Dialect(dialect.MySQL).Select("id").From("users").Where(sql.EQ("id", 1))
//
// # Predicates
//
//	sql.EQ("name", "john")              // "name" = $1
//	sql.EQ("parent_id", nil)            // "parent_id" IS NULL
//	sql.In("id", 1, 2, 3)               // "id" IN ($1, $2, $3)
//	sql.And(sql.EQ("a", 1), sql.EQ("b", 2))
//
// # Drivers
//
// Open wraps database/sql. StatsDriver and DebugDriver wrap any
// dialect.Driver to collect statistics or log every statement.
package sql
