// Package dialect holds the contracts the persistence engine needs from a
// database: a Driver that runs statements and opens transactions, and the
// Tx it returns. Connection handling and wire protocols stay with the
// driver implementation.
//
// Three dialect names are known to the statement builder: Postgres, MySQL
// and SQLite. They decide placeholder style, identifier quoting and
// whether inserts read generated columns back with RETURNING.
//
// A database/sql backed driver lives in dialect/sql:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)")
//	if err != nil {
//		return err
//	}
//	defer drv.Close()
//	m := persist.NewManager(drv, reg)
//
// Driver errors are classified into constraint violations by
// dialect/sql/sqlgraph.
package dialect
