package persist

import (
	"context"
	"fmt"
	"sync"

	"github.com/syssam/orm"
	"github.com/syssam/orm/dialect"
	"github.com/syssam/orm/dialect/sql"
)

// QueryRunner issues statements against a driver and tracks the
// transaction of one persistence call. Statements run on the active
// transaction if there is one, on the driver otherwise.
//
// A runner with an active transaction must not be shared by concurrent
// calls.
type QueryRunner struct {
	drv dialect.Driver

	mu sync.Mutex
	tx dialect.Tx
}

// NewQueryRunner returns a runner over the driver.
func NewQueryRunner(drv dialect.Driver) *QueryRunner {
	return &QueryRunner{drv: drv}
}

// Dialect returns the dialect name of the driver.
func (r *QueryRunner) Dialect() string { return r.drv.Dialect() }

// Query executes a statement returning rows and scans them into
// column-keyed maps.
func (r *QueryRunner) Query(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	if args == nil {
		args = []any{}
	}
	var rows sql.Rows
	if err := r.conn().Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	return sql.ScanMaps(rows)
}

// Exec executes a statement that does not return rows.
func (r *QueryRunner) Exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	if args == nil {
		args = []any{}
	}
	var res sql.Result
	if err := r.conn().Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// StartTransaction begins a transaction. It fails with orm.ErrTxStarted if
// one is already active.
func (r *QueryRunner) StartTransaction(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tx != nil {
		return orm.ErrTxStarted
	}
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("persist: starting a transaction: %w", err)
	}
	r.tx = tx
	return nil
}

// CommitTransaction commits the active transaction. It fails with
// orm.ErrTxNotStarted if none is active.
func (r *QueryRunner) CommitTransaction() error {
	tx, err := r.release()
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RollbackTransaction rolls back the active transaction. It fails with
// orm.ErrTxNotStarted if none is active.
func (r *QueryRunner) RollbackTransaction() error {
	tx, err := r.release()
	if err != nil {
		return err
	}
	return tx.Rollback()
}

// IsTransactionActive reports whether a transaction is active.
func (r *QueryRunner) IsTransactionActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tx != nil
}

func (r *QueryRunner) release() (dialect.Tx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tx == nil {
		return nil, orm.ErrTxNotStarted
	}
	tx := r.tx
	r.tx = nil
	return tx, nil
}

func (r *QueryRunner) conn() dialect.ExecQuerier {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tx != nil {
		return r.tx
	}
	return r.drv
}
