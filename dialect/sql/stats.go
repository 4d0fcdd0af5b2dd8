package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/orm/dialect"
)

// QueryStats counts the statements and transactions that went through a
// StatsDriver. All fields are safe for concurrent use.
type QueryStats struct {
	TotalQueries atomic.Int64
	TotalExecs   atomic.Int64
	// Inserts, Updates and Deletes break TotalExecs down by statement verb.
	Inserts       atomic.Int64
	Updates       atomic.Int64
	Deletes       atomic.Int64
	TotalDuration atomic.Int64 // nanoseconds
	SlowQueries   atomic.Int64
	Errors        atomic.Int64
	Transactions  atomic.Int64
	Commits       atomic.Int64
	Rollbacks     atomic.Int64
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		Inserts:       s.Inserts.Load(),
		Updates:       s.Updates.Load(),
		Deletes:       s.Deletes.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
		Transactions:  s.Transactions.Load(),
		Commits:       s.Commits.Load(),
		Rollbacks:     s.Rollbacks.Load(),
	}
}

// Reset sets every counter back to zero.
func (s *QueryStats) Reset() {
	for _, c := range []*atomic.Int64{
		&s.TotalQueries, &s.TotalExecs, &s.Inserts, &s.Updates, &s.Deletes,
		&s.TotalDuration, &s.SlowQueries, &s.Errors,
		&s.Transactions, &s.Commits, &s.Rollbacks,
	} {
		c.Store(0)
	}
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	Inserts       int64
	Updates       int64
	Deletes       int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
	Transactions  int64
	Commits       int64
	Rollbacks     int64
}

// Statements returns the number of queries and execs.
func (s StatsSnapshot) Statements() int64 {
	return s.TotalQueries + s.TotalExecs
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	if n := s.Statements(); n > 0 {
		return s.TotalDuration / time.Duration(n)
	}
	return 0
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d (insert=%d update=%d delete=%d) duration=%s avg=%s slow=%d errors=%d tx=%d commits=%d rollbacks=%d",
		s.TotalQueries, s.TotalExecs, s.Inserts, s.Updates, s.Deletes,
		s.TotalDuration, s.AvgQueryDuration(), s.SlowQueries, s.Errors,
		s.Transactions, s.Commits, s.Rollbacks,
	)
}

// SlowQueryHook is called for every statement slower than the threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver wraps a dialect.Driver and counts the statements issued on
// it and on the transactions it opens.
type StatsDriver struct {
	dialect.Driver
	stats *QueryStats

	mu            sync.RWMutex
	slowThreshold time.Duration
	slowHook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement counts as
// slow. Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets the function called for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements at warn level to the given logger,
// or the default logger when nil.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, duration time.Duration) {
		logger.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
	})
}

// NewStatsDriver wraps drv with statistics collection.
//
//	drv := sql.NewStatsDriver(base, sql.WithSlowThreshold(200*time.Millisecond))
//	m := persist.NewManager(drv, reg)
//	...
//	fmt.Println(drv.QueryStats().Stats())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenWithStats opens a database with sql.Open and wraps it with
// statistics collection. The driver name doubles as dialect name.
func OpenWithStats(driverName, source string, opts ...StatsOption) (*StatsDriver, *QueryStats, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, nil, err
	}
	drv := NewStatsDriver(OpenDB(driverName, db), opts...)
	return drv, drv.stats, nil
}

// QueryStats returns the live counters.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

// Query runs a query on the wrapped driver and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.record(ctx, query, args, func() error { return d.Driver.Query(ctx, query, args, v) }, false)
}

// Exec runs a statement on the wrapped driver and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.record(ctx, query, args, func() error { return d.Driver.Exec(ctx, query, args, v) }, true)
}

// Tx opens a transaction whose statements are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		d.stats.Errors.Add(1)
		return nil, err
	}
	d.stats.Transactions.Add(1)
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, run func() error, exec bool) error {
	start := time.Now()
	err := run()
	elapsed := time.Since(start)
	s := d.stats
	if exec {
		s.TotalExecs.Add(1)
		if c := s.verb(query); c != nil {
			c.Add(1)
		}
	} else {
		s.TotalQueries.Add(1)
	}
	s.TotalDuration.Add(int64(elapsed))
	if err != nil {
		s.Errors.Add(1)
	}
	d.mu.RLock()
	threshold, hook := d.slowThreshold, d.slowHook
	d.mu.RUnlock()
	if elapsed > threshold {
		s.SlowQueries.Add(1)
		if hook != nil {
			argv, _ := args.([]any)
			hook(ctx, query, argv, elapsed)
		}
	}
	return err
}

// verb returns the counter of the statement verb, if it has one.
func (s *QueryStats) verb(query string) *atomic.Int64 {
	query = strings.TrimSpace(query)
	if len(query) < 6 {
		return nil
	}
	switch strings.ToUpper(query[:6]) {
	case "INSERT":
		return &s.Inserts
	case "UPDATE":
		return &s.Updates
	case "DELETE":
		return &s.Deletes
	}
	return nil
}

// StatsTx is a transaction opened by a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query runs a query in the transaction and records it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.record(ctx, query, args, func() error { return tx.Tx.Query(ctx, query, args, v) }, false)
}

// Exec runs a statement in the transaction and records it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.record(ctx, query, args, func() error { return tx.Tx.Exec(ctx, query, args, v) }, true)
}

// Commit commits the transaction and counts it.
func (tx *StatsTx) Commit() error {
	tx.driver.stats.Commits.Add(1)
	return tx.Tx.Commit()
}

// Rollback rolls back the transaction and counts it.
func (tx *StatsTx) Rollback() error {
	tx.driver.stats.Rollbacks.Add(1)
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
)
