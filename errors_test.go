package orm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/syssam/orm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		is       func(error) bool
		msg      string
	}{
		{
			name:     "MissingIdentifier",
			err:      &orm.MissingIdentifierError{Entity: "User", Op: orm.OpRemove, Column: "id"},
			sentinel: orm.ErrMissingIdentifier,
			is:       orm.IsMissingIdentifier,
			msg:      `orm: remove User: missing identifier (column "id")`,
		},
		{
			name:     "MissingIdentifierNoColumn",
			err:      &orm.MissingIdentifierError{Entity: "User", Op: orm.OpUpdate},
			sentinel: orm.ErrMissingIdentifier,
			is:       orm.IsMissingIdentifier,
			msg:      "orm: update User: missing identifier",
		},
		{
			name:     "UnresolvableCycle",
			err:      &orm.UnresolvableCycleError{Path: []string{"Chicken", "Egg", "Chicken"}},
			sentinel: orm.ErrUnresolvableCycle,
			is:       orm.IsUnresolvableCycle,
			msg:      "orm: unresolvable dependency cycle: Chicken -> Egg -> Chicken",
		},
		{
			name:     "CascadeNotAllowed",
			err:      &orm.CascadeNotAllowedError{Entity: "Post", Relation: "author", Target: "User", Op: orm.OpInsert},
			sentinel: orm.ErrCascadeNotAllowed,
			is:       orm.IsCascadeNotAllowed,
			msg:      "orm: cascade insert not allowed on Post.author (target User has no identifier)",
		},
		{
			name:     "ColumnNotFound",
			err:      &orm.ColumnNotFoundError{Entity: "User", Path: "nickname"},
			sentinel: orm.ErrColumnNotFound,
			is:       orm.IsColumnNotFound,
			msg:      `orm: no column for property path "nickname" in User`,
		},
		{
			name:     "OptimisticLock",
			err:      &orm.OptimisticLockError{Entity: "User", Expected: int64(1), Actual: int64(2)},
			sentinel: orm.ErrOptimisticLock,
			is:       orm.IsOptimisticLock,
			msg:      "orm: User: expected version 1, found 2",
		},
		{
			name:     "OptimisticLockNoRow",
			err:      &orm.OptimisticLockError{Entity: "User", Expected: int64(1)},
			sentinel: orm.ErrOptimisticLock,
			is:       orm.IsOptimisticLock,
			msg:      "orm: User: version 1 is no longer current",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.msg)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, tt.is(errors.New(tt.msg)))
			assert.False(t, tt.is(nil))
		})
	}
}

func TestQueryFailedError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &orm.QueryFailedError{Entity: "User", Op: orm.OpInsert, Query: "INSERT INTO users", Err: cause}
	assert.EqualError(t, err, "orm: insert User: query failed: connection reset")
	assert.ErrorIs(t, err, orm.ErrQueryFailed)
	assert.ErrorIs(t, err, cause)
	assert.True(t, orm.IsQueryFailed(err))

	load := &orm.QueryFailedError{Entity: "User", Err: cause}
	assert.EqualError(t, load, "orm: load User: query failed: connection reset")
}

func TestConstraintError(t *testing.T) {
	cause := &orm.QueryFailedError{Entity: "Tag", Op: orm.OpInsert, Err: errors.New("UNIQUE constraint failed: tags.label")}
	err := orm.NewConstraintError("UNIQUE constraint failed: tags.label", cause)
	assert.EqualError(t, err, "orm: constraint failed: UNIQUE constraint failed: tags.label")
	assert.True(t, orm.IsConstraintError(err))
	assert.True(t, orm.IsConstraintError(fmt.Errorf("save: %w", err)))
	assert.True(t, orm.IsQueryFailed(err))
	assert.False(t, orm.IsConstraintError(cause))
	assert.False(t, orm.IsConstraintError(nil))
}

func TestWithSuppressed(t *testing.T) {
	primary := &orm.OptimisticLockError{Entity: "User", Expected: int64(3)}
	rollback := &orm.RollbackError{Err: errors.New("driver: bad connection")}

	t.Run("Attach", func(t *testing.T) {
		err := orm.WithSuppressed(primary, rollback, nil)
		assert.Equal(t, primary.Error(), err.Error())
		assert.True(t, orm.IsOptimisticLock(err))
		require.Len(t, orm.Suppressed(err), 1)
		assert.EqualError(t, orm.Suppressed(err)[0], "orm: rollback failed: driver: bad connection")

		var rerr *orm.RollbackError
		assert.False(t, errors.As(err, &rerr), "suppressed errors take no part in matching")
	})

	t.Run("Append", func(t *testing.T) {
		err := orm.WithSuppressed(orm.WithSuppressed(primary, rollback), errors.New("second"))
		assert.Len(t, orm.Suppressed(err), 2)
	})

	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, orm.WithSuppressed(nil, rollback))
		assert.Same(t, primary, orm.WithSuppressed(primary).(*orm.OptimisticLockError))
		assert.Nil(t, orm.Suppressed(primary))
	})
}

func TestTxErrors(t *testing.T) {
	assert.Contains(t, orm.ErrTxStarted.Error(), "transaction")
	assert.Contains(t, orm.ErrTxNotStarted.Error(), "transaction")
	assert.NotErrorIs(t, orm.ErrTxStarted, orm.ErrTxNotStarted)
}

func TestOp(t *testing.T) {
	assert.Equal(t, "none", orm.OpNone.String())
	assert.Equal(t, "soft-remove", orm.OpSoftRemove.String())
	assert.Equal(t, "unknown", orm.Op(42).String())
	assert.True(t, orm.OpRecover.Is(orm.OpUpdate, orm.OpRecover))
	assert.False(t, orm.OpInsert.Is(orm.OpUpdate, orm.OpRemove))
	assert.False(t, orm.OpNone.Writes())
	assert.True(t, orm.OpRemove.Writes())
}

func TestPolicyFunc(t *testing.T) {
	deny := errors.New("denied")
	var p orm.Policy = orm.PolicyFunc(func(_ context.Context, c orm.Change) error {
		if c == nil {
			return deny
		}
		return nil
	})
	assert.ErrorIs(t, p.EvalChange(context.Background(), nil), deny)
}
