package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retrycache/pkg/retry"
)

func newRunnerWithTable(t *testing.T) *TxRunner {
	t.Helper()
	ctx := context.Background()
	db, err := NewInMemoryDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)")
	require.NoError(t, err)
	return NewTxRunner(db)
}

func TestTxRunner_WithinTx_Commit(t *testing.T) {
	ctx := context.Background()
	runner := newRunnerWithTable(t)

	err := runner.WithinTx(ctx, func(ctx context.Context) error {
		tx, ok := SqlTx(ctx)
		assert.True(t, ok)
		assert.Equal(t, tx, runner.GetQuerier(ctx))
		_, err := runner.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO test (value) VALUES (?)", "a")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, runner.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestTxRunner_WithinTx_Rollback(t *testing.T) {
	ctx := context.Background()
	runner := newRunnerWithTable(t)
	testErr := errors.New("test error")

	err := runner.WithinTx(ctx, func(ctx context.Context) error {
		_, err := runner.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO test (value) VALUES (?)", "a")
		require.NoError(t, err)
		return testErr
	})
	assert.ErrorIs(t, err, testErr)

	var count int
	require.NoError(t, runner.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM test").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestTxRunner_NestedTxRejected(t *testing.T) {
	ctx := context.Background()
	runner := newRunnerWithTable(t)

	err := runner.WithinTx(ctx, func(ctx context.Context) error {
		return runner.WithinTx(ctx, func(context.Context) error { return nil })
	})
	assert.ErrorIs(t, err, ErrNestedTx)
}

func TestTxRunner_GetQuerierOutsideTx(t *testing.T) {
	runner := newRunnerWithTable(t)
	assert.Equal(t, runner.DB, runner.GetQuerier(context.Background()))
}

func TestIsBusyError(t *testing.T) {
	assert.False(t, IsBusyError(nil))
	assert.True(t, IsBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusyError(errors.New("database table is locked")))
	assert.False(t, IsBusyError(errors.New("no such table: kv")))
}

func TestTxRunner_DoesNotRetryOtherErrors(t *testing.T) {
	ctx := context.Background()
	runner := newRunnerWithTable(t)

	calls := 0
	err := runner.WithinTx(ctx, func(context.Context) error {
		calls++
		return errors.New("constraint failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTxRunner_RetriesBusy(t *testing.T) {
	ctx := context.Background()
	runner := newRunnerWithTable(t)

	calls := 0
	err := runner.WithinTx(ctx, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestTxRunner_BusyRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	db, err := NewInMemoryDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	runner := NewTxRunnerWithPolicy(db, retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 1})

	calls := 0
	err = runner.WithinTx(ctx, func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	assert.True(t, IsBusyError(err))
	assert.Equal(t, 3, calls)
}

func TestBusyPolicy(t *testing.T) {
	p := BusyPolicy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 2.0, p.BackoffFactor)
	assert.Equal(t, p, p.Normalize())
}
