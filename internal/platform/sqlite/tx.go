package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"retrycache/pkg/retry"
)

// busyContext - имя контекста ретраев при SQLITE_BUSY.
const busyContext = "sqlite_busy"

// txKey используется как ключ для хранения транзакции в context.Context
type txKey struct{}

// Querier объединяет методы выполнения запросов, общие для БД и транзакции.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// ErrNestedTx возвращается при попытке открыть транзакцию внутри транзакции.
var ErrNestedTx = errors.New("nested transactions are not supported by SQLite")

// BusyPolicy возвращает политику повторов на SQLITE_BUSY по умолчанию:
// 4 повтора с задержкой от 10ms, удваивая её.
func BusyPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   4,
		InitialDelay:  10 * time.Millisecond,
		BackoffFactor: 2,
	}
}

// TxRunner выполняет функцию внутри транзакции с гарантированным
// коммитом или откатом и повторяет попытку на SQLITE_BUSY.
type TxRunner struct {
	DB   *sql.DB
	busy *retry.Executor
}

// NewTxRunner создает TxRunner с BusyPolicy. Режим блокировки задаётся в DSN
// (см. DBOptions.TxLockMode).
func NewTxRunner(db *sql.DB) *TxRunner {
	return NewTxRunnerWithPolicy(db, BusyPolicy())
}

// NewTxRunnerWithPolicy создает TxRunner с заданной политикой повторов.
func NewTxRunnerWithPolicy(db *sql.DB, p retry.Policy) *TxRunner {
	return &TxRunner{DB: db, busy: retry.New(retry.Static(p))}
}

// WithinTx выполняет fn внутри транзакции. Ошибка из fn откатывает транзакцию.
// Внутри fn запросы выполняются через GetQuerier(ctx).
// Повторяются только ошибки SQLITE_BUSY/SQLITE_LOCKED.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := SqlTx(ctx); ok {
		return ErrNestedTx
	}
	return r.busy.Do(ctx, busyContext, func(ctx context.Context, _ int) error {
		return r.executeTx(ctx, fn)
	}, retry.WithRetryIf(IsBusyError))
}

// SqlTx извлекает активную транзакцию из контекста.
func SqlTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// GetQuerier возвращает активную транзакцию из контекста или основное подключение.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := SqlTx(ctx); ok {
		return tx
	}
	return r.DB
}

// executeTx выполняет одну попытку транзакции.
func (r *TxRunner) executeTx(ctx context.Context, fn func(context.Context) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IsBusyError проверяет, является ли ошибка SQLITE_BUSY/SQLITE_LOCKED.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "database table is locked")
}
