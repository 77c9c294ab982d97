package pg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"retrycache/pkg/retry"
)

// connectContext - имя контекста ретраев при ожидании БД.
const connectContext = "postgres_connect"

// WaitOptions содержит политику ожидания готовности БД.
type WaitOptions struct {
	// Policy - ретраи поверх первой попытки ping
	Policy retry.Policy
	// PingTimeout - таймаут для каждой попытки ping
	PingTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultWaitOptions возвращает опции по умолчанию: 10 повторов,
// задержка от 500ms с множителем 1.5 (около минуты в сумме).
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Policy: retry.Policy{
			MaxAttempts:   10,
			InitialDelay:  500 * time.Millisecond,
			BackoffFactor: 1.5,
			Jitter:        100 * time.Millisecond,
		},
		PingTimeout: 5 * time.Second,
	}
}

// WaitForDB ожидает доступности базы данных, повторяя ping через retry.Executor.
func WaitForDB(ctx context.Context, dsn string, opts WaitOptions) error {
	exec := retry.New(retry.Static(opts.Policy), retry.WithLogger(opts.Logger))

	var rep retry.Report
	err := exec.Do(ctx, connectContext, func(ctx context.Context, _ int) error {
		return pingDatabase(ctx, dsn, opts.PingTimeout)
	}, retry.WithReport(&rep))
	if err != nil {
		return fmt.Errorf("database not available after %d attempts: %w", rep.Attempts, err)
	}
	return nil
}

// HealthCheckPool проверяет пул: ping и простой запрос.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}
	return nil
}

// pingDatabase выполняет пинг БД через временный пул.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
