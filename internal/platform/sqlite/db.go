package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// TxLockMode определяет режим блокировки транзакций SQLite
type TxLockMode string

const (
	// TxLockDeferred - откладывает блокировку до первого чтения/записи (по умолчанию SQLite)
	TxLockDeferred TxLockMode = "DEFERRED"
	// TxLockImmediate - сразу захватывает RESERVED блокировку, read-modify-write не теряет записи
	TxLockImmediate TxLockMode = "IMMEDIATE"
	// TxLockExclusive - немедленно захватывает EXCLUSIVE блокировку
	TxLockExclusive TxLockMode = "EXCLUSIVE"
)

// DBOptions содержит настройки для SQLite базы данных.
type DBOptions struct {
	// ConnMaxLifetime - максимальное время жизни соединения
	ConnMaxLifetime time.Duration
	// MaxOpenConns - максимальное количество открытых соединений
	MaxOpenConns int
	// MaxIdleConns - максимальное количество idle соединений
	MaxIdleConns int
	// PingTimeout - таймаут для проверки соединения при создании БД
	PingTimeout time.Duration
	// WALMode - использовать ли WAL режим
	WALMode bool
	// BusyTimeout - таймаут ожидания при SQLITE_BUSY
	BusyTimeout time.Duration
	// TxLockMode - режим блокировки для BEGIN, применяется драйвером к каждому соединению
	TxLockMode TxLockMode
}

// DefaultDBOptions возвращает настройки по умолчанию для хранилища настроек.
func DefaultDBOptions() DBOptions {
	return DBOptions{
		ConnMaxLifetime: time.Hour,
		MaxOpenConns:    4, // один писатель, несколько читателей
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		BusyTimeout:     5 * time.Second,
		TxLockMode:      TxLockImmediate,
	}
}

// NewDB создает подключение к SQLite с настройками по умолчанию.
func NewDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	return NewDBWithOptions(ctx, dbPath, DefaultDBOptions())
}

// NewDBWithOptions создает подключение к SQLite с заданными параметрами.
func NewDBWithOptions(ctx context.Context, dbPath string, opts DBOptions) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}

// NewInMemoryDB создает in-memory SQLite базу данных для тестов.
// Пул ограничен одним соединением, иначе каждое соединение видит свою БД.
func NewInMemoryDB(ctx context.Context) (*sql.DB, error) {
	opts := DefaultDBOptions()
	opts.WALMode = false // WAL не поддерживается для in-memory БД
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	return NewDBWithOptions(ctx, ":memory:", opts)
}

// buildDSN строит DSN. PRAGMA передаются через _pragma, чтобы драйвер
// применял их к каждому новому соединению пула, а не к одному.
func buildDSN(dbPath string, opts DBOptions) string {
	params := url.Values{}
	if opts.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.WALMode {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	params.Add("_pragma", "synchronous(NORMAL)")
	if opts.TxLockMode != "" && opts.TxLockMode != TxLockDeferred {
		params.Set("_txlock", strings.ToLower(string(opts.TxLockMode)))
	}
	return dbPath + "?" + params.Encode()
}
