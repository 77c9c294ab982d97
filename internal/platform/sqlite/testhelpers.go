package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// TestDB представляет тестовую SQLite базу данных с применённой схемой.
type TestDB struct {
	DB    *sql.DB
	Path  string
	Store *KVStore
}

// NewTestDB создает файловую БД во временной директории теста и применяет миграции.
// БД закрывается автоматически после завершения теста.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.db")
	store, err := OpenKVStore(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to create test DB: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{DB: store.DB(), Path: path, Store: store}
}

// CountRows возвращает количество строк в таблице.
func (tdb *TestDB) CountRows(t *testing.T, tableName string) int {
	t.Helper()

	var count int
	row := tdb.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+tableName)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to count rows in table %s: %v", tableName, err)
	}
	return count
}

// TableExists проверяет существование таблицы.
func (tdb *TestDB) TableExists(t *testing.T, tableName string) bool {
	t.Helper()

	var count int
	row := tdb.DB.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tableName)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	return count > 0
}
