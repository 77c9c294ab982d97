// Package sqlite реализует хранилище настроек (settings.Store) на SQLite.
//
// Основные возможности:
//   - Подключение с PRAGMA, применяемыми к каждому соединению пула
//   - TxRunner с повтором на SQLITE_BUSY
//   - Встроенные миграции golang-migrate (таблица kv)
//   - KVStore: атомарный Mutate в IMMEDIATE транзакции
//
// # Быстрый старт
//
//	store, err := sqlite.OpenKVStore(ctx, "data/settings.db")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	learning := learning.New(store)
//
// # Транзакции
//
// Режим блокировки задаётся в DBOptions.TxLockMode и передаётся драйверу
// через DSN (_txlock), поэтому обычный BeginTx открывает BEGIN IMMEDIATE:
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		q := runner.GetQuerier(ctx)
//		_, err := q.ExecContext(ctx, "UPDATE kv SET value = ? WHERE key = ?", v, k)
//		return err
//	})
//
// SQLITE_BUSY повторяется через retry.Executor по BusyPolicy, остальные
// ошибки возвращаются сразу.
package sqlite
