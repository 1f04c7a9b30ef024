// Package storage provides storage backends for deception events.
//
// # Storage Backends
//
//   - SQLite: durable store shared by every deceived process on a host
//   - Memory: in-process store for tests and dry runs
//
// # SQLite Backend
//
// The SQLite backend uses modernc.org/sqlite, a cgo-free driver, so its file
// I/O never passes through interposed libc functions. It provides:
//
//   - WAL mode for concurrent writers from several processes
//   - Busy timeout applied to every pooled connection
//   - Indexes on event time, kind and honeywire
//
// Event times are stored as Unix nanoseconds so range filters compare
// integers rather than formatted strings.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:        "/var/lib/honeywire/evidence.db",
//	    WALMode:     true,
//	    BusyTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	events, err := store.Query(ctx, &evidence.Query{
//	    Kind:  evidence.KindAdminPath,
//	    Limit: 50,
//	})
package storage
