// Package evidence records the deceptions the agent applies.
//
// Every time a honeywire alters a response, or a request for a watched path
// is seen, an Event is produced. Events tell an operator which processes
// were probed, on which descriptor, and what the prober was shown.
//
// # Architecture
//
//  1. Recorder - accepts events from intercepted calls without blocking
//  2. Storage backend - persists events (SQLite or memory)
//  3. Retention - prunes events by age and count on a cron schedule
//  4. Export - writes events as JSON or CSV for honeyctl
//
// # Recording Flow
//
//	write(fd, "HTTP/1.1 200 OK\r\nServer: gunicorn\r\n...")
//	     ↓
//	header replaced in place
//	     ↓
//	Recorder.Record (non-blocking, dropped when the queue is full)
//	     ↓
//	background worker
//	     ↓
//	SQLite (WAL mode, shared by all deceived processes)
//
// The SQLite backend uses a pure Go driver. A cgo driver would route its
// file I/O through the very libc functions the agent interposes.
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
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	rec.Record(&evidence.Event{
//	    Kind:      evidence.KindHeaderReplaced,
//	    FD:        7,
//	    Honeywire: "server-banner",
//	    Detail:    "Server: nginx/1.18.0",
//	})
package evidence
