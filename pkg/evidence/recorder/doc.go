// Package recorder queues deception events for storage without blocking the
// intercepted call that produced them.
//
// # Recording Flow
//
//  1. An intercepted write or read applies a honeywire
//  2. The dispatcher calls Record with the event
//  3. Record stamps ID, time and process identity, then enqueues it
//  4. A background worker writes the event to the storage backend
//
// If the queue is full the event is dropped and counted. An intercepted
// syscall never waits on storage.
//
// # Basic Usage
//
//	rec := recorder.NewRecorder(store, &recorder.Config{
//	    Enabled:      true,
//	    AsyncBuffer:  256,
//	    WriteTimeout: 2 * time.Second,
//	    Process:      os.Args[0],
//	})
//	defer rec.Close()
//
//	rec.Record(&evidence.Event{Kind: evidence.KindAdminPath, FD: 7, Path: "/admin"})
package recorder
