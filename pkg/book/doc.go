// Package book holds the active honeywire configuration of a process.
//
// The Book keeps exactly one Pair (configuration plus derived fast-path
// model). Intercepted syscalls read it through BeginRead and EndRead; the
// reload watcher replaces it through Publish.
//
// Publish has writer preference: once it starts, BeginRead fails until the
// swap is done, so the syscall that asked simply skips deception. Publish
// then waits for in-flight readers to finish. The wait is bounded by the
// book's timeout. When the timeout elapses the new pair is discarded but the
// last-update time still moves forward, so an unchanged file is not
// re-published on every poll.
//
// Readers never block. Waiting writers are woken by the last EndRead rather
// than by polling the reader count.
package book
