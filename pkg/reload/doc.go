// Package reload keeps the rule book in step with the honeyaml file.
//
// A Watcher checks the file on a fixed interval. When its modification time
// is newer than the book's last update, the file is parsed, the fast-path
// model derived, and the pair published. Filesystem notifications, when
// enabled, trigger an extra check right after a change; the interval check
// stays authoritative.
//
// Failures never stop the watcher:
//
//   - IOError: the file is missing or unreadable; retried next tick
//   - ParseError: the file is malformed; the old rules stay active and the
//     same file is retried next tick
//   - TimeoutError: in-flight calls did not release the book in time; the
//     new rules are discarded until the file changes again
package reload
