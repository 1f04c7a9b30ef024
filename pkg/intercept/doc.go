// Package intercept implements the replacement socket calls of a deceived
// process.
//
// The shared object built from cmd/honeywire-agent exports bind, accept,
// accept4, getsockname, read, write, recv, send and close. Each export hands
// the call to a Dispatcher, which delegates to the libc implementation
// through an Originals provider and, around that delegation, follows one
// connection from its listening socket to the first response written on it:
//
//   - bind and getsockname record the listening socket on a deceived port as
//     the tracing root
//   - accept4 marks descriptors accepted from the tracing root as traced
//   - read and recv inspect the request line of a traced descriptor and
//     remember whether it named the watched path
//   - write and send rewrite the first response on a traced descriptor: a
//     header value in place, and the status line when the request named the
//     watched path
//   - close forgets the descriptor
//
// Every decision is taken against one snapshot of the rule book obtained
// with BeginRead. When a reload is in progress the call is passed through
// unchanged. Deception never turns a successful call into a failed one.
//
// Runtime is the process-wide context: it decides at process start whether
// the process is a deception target, builds the book, the descriptor table,
// the reload watcher, metrics and evidence recording, and tears them down
// again.
package intercept
