// Package rewrite edits HTTP/1.x response buffers on their way to the socket.
//
// Only two edits exist: replacing the status line (which changes the buffer
// length and therefore always allocates) and replacing one header value in
// place (which never changes the length). An in-place replacement that does
// not fit the original value returns ErrReplacementTooWide and leaves the
// buffer untouched; callers fall back to ReplaceHeader, which allocates.
//
// Nothing here parses HTTP beyond the first line and one header line.
package rewrite
