// Package honeywire defines the in-memory model of a honeyaml deception
// configuration.
//
// A Config holds up to MaxHoneywires honeywires. Each Honeywire carries up to
// MaxOperations operations and each Operation up to MaxConditions conditions.
// The capacities are enforced by the Add* methods, which the parser uses while
// building a configuration; a Config is never mutated after it has been handed
// to the book.
//
// # Kinds
//
// Two honeywire kinds are supported:
//
//   - http_header: replace the value of one response header in place
//   - response_code: replace the status line of responses to one request path
//
// # Example
//
//	honeywire:
//	  kind: http_header
//	  enabled: yes
//	  name: server-banner
//	  operations:
//	    op: replace_inplace
//	    key: Server
//	    value: nginx/1.18.0
package honeywire
