// Package parser turns honeyaml documents into honeywire.Config values.
//
// Parsing is split in two layers. An EventSource yields a flat stream of
// YAML events (stream, document, mapping, sequence, scalar, alias) in the
// order libyaml would emit them. The Machine consumes those events and
// enforces the honeyaml grammar with an explicit state machine:
//
//	Empty -> NewType -> Honeywire -> Operations -> Condition
//
// A mapping may only open one level deeper when the key immediately before it
// was an opener (honeywire, operations, condition). Every mapping end moves
// one level up. Scalars are keys unless the previous key is still waiting
// for its value.
//
// The YAML layer is provided by NewYAMLEvents, which walks a gopkg.in/yaml.v3
// node tree. Tests drive the Machine with hand-built event slices.
//
// Usage:
//
//	cfg, err := parser.ParseFile("/var/opt/honeyaml.yaml")
//	if err != nil {
//		var perr *honeywire.ParseError
//		if errors.As(err, &perr) {
//			log.Printf("rejected: %v", perr.Code)
//		}
//	}
package parser
