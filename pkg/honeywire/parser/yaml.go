package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"mercator-hq/honeywire/pkg/honeywire"
)

// NewYAMLEvents decodes data with yaml.v3 and flattens every document into
// the event order libyaml would produce. Input that is not UTF-8 yields a
// stream-start event carrying the detected encoding and nothing else, so the
// Machine can reject it.
func NewYAMLEvents(data []byte) (*SliceSource, error) {
	enc := detectEncoding(data)
	if enc != EncodingUTF8 {
		return NewSliceSource(
			Event{Kind: EventStreamStart, Encoding: enc},
			Event{Kind: EventStreamEnd},
		), nil
	}

	events := []Event{{Kind: EventStreamStart, Encoding: EncodingUTF8}}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &honeywire.ParseError{
				Code:  honeywire.SourceError,
				Cause: fmt.Errorf("failed to decode YAML: %w", err),
			}
		}
		events = flatten(events, &doc)
	}

	events = append(events, Event{Kind: EventStreamEnd})
	return NewSliceSource(events...), nil
}

func flatten(events []Event, n *yaml.Node) []Event {
	switch n.Kind {
	case yaml.DocumentNode:
		events = append(events, Event{Kind: EventDocumentStart, Line: n.Line})
		for _, c := range n.Content {
			if isEmptyScalar(c) {
				// "---" alone or a comment-only file carries no honeywires.
				continue
			}
			events = flatten(events, c)
		}
		events = append(events, Event{Kind: EventDocumentEnd, Line: n.Line})
	case yaml.MappingNode:
		events = append(events, Event{Kind: EventMappingStart, Line: n.Line})
		for _, c := range n.Content {
			events = flatten(events, c)
		}
		events = append(events, Event{Kind: EventMappingEnd, Line: n.Line})
	case yaml.SequenceNode:
		events = append(events, Event{Kind: EventSequenceStart, Line: n.Line})
		for _, c := range n.Content {
			events = flatten(events, c)
		}
		events = append(events, Event{Kind: EventSequenceEnd, Line: n.Line})
	case yaml.ScalarNode:
		events = append(events, Event{Kind: EventScalar, Value: n.Value, Line: n.Line})
	case yaml.AliasNode:
		events = append(events, Event{Kind: EventAlias, Value: n.Value, Line: n.Line})
	}
	return events
}

func isEmptyScalar(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null" && n.Value == ""
}

// detectEncoding inspects the byte order mark. Without one, the input must
// be valid UTF-8.
func detectEncoding(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return EncodingUTF32BE
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return EncodingUTF32LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	}
	if !utf8.Valid(data) {
		return EncodingUnknown
	}
	return EncodingUTF8
}
