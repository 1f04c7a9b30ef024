package parser

import (
	"fmt"
	"io"
)

// EventKind is the type of a YAML event.
type EventKind int

const (
	EventNone EventKind = iota
	EventStreamStart
	EventStreamEnd
	EventDocumentStart
	EventDocumentEnd
	EventMappingStart
	EventMappingEnd
	EventSequenceStart
	EventSequenceEnd
	EventScalar
	EventAlias
)

var eventNames = [...]string{
	EventNone:          "none",
	EventStreamStart:   "stream-start",
	EventStreamEnd:     "stream-end",
	EventDocumentStart: "document-start",
	EventDocumentEnd:   "document-end",
	EventMappingStart:  "mapping-start",
	EventMappingEnd:    "mapping-end",
	EventSequenceStart: "sequence-start",
	EventSequenceEnd:   "sequence-end",
	EventScalar:        "scalar",
	EventAlias:         "alias",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Encoding is the character encoding declared by a stream-start event.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingUTF8
	EncodingUTF16LE
	EncodingUTF16BE
	EncodingUTF32LE
	EncodingUTF32BE
)

func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "UTF-8"
	case EncodingUTF16LE:
		return "UTF-16LE"
	case EncodingUTF16BE:
		return "UTF-16BE"
	case EncodingUTF32LE:
		return "UTF-32LE"
	case EncodingUTF32BE:
		return "UTF-32BE"
	default:
		return "unknown"
	}
}

// Event is a single YAML event.
type Event struct {
	Kind EventKind
	// Value is set for scalars and aliases.
	Value string
	// Encoding is set for stream-start.
	Encoding Encoding
	Line     int
}

// EventSource yields YAML events in document order. Next returns io.EOF once
// the stream is exhausted.
type EventSource interface {
	Next() (Event, error)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
	pos    int
}

// NewSliceSource returns an EventSource over events.
func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements EventSource.
func (s *SliceSource) Next() (Event, error) {
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Len returns the number of events not yet consumed.
func (s *SliceSource) Len() int {
	return len(s.events) - s.pos
}
