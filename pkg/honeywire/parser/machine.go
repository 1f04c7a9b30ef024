package parser

import (
	"errors"
	"io"

	"mercator-hq/honeywire/pkg/honeywire"
)

// State is the nesting level the machine is currently at.
type State int

const (
	StateEmpty State = iota
	StateNewType
	StateHoneywire
	StateOperations
	StateCondition
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateNewType:
		return "new-type"
	case StateHoneywire:
		return "honeywire"
	case StateOperations:
		return "operations"
	case StateCondition:
		return "condition"
	default:
		return "invalid"
	}
}

// attribute is a honeyaml key.
type attribute int

const (
	attrNone attribute = iota
	attrHoneywire
	attrKind
	attrEnabled
	attrName
	attrDescription
	attrOperations
	attrOp
	attrKey
	attrValue
	attrCondition
	attrPath
)

var attributes = map[string]attribute{
	"honeywire":   attrHoneywire,
	"kind":        attrKind,
	"enabled":     attrEnabled,
	"name":        attrName,
	"description": attrDescription,
	"operations":  attrOperations,
	"op":          attrOp,
	"key":         attrKey,
	"value":       attrValue,
	"condition":   attrCondition,
	"path":        attrPath,
}

// owners maps each key to the only state it may appear in.
var owners = map[attribute]State{
	attrHoneywire:   StateNewType,
	attrKind:        StateHoneywire,
	attrEnabled:     StateHoneywire,
	attrName:        StateHoneywire,
	attrDescription: StateHoneywire,
	attrOperations:  StateHoneywire,
	attrOp:          StateOperations,
	attrKey:         StateOperations,
	attrValue:       StateOperations,
	attrCondition:   StateOperations,
	attrPath:        StateCondition,
}

func (a attribute) opener() bool {
	return a == attrHoneywire || a == attrOperations || a == attrCondition
}

type action int

const (
	actFail action = iota
	actEnter
	actDescend
	actSibling
	actAscend
	actKey
	actPushSequence
	actPopSequence
	actCheckEncoding
	actFinish
	actIgnore
)

type transitionKey struct {
	state   State
	kind    EventKind
	pending bool
}

type transition struct {
	act  action
	next State
	code honeywire.ErrorCode
}

// transitions is the full grammar. A missing row with pending set means the
// opener key got something other than a nested block; a missing row without
// pending is a structural error.
var transitions = buildTransitions()

func buildTransitions() map[transitionKey]transition {
	t := map[transitionKey]transition{
		{StateEmpty, EventMappingStart, false}:      {act: actEnter, next: StateNewType},
		{StateNewType, EventMappingStart, true}:     {act: actDescend, next: StateHoneywire},
		{StateHoneywire, EventMappingStart, true}:   {act: actDescend, next: StateOperations},
		{StateOperations, EventMappingStart, true}:  {act: actDescend, next: StateCondition},
		{StateNewType, EventMappingStart, false}:    {act: actSibling, next: StateHoneywire},
		{StateHoneywire, EventMappingStart, false}:  {act: actSibling, next: StateOperations},
		{StateOperations, EventMappingStart, false}: {act: actSibling, next: StateCondition},
		{StateCondition, EventMappingStart, false}:  {act: actFail, code: honeywire.UnexpectedIndentRight},

		{StateEmpty, EventMappingEnd, false}:      {act: actFail, code: honeywire.UnexpectedIndentLeft},
		{StateNewType, EventMappingEnd, false}:    {act: actAscend, next: StateEmpty},
		{StateHoneywire, EventMappingEnd, false}:  {act: actAscend, next: StateNewType},
		{StateOperations, EventMappingEnd, false}: {act: actAscend, next: StateHoneywire},
		{StateCondition, EventMappingEnd, false}:  {act: actAscend, next: StateOperations},
	}

	for s := StateEmpty; s <= StateCondition; s++ {
		t[transitionKey{s, EventScalar, false}] = transition{act: actKey, next: s}
		t[transitionKey{s, EventSequenceEnd, false}] = transition{act: actPopSequence, next: s}
		t[transitionKey{s, EventStreamStart, false}] = transition{act: actCheckEncoding, next: s}
		t[transitionKey{s, EventStreamEnd, false}] = transition{act: actFinish, next: s}
		t[transitionKey{s, EventDocumentStart, false}] = transition{act: actIgnore, next: s}
		t[transitionKey{s, EventDocumentEnd, false}] = transition{act: actIgnore, next: s}
		t[transitionKey{s, EventAlias, false}] = transition{act: actIgnore, next: s}
		for _, pending := range []bool{false, true} {
			t[transitionKey{s, EventSequenceStart, pending}] = transition{act: actPushSequence, next: s}
		}
	}
	return t
}

// frame remembers which opener introduced a sequence and at what level.
type frame struct {
	opener attribute
	owner  State
}

// Machine applies honeyaml events to a Config under construction.
type Machine struct {
	cfg      honeywire.Config
	state    State
	pending  attribute
	awaiting attribute
	frames   []frame
	done     bool
}

// NewMachine returns a machine in the Empty state.
func NewMachine() *Machine {
	return &Machine{}
}

// State returns the current nesting level.
func (m *Machine) State() State { return m.state }

// Pending reports whether the last key opened a nested block that has not
// started yet.
func (m *Machine) Pending() bool { return m.pending != attrNone }

// Done reports whether stream-end has been consumed.
func (m *Machine) Done() bool { return m.done }

// Config returns the configuration built so far.
func (m *Machine) Config() *honeywire.Config { return &m.cfg }

// Apply feeds one event to the machine.
func (m *Machine) Apply(ev Event) error {
	if m.done {
		return nil
	}

	if m.awaiting != attrNone {
		attr := m.awaiting
		m.awaiting = attrNone
		if ev.Kind != EventScalar {
			return m.fail(honeywire.MissingValue, keyName(attr), ev)
		}
		return m.assign(attr, ev)
	}

	tr, ok := transitions[transitionKey{m.state, ev.Kind, m.pending != attrNone}]
	if !ok {
		code := honeywire.UnexpectedIndentRight
		if m.pending != attrNone {
			code = honeywire.MissingValue
		}
		return m.fail(code, ev.Value, ev)
	}

	switch tr.act {
	case actFail:
		return m.fail(tr.code, ev.Value, ev)
	case actEnter, actAscend:
		m.state = tr.next
	case actDescend:
		m.pending = attrNone
		m.state = tr.next
	case actSibling:
		top, ok := m.topFrame()
		if !ok || top.opener == attrNone || top.owner != m.state {
			return m.fail(honeywire.UnexpectedIndentRight, "", ev)
		}
		if err := m.open(top.opener, ev); err != nil {
			return err
		}
		m.state = tr.next
	case actKey:
		return m.key(ev)
	case actPushSequence:
		m.frames = append(m.frames, frame{opener: m.pending, owner: m.state})
	case actPopSequence:
		if len(m.frames) > 0 {
			m.frames = m.frames[:len(m.frames)-1]
		}
	case actCheckEncoding:
		if ev.Encoding != EncodingUTF8 {
			return m.fail(honeywire.UnsupportedEncoding, ev.Encoding.String(), ev)
		}
	case actFinish:
		m.done = true
	case actIgnore:
	}
	return nil
}

func (m *Machine) topFrame() (frame, bool) {
	if len(m.frames) == 0 {
		return frame{}, false
	}
	return m.frames[len(m.frames)-1], true
}

func (m *Machine) key(ev Event) error {
	attr, ok := attributes[ev.Value]
	if !ok {
		return m.fail(honeywire.KeyNotFound, ev.Value, ev)
	}
	if owners[attr] != m.state {
		return m.fail(honeywire.KeyMisplaced, ev.Value, ev)
	}
	if attr.opener() {
		if err := m.open(attr, ev); err != nil {
			return err
		}
		m.pending = attr
		return nil
	}
	m.awaiting = attr
	return nil
}

// open allocates the entry an opener key introduces.
func (m *Machine) open(attr attribute, ev Event) error {
	var err error
	switch attr {
	case attrHoneywire:
		_, err = m.cfg.AddHoneywire()
	case attrOperations:
		_, err = m.currentWire().AddOperation()
	case attrCondition:
		_, err = m.currentOperation().AddCondition()
	}
	if err != nil {
		var perr *honeywire.ParseError
		if errors.As(err, &perr) {
			perr.Line = ev.Line
		}
		return err
	}
	return nil
}

func (m *Machine) assign(attr attribute, ev Event) error {
	switch attr {
	case attrKind:
		kind, ok := honeywire.ParseKind(ev.Value)
		if !ok {
			return m.fail(honeywire.KeyNotImplemented, ev.Value, ev)
		}
		m.currentWire().Kind = kind
	case attrEnabled:
		m.currentWire().Enabled = honeywire.ParseBool(ev.Value)
	case attrName:
		m.currentWire().Name = ev.Value
	case attrDescription:
		m.currentWire().Description = ev.Value
	case attrOp:
		op, ok := honeywire.ParseOperationType(ev.Value)
		if !ok {
			return m.fail(honeywire.KeyNotImplemented, ev.Value, ev)
		}
		m.currentOperation().Type = op
	case attrKey:
		m.currentOperation().Key = ev.Value
	case attrValue:
		m.currentOperation().Value = ev.Value
	case attrPath:
		m.currentCondition().Path = ev.Value
	default:
		return m.fail(honeywire.KeyNotImplemented, keyName(attr), ev)
	}
	return nil
}

// The current* accessors return the innermost open entry. Key placement
// guarantees the entry exists by the time a key for it is accepted.

func (m *Machine) currentWire() *honeywire.Honeywire {
	return &m.cfg.Honeywires[len(m.cfg.Honeywires)-1]
}

func (m *Machine) currentOperation() *honeywire.Operation {
	w := m.currentWire()
	return &w.Operations[len(w.Operations)-1]
}

func (m *Machine) currentCondition() *honeywire.Condition {
	op := m.currentOperation()
	return &op.Conditions[len(op.Conditions)-1]
}

func (m *Machine) fail(code honeywire.ErrorCode, detail string, ev Event) error {
	return &honeywire.ParseError{Code: code, Detail: detail, Line: ev.Line}
}

func keyName(attr attribute) string {
	for name, a := range attributes {
		if a == attr {
			return name
		}
	}
	return ""
}

// Parse drains src through a fresh Machine. On any error no configuration is
// returned.
func Parse(src EventSource) (*honeywire.Config, error) {
	m := NewMachine()
	for !m.Done() {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil, &honeywire.ParseError{Code: honeywire.SourceError, Cause: io.ErrUnexpectedEOF}
		}
		if err != nil {
			return nil, &honeywire.ParseError{Code: honeywire.SourceError, Cause: err}
		}
		if err := m.Apply(ev); err != nil {
			return nil, err
		}
	}
	return m.Config(), nil
}
