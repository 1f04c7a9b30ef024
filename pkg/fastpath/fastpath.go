// Package fastpath derives the per-syscall view of a honeywire configuration.
//
// The interception layer consults a Model on every bind, accept, read and
// write of the host process, so the model is a flat set of flags and strings
// rather than the nested honeywire tree.
package fastpath

import "mercator-hq/honeywire/pkg/honeywire"

// AcceptGroup covers accept and accept4.
type AcceptGroup struct {
	Enabled bool `json:"enabled"`
}

// ReceiveGroup covers read and recv.
type ReceiveGroup struct {
	Enabled bool `json:"enabled"`
	// MatchingPath marks a request as an admin-path request when its request
	// line contains it.
	MatchingPath string `json:"matching_path,omitempty"`
}

// SendGroup covers write and send.
type SendGroup struct {
	Enabled bool `json:"enabled"`

	ReplaceHeader bool   `json:"replace_header"`
	AttributeKey  string `json:"attribute_key,omitempty"`
	Replacement   string `json:"replacement,omitempty"`

	ReplaceStatus bool   `json:"replace_status"`
	StatusText    string `json:"status_text,omitempty"`
}

// Model is the read-only summary of a Config. A Model is never modified
// after Derive returns it.
type Model struct {
	Accept  AcceptGroup  `json:"accept"`
	Receive ReceiveGroup `json:"receive"`
	Send    SendGroup    `json:"send"`

	// Sources names the honeywires that contributed, keyed by kind.
	Sources map[honeywire.Kind]string `json:"-"`
}

// Derive builds a Model from cfg. Only the first enabled honeywire of each
// kind contributes; disabled wires, wires of kind none and wires missing the
// operation or condition their kind needs are skipped. A nil cfg yields a
// model with every group disabled.
func Derive(cfg *honeywire.Config) *Model {
	m := &Model{Sources: make(map[honeywire.Kind]string)}
	for _, w := range cfg.Enabled() {
		if _, seen := m.Sources[w.Kind]; seen {
			continue
		}

		switch w.Kind {
		case honeywire.KindHTTPHeader:
			if len(w.Operations) == 0 {
				continue
			}
			op := w.Operations[0]
			m.Accept.Enabled = true
			m.Send.Enabled = true
			m.Send.ReplaceHeader = true
			m.Send.AttributeKey = op.Key
			m.Send.Replacement = op.Value

		case honeywire.KindResponseCode:
			if len(w.Operations) == 0 || len(w.Operations[0].Conditions) == 0 {
				continue
			}
			op := w.Operations[0]
			m.Accept.Enabled = true
			m.Receive.Enabled = true
			m.Receive.MatchingPath = op.Conditions[0].Path
			m.Send.Enabled = true
			m.Send.ReplaceStatus = true
			m.Send.StatusText = op.Value

		default:
			continue
		}
		m.Sources[w.Kind] = w.Name
	}
	return m
}

// Equal reports whether two models would steer interception identically.
func (m *Model) Equal(o *Model) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Accept == o.Accept && m.Receive == o.Receive && m.Send == o.Send
}

// Source returns the name of the honeywire that configured kind.
func (m *Model) Source(kind honeywire.Kind) string {
	if m == nil {
		return ""
	}
	return m.Sources[kind]
}
