package honeywire

import "strings"

// Capacity limits for a parsed configuration.
const (
	MaxHoneywires = 5
	MaxOperations = 5
	MaxConditions = 5
)

// Kind identifies what a honeywire deceives.
type Kind int

const (
	// KindNone is the zero kind of a honeywire still under construction.
	KindNone Kind = iota
	// KindHTTPHeader rewrites a response header value.
	KindHTTPHeader
	// KindResponseCode rewrites the response status line.
	KindResponseCode
)

var kindNames = map[string]Kind{
	"http_header":   KindHTTPHeader,
	"response_code": KindResponseCode,
}

// String returns the honeyaml spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindHTTPHeader:
		return "http_header"
	case KindResponseCode:
		return "response_code"
	default:
		return "none"
	}
}

// MarshalText renders the kind by its honeyaml name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind maps a honeyaml kind name to a Kind.
func ParseKind(s string) (Kind, bool) {
	k, ok := kindNames[s]
	return k, ok
}

// OperationType identifies the rewrite an operation performs.
type OperationType int

const (
	OperationNone OperationType = iota
	OperationReplaceInplace
	OperationReplaceStatusCode
)

var operationNames = map[string]OperationType{
	"replace_inplace":     OperationReplaceInplace,
	"replace_status_code": OperationReplaceStatusCode,
}

func (o OperationType) String() string {
	switch o {
	case OperationReplaceInplace:
		return "replace_inplace"
	case OperationReplaceStatusCode:
		return "replace_status_code"
	default:
		return "none"
	}
}

func (o OperationType) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ParseOperationType maps a honeyaml op name to an OperationType.
func ParseOperationType(s string) (OperationType, bool) {
	o, ok := operationNames[s]
	return o, ok
}

// ParseBool reports whether s is one of the truthy honeyaml spellings
// (y, yes, true, on), compared case-insensitively. Anything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes", "true", "on":
		return true
	}
	return false
}

// Condition restricts an operation to requests for one path.
type Condition struct {
	Path string `json:"path"`
}

// Operation is a single rewrite attached to a honeywire.
type Operation struct {
	Type       OperationType `json:"op"`
	Key        string        `json:"key,omitempty"`
	Value      string        `json:"value,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty"`
}

// AddCondition appends an empty condition and returns a pointer to it.
func (o *Operation) AddCondition() (*Condition, error) {
	if len(o.Conditions) >= MaxConditions {
		return nil, &ParseError{Code: ConditionsCapacityExceeded, Detail: "condition"}
	}
	o.Conditions = append(o.Conditions, Condition{})
	return &o.Conditions[len(o.Conditions)-1], nil
}

// Honeywire is one deception rule.
type Honeywire struct {
	Kind        Kind        `json:"kind"`
	Enabled     bool        `json:"enabled"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Operations  []Operation `json:"operations,omitempty"`
}

// AddOperation appends an empty operation and returns a pointer to it.
func (h *Honeywire) AddOperation() (*Operation, error) {
	if len(h.Operations) >= MaxOperations {
		return nil, &ParseError{Code: OperationsCapacityExceeded, Detail: "operations"}
	}
	h.Operations = append(h.Operations, Operation{})
	return &h.Operations[len(h.Operations)-1], nil
}

// Config is a complete honeyaml configuration.
type Config struct {
	Honeywires []Honeywire `json:"honeywires"`
}

// AddHoneywire appends an empty honeywire and returns a pointer to it.
func (c *Config) AddHoneywire() (*Honeywire, error) {
	if len(c.Honeywires) >= MaxHoneywires {
		return nil, &ParseError{Code: ConfigCapacityExceeded, Detail: "honeywire"}
	}
	c.Honeywires = append(c.Honeywires, Honeywire{})
	return &c.Honeywires[len(c.Honeywires)-1], nil
}

// Enabled returns the honeywires that are switched on, in file order.
func (c *Config) Enabled() []Honeywire {
	if c == nil {
		return nil
	}
	var out []Honeywire
	for _, h := range c.Honeywires {
		if h.Enabled {
			out = append(out, h)
		}
	}
	return out
}
