package honeywire

import "fmt"

// ErrorCode classifies a honeyaml parse failure.
type ErrorCode int

const (
	KeyNotFound ErrorCode = iota + 1
	KeyNotImplemented
	ConfigCapacityExceeded
	OperationsCapacityExceeded
	ConditionsCapacityExceeded
	UnexpectedIndentRight
	UnexpectedIndentLeft
	UnsupportedEncoding
	MissingValue
	KeyMisplaced
	SourceError
)

var codeNames = map[ErrorCode]string{
	KeyNotFound:                "key not found",
	KeyNotImplemented:          "key not implemented",
	ConfigCapacityExceeded:     "too many honeywires",
	OperationsCapacityExceeded: "too many operations",
	ConditionsCapacityExceeded: "too many conditions",
	UnexpectedIndentRight:      "unexpected indentation",
	UnexpectedIndentLeft:       "unexpected dedent",
	UnsupportedEncoding:        "unsupported encoding",
	MissingValue:               "missing value",
	KeyMisplaced:               "key not allowed here",
	SourceError:                "event source error",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", int(c))
}

// ParseError describes why a honeyaml document was rejected.
type ParseError struct {
	Code ErrorCode
	// Detail is usually the offending key or scalar.
	Detail string
	// Line is the 1-based source line, or 0 when unknown.
	Line  int
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := "honeyaml: " + e.Code.String()
	if e.Detail != "" {
		msg += fmt.Sprintf(" %q", e.Detail)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is matches another *ParseError with the same code, so callers can write
// errors.Is(err, &ParseError{Code: KeyNotFound}).
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}
