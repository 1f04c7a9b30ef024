package reload

import (
	"fmt"
	"time"
)

// IOError means the honeyaml file could not be examined or read.
type IOError struct {
	Path  string
	Op    string
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("honeyaml %s %q: %v", e.Op, e.Path, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }

// ParseError means the honeyaml file was read but rejected.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("honeyaml %q rejected: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// TimeoutError means a parsed configuration was discarded because readers
// did not drain in time.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("honeyaml %q not applied: readers still active after %s", e.Path, e.Timeout)
}
