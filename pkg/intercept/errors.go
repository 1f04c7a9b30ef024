package intercept

import "fmt"

// ResolveError means the libc implementations of the intercepted calls could
// not be located. The process then runs without deception.
type ResolveError struct {
	Cause error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to resolve original socket calls: %v", e.Cause)
}

func (e *ResolveError) Unwrap() error { return e.Cause }

// NewResolveError wraps cause.
func NewResolveError(cause error) *ResolveError {
	return &ResolveError{Cause: cause}
}
