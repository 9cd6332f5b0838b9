package renderer

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks any bounded wait that elapsed: navigation, selector
	// appearance, results surface. Waits are never unbounded.
	ErrTimeout = errors.New("renderer: wait timed out")

	// ErrNotAuthenticated means the external system bounced us to a login
	// page. Surfaced distinctly so operators re-authenticate instead of
	// retrying blindly.
	ErrNotAuthenticated = errors.New("renderer: not authenticated")
)

// NavigationError reports a failed page load. It aborts the current unit of
// work (one candidate, one batch), not the whole run.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string { return fmt.Sprintf("navigate %s: %v", e.URL, e.Err) }
func (e *NavigationError) Unwrap() error { return e.Err }

// StructuralError means an expected control is absent: the external UI has
// changed shape. Callers abort without partial state mutation.
type StructuralError struct {
	Control string
	Err     error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("expected control %q not found: %v", e.Control, e.Err)
}
func (e *StructuralError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is (or wraps) a renderer wait timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
