package pkg

import (
	"errors"
	"fmt"
)

// Driver errors.
var (
	// ErrNoMemory indicates a controller or unit record could not be allocated.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrUnassignedInterrupt indicates a function has no routed interrupt line.
	ErrUnassignedInterrupt = errors.New("no interrupt line assigned")

	// ErrUnsupportedInterface indicates a host controller interface this
	// driver does not handle (or handles only when enabled).
	ErrUnsupportedInterface = errors.New("unsupported host controller interface")

	// ErrResourceConflict indicates the function is already owned elsewhere.
	ErrResourceConflict = errors.New("resource already allocated")

	// ErrBringup indicates protocol-specific controller initialization failed.
	ErrBringup = errors.New("controller bring-up failed")

	// ErrPortTopology indicates the USB 1.1 and USB 2.0 root hub port counts
	// of a unit disagree.
	ErrPortTopology = errors.New("root hub port topology mismatch")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidState indicates an operation not valid in the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyOnline indicates a unit is already allocated.
	ErrAlreadyOnline = errors.New("unit already online")

	// ErrNotOnline indicates a unit is not allocated.
	ErrNotOnline = errors.New("unit not online")

	// ErrNoUnit indicates a unit index does not exist.
	ErrNoUnit = errors.New("no such unit")
)

// ConflictError reports the current owner of a function that could not be
// acquired. It matches ErrResourceConflict with errors.Is.
type ConflictError struct {
	Object string // Function that could not be acquired
	Owner  string // Name of the current owner
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s already allocated by %s", ErrResourceConflict, e.Object, e.Owner)
}

// Unwrap returns ErrResourceConflict.
func (e *ConflictError) Unwrap() error {
	return ErrResourceConflict
}
