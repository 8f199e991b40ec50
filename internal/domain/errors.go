package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrNoReading     = errors.New("no reading stored for request id")
)

// InvalidTransitionError is returned when a stage advance is out of
// sequence or past the maximum stage.
type InvalidTransitionError struct {
	From Stage
	To   Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot advance from %q to %q", e.From.Name(), e.To.Name())
}

// DecodeError is returned when an opaque payload or reading does not
// match its expected shape. It is fatal to the call: malformed input
// must never be interpreted as a zeroed value.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnauthorizedError is returned when a privileged operation is called
// without the administrator capability.
type UnauthorizedError struct {
	Op string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("operation %q requires the administrator key", e.Op)
}
