package engine

import (
	"errors"
	"fmt"
)

// ErrResponseTooLarge is returned when a successful engine response exceeds the size cap.
var ErrResponseTooLarge = errors.New("engine response too large")

// StatusError is returned when the engine answers with a non-200 status.
// Body holds the engine's response text verbatim (truncated at 64KB).
type StatusError struct {
	Op          string
	StatusCode  int
	Body        []byte
	ContentType string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine %s: status %d: %s", e.Op, e.StatusCode, string(e.Body))
}

// UnavailableError wraps a transport failure: connection refused, DNS, TLS, timeout,
// or a connection dropped while reading the body.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("engine %s: unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
