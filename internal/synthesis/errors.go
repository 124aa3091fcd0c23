package synthesis

import "fmt"

// ValidationError means caller input violated a declared constraint.
// It is always raised before the engine is contacted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EngineRejectedError means the engine answered a call with a non-success status.
// StatusCode, Body and ContentType are the engine's, unmodified.
type EngineRejectedError struct {
	State       State
	StatusCode  int
	Body        []byte
	ContentType string
}

func (e *EngineRejectedError) Error() string {
	return fmt.Sprintf("engine rejected request in %s: status %d: %s", e.State, e.StatusCode, string(e.Body))
}

// EngineUnavailableError means the engine could not be reached at all.
type EngineUnavailableError struct {
	State State
	Err   error
}

func (e *EngineUnavailableError) Error() string {
	return fmt.Sprintf("engine unavailable in %s: %v", e.State, e.Err)
}

func (e *EngineUnavailableError) Unwrap() error { return e.Err }

// InternalError is any failure not covered by the other kinds.
type InternalError struct {
	State State
	Err   error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in %s: %v", e.State, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
