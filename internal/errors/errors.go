// Package errors defines the typed error kinds from spec.md §7, in the
// same shallow-struct-implementing-error style as the teacher's
// internal/errors package.
package errors

// JSONError covers both JSON parse errors and JSON semantic errors
// (schema violations, wrong element type) — spec.md §7 gives both the
// same propagation (400 "Json error").
type JSONError struct {
	Cause string
}

func (e *JSONError) Error() string { return e.Cause }

// UnknownApplicationError is raised when a request targets an
// application name that has never been registered.
type UnknownApplicationError struct {
	AppName string
}

func (e *UnknownApplicationError) Error() string {
	return "unknown application: " + e.AppName
}

// QueryProcessingError covers malformed dispatch state: no candidate
// models, or an unknown selection policy (spec.md §4.3, §7). A missed
// deadline is explicitly NOT an instance of this error.
type QueryProcessingError struct {
	Cause string
}

func (e *QueryProcessingError) Error() string { return e.Cause }

// ArenaExhaustedError is raised by the ZMQ receive thread when the
// payload arena refuses a reservation. The arena does not track
// unreleased ranges; it refuses only a payload larger than the whole
// arena.
type ArenaExhaustedError struct {
	RequestedBytes int
}

func (e *ArenaExhaustedError) Error() string {
	return "payload arena exhausted"
}
