package vru

import (
	"errors"
	"fmt"
)

// ErrSessionCancelled is returned by ValidateSession when the session was
// cancelled before reaching a terminal verdict. Partial results are discarded.
var ErrSessionCancelled = errors.New("session cancelled")

// ErrSessionNotFound is returned for status or cancel requests against an
// unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// ConfigurationError is a fatal, non-retriable configuration problem:
// non-positive tolerance, unknown alignment method, zero criteria weight sum.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// InputOrderingError reports an event stream that is not sorted ascending by
// timestamp. Fatal for the session; the core never re-sorts caller data.
type InputOrderingError struct {
	SessionID string
	Stream    string // "ground_truth" or "detections"
	Index     int    // index of the first out-of-order element
}

func (e *InputOrderingError) Error() string {
	return fmt.Sprintf("session %s: %s stream not sorted by timestamp at index %d",
		e.SessionID, e.Stream, e.Index)
}

// ComputationError reports numeric instability. Divisions are guarded
// throughout, so any occurrence indicates a logic defect and is surfaced
// rather than swallowed.
type ComputationError struct {
	Stage  string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation error in %s: %s", e.Stage, e.Reason)
}
