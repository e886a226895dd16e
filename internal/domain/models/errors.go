package models

import (
	"errors"
	"fmt"
)

// ErrNoObservations is returned when an assessment is skipped for an empty set.
var ErrNoObservations = errors.New("no observations to assess")

// FetchError is the only error a source adapter returns.
type FetchError struct {
	SourceID string
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.SourceID, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err for a source; the reason is err's text.
func NewFetchError(sourceID string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return &FetchError{SourceID: sourceID, Reason: reason, Err: err}
}

// TransientError marks a reasoning call failure that may succeed on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError marks a reply that arrived but failed schema validation.
type MalformedResponseError struct {
	Reason string
	Body   string
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

// AssessmentError is the final error of an assessment after all attempts.
type AssessmentError struct {
	Attempts int
	Err      error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("assessment failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *AssessmentError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsMalformed reports whether err carries a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// DispatchError is a per-channel delivery failure.
type DispatchError struct {
	Channel string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// InvariantError is fatal for the run loop.
type InvariantError struct {
	Stage  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Stage, e.Detail)
}
