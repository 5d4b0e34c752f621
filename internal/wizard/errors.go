package wizard

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed turn.
type ErrorKind string

const (
	KindExtractionFailed    ErrorKind = "EXTRACTION_FAILED"
	KindContractViolation   ErrorKind = "CONTRACT_VIOLATION"
	KindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindSessionTerminated   ErrorKind = "SESSION_TERMINATED"
)

// ErrSessionTerminated is wrapped by turns submitted after FINISH.
var ErrSessionTerminated = errors.New("session already finished")

// TurnError is the only error type returned by Driver.AdvanceTurn. The session
// is left untouched whenever a TurnError is returned.
type TurnError struct {
	Kind ErrorKind
	// Reason holds the contract violation reason for CONTRACT_VIOLATION.
	Reason string
	Err    error
}

func (e *TurnError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same turn may be submitted again as is.
func (e *TurnError) Retryable() bool {
	return e.Kind == KindUpstreamUnavailable
}

// KindOf returns the kind of a TurnError found in err's chain, or "".
func KindOf(err error) ErrorKind {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr.Kind
	}
	return ""
}

func turnError(kind ErrorKind, reason string, err error) *TurnError {
	return &TurnError{Kind: kind, Reason: reason, Err: err}
}
