package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can branch on them.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from this module.
	KindUnknown Kind = iota

	// KindStorage is a durable read/write failure. Fatal for the operation,
	// always propagated, never retried.
	KindStorage

	// KindGenerationUnavailable is a transport failure, timeout or non-2xx
	// status from the inference service. Callers may retry.
	KindGenerationUnavailable

	// KindMalformedResponse is an unexpected response shape from the
	// inference or search service. Treated as a failed turn.
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindStorage:
		return "storage_error"
	case KindGenerationUnavailable:
		return "generation_unavailable"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "history append"
	Err  error
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrStorage               = &Error{Kind: KindStorage}
	ErrGenerationUnavailable = &Error{Kind: KindGenerationUnavailable}
	ErrMalformedResponse     = &Error{Kind: KindMalformedResponse}
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("[%s]", e.Kind)
	}
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// StorageError wraps err as a KindStorage failure of op.
func StorageError(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// GenerationUnavailable wraps err as a KindGenerationUnavailable failure of op.
func GenerationUnavailable(op string, err error) error {
	return &Error{Kind: KindGenerationUnavailable, Op: op, Err: err}
}

// MalformedResponse wraps err as a KindMalformedResponse failure of op.
func MalformedResponse(op string, err error) error {
	return &Error{Kind: KindMalformedResponse, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
