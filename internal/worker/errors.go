package worker

import "errors"

// Failure taxonomy. Transformations classify their failures so the worker
// knows whether to retry:
//
//   - transient: network/service timeouts, resource exhaustion — retried
//     with backoff up to the configured attempt limit;
//   - validation: malformed or unsupported input — terminal, no retry.
//
// Unclassified errors default to transient, since retrying a genuinely
// broken document merely burns the attempt budget while retrying a flaky
// dependency is the common case.

type errorKind int

const (
	kindTransient errorKind = iota
	kindValidation
)

type stageError struct {
	kind errorKind
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return &stageError{kind: kindTransient, err: err}
}

// Validation wraps err as a terminal, non-retryable failure.
func Validation(err error) error {
	return &stageError{kind: kindValidation, err: err}
}

// IsValidation reports whether err (or anything it wraps) was classified as
// a validation failure.
func IsValidation(err error) bool {
	var se *stageError
	return errors.As(err, &se) && se.kind == kindValidation
}
