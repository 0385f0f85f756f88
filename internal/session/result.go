package session

import (
	"github.com/ctagard/debugify/internal/errors"
)

// Result is the outcome of a request forwarded to the backend. Failed and
// successful requests travel through the same value so callers can log or
// display either without special-casing.
type Result struct {
	err *errors.DebugError
}

// succeeded is the successful Result.
var succeeded = Result{}

func failed(err *errors.DebugError) Result {
	return Result{err: err}
}

// Failed wraps err as a failed Result, for callers that validate a request
// before it reaches the backend.
func Failed(err *errors.DebugError) Result {
	if err == nil {
		return succeeded
	}
	return failed(err)
}

// rejected converts a backend error into a Result at the call site.
func rejected(operation string, err error) Result {
	if err == nil {
		return succeeded
	}
	if de := errors.FromError(err); de.Code != errors.CodeUnknown {
		return failed(de)
	}
	return failed(errors.BackendRejected(operation, err))
}

// Success reports whether the request succeeded.
func (r Result) Success() bool {
	return r.err == nil
}

// Description returns a human-readable outcome.
func (r Result) Description() string {
	if r.err == nil {
		return "success"
	}
	return r.err.Message
}

// Err returns the structured failure, or nil on success.
func (r Result) Err() *errors.DebugError {
	return r.err
}

// AsError returns the failure as an error, or nil on success. It never
// returns a typed nil.
func (r Result) AsError() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

func (r Result) String() string {
	return r.Description()
}
