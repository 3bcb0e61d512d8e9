// Package apierr is the shared error vocabulary for contextbrain.
//
// Internal packages return the typed errors below; the HTTP boundary maps
// them to a small stable set of external status codes via FromError. The
// mapping is an explicit function call at the handler layer, never
// middleware magic.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodePrecondition  Code = "PRECONDITION_FAILED"
	CodeValidation    Code = "VALIDATION_FAILED"
	CodeProvider      Code = "PROVIDER_ERROR"
	CodeAccessDenied  Code = "ACCESS_DENIED"
	CodePoolExhausted Code = "POOL_EXHAUSTED"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Error is the boundary shape: an HTTP status, a stable code and the
// wrapped cause.
type Error struct {
	Status int
	Code   Code
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return string(e.Code)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code Code, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// PreconditionError names the exact missing or stale artifact and the
// command that produces it. Stages abort on it before writing anything.
type PreconditionError struct {
	Stage    string
	Artifact string
	Producer string
	Stale    bool
}

func (e *PreconditionError) Error() string {
	state := "missing"
	if e.Stale {
		state = "stale"
	}
	return fmt.Sprintf("stage %q: %s artifact %q; run %q first", e.Stage, state, e.Artifact, e.Producer)
}

// ValidationError covers malformed records and ontology-constraint
// violations. Individual occurrences are non-fatal; stages accumulate
// them into a summary and escalate only past a configured rate.
type ValidationError struct {
	Record string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %q: %s", e.Record, e.Reason)
}

// ProviderError wraps a failed embedding/NLP provider call after retries
// were exhausted.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AccessDeniedError fails closed. The external message is always the
// opaque "denied"; the failing check is logged internally only so a
// caller cannot probe which gate rejected it.
type AccessDeniedError struct {
	Operation string
}

func (e *AccessDeniedError) Error() string { return "denied" }

// PoolExhaustedError reports that connection acquisition timed out.
// Retryable by the caller.
type PoolExhaustedError struct {
	Waited string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("connection pool exhausted (waited %s)", e.Waited)
}

// FromError maps any internal error onto the external boundary shape.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	var pre *PreconditionError
	if errors.As(err, &pre) {
		return New(http.StatusPreconditionFailed, CodePrecondition, err)
	}
	var val *ValidationError
	if errors.As(err, &val) {
		return New(http.StatusBadRequest, CodeValidation, err)
	}
	var prov *ProviderError
	if errors.As(err, &prov) {
		return New(http.StatusBadGateway, CodeProvider, err)
	}
	var denied *AccessDeniedError
	if errors.As(err, &denied) {
		return New(http.StatusForbidden, CodeAccessDenied, denied)
	}
	var pool *PoolExhaustedError
	if errors.As(err, &pool) {
		return New(http.StatusServiceUnavailable, CodePoolExhausted, err)
	}
	return New(http.StatusInternalServerError, CodeInternal, err)
}
