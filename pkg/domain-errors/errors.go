// Package domainerrors provides code-carrying errors for domain and service layers.
//
// Services return these so transport layers can map outcomes to wire responses
// without string matching. Stores do NOT return domain errors; they return
// pkg/platform/sentinel errors which services translate here.
//
// Usage:
//
//	return dErrors.New(dErrors.CodeValidation, "field_key cannot be empty")
//	return dErrors.Wrap(err, dErrors.CodeInternal, "insert correction")
//	if dErrors.HasCode(err, dErrors.CodeNotFound) { ... }
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error class. The value is the wire representation used
// in HTTP error envelopes.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeInvalidInput        Code = "invalid_input"
	CodeValidation          Code = "validation_error"
	CodeUnauthorized        Code = "unauthorized"
	CodeForbidden           Code = "forbidden"
	CodeNotFound            Code = "not_found"
	CodeConflict            Code = "conflict"
	CodeIdempotencyConflict Code = "idempotency_conflict"
	CodeWriteConflict       Code = "write_conflict"
	CodeRateLimited         Code = "rate_limited"
	CodeTimeout             Code = "timeout"
	CodeUnavailable         Code = "unavailable"
	CodeInternal            Code = "internal_error"
)

// Error is a domain error with a classification code. The code drives
// transport mapping; the message is safe to show to API callers except for
// CodeInternal, where transports must omit it.
type Error struct {
	code Code
	msg  string
	err  error
}

// New creates a domain error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the chain for
// errors.Is/errors.As. Wrapping nil returns nil.
func Wrap(err error, code Code, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Code returns the classification code.
func (e *Error) Code() Code { return e.code }

// Message returns the caller-facing message without the wrapped cause.
func (e *Error) Message() string { return e.msg }

func (e *Error) Unwrap() error { return e.err }

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.code == code {
			return true
		}
		err = de.Unwrap()
	}
	return false
}

// Is is shorthand for HasCode, matching the call shape of errors.Is.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when err carries no domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}
