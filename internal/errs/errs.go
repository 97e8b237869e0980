// Package errs defines the error taxonomy shared by every layer of the
// engine. Callers branch on Kind (retry policy) and Code (specific reason)
// rather than matching error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and retry policy.
type Kind string

const (
	// KindValidation marks bad input shape. Rejected, never retried.
	KindValidation Kind = "validation"
	// KindBusiness marks a domain rule violation. Surfaced as a typed
	// failure, never retried by the resilience layer.
	KindBusiness Kind = "business"
	// KindInfrastructure marks a transient dependency failure. Retried a
	// bounded number of times, then surfaced as unavailable.
	KindInfrastructure Kind = "infrastructure"
	// KindProcessing marks a handler failure during a PROCESSING
	// transaction. The record is durably FAILED before this propagates.
	KindProcessing Kind = "processing"
)

// Code identifies the specific reason so handlers can map errors to
// responses without string matching.
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeSameAccount         Code = "same_account_transfer"
	CodeNotFound            Code = "not_found"
	CodeInactiveAccount     Code = "inactive_account"
	CodeForbidden           Code = "forbidden"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeDuplicateReference  Code = "duplicate_reference"
	CodeInvalidTransition   Code = "invalid_status_transition"
	CodeSystemCategory      Code = "system_category"
	CodeCategoryInUse       Code = "category_in_use"
	CodeUnavailable         Code = "dependency_unavailable"
	CodeProcessingFailed    Code = "processing_failed"
	CodeInternal            Code = "internal"
)

type Error struct {
	Kind Kind
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Newf(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, code Code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInfrastructure for errors that
// carry no taxonomy (an unclassified failure is treated as transient).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the Code of err, or CodeInternal when untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retryable reports whether the resilience layer may retry the failed call.
// Only infrastructure failures qualify; business and validation failures are
// final no matter how often they are repeated.
func Retryable(err error) bool {
	return KindOf(err) == KindInfrastructure
}
