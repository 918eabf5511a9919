// Package domainerrors provides coded errors for the trace core.
//
// Services attach a Code to every failure they surface so transport layers
// can translate uniformly and tests can assert on the kind of failure
// instead of on message text. Stores do not use this package; they return
// pkg/platform/sentinel errors which services translate.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeInvalidInput marks an empty or malformed required field.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks an unknown id or key.
	CodeNotFound Code = "not_found"
	// CodeDuplicateKey marks a violated unique constraint (batch number,
	// business license, tracking number).
	CodeDuplicateKey Code = "duplicate_key"
	// CodeUnauthorized marks a role mismatch or a caller who is not a
	// participant of the shipment being mutated.
	CodeUnauthorized Code = "unauthorized"
	// CodeInvalidTransition marks a stage or status transition outside the
	// allowed set.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeAlreadyExists marks a conflicting live registration or an active
	// shipment already present for the product.
	CodeAlreadyExists Code = "already_exists"
	// CodeBadRequest marks a request the transport layer could not parse.
	CodeBadRequest Code = "bad_request"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message carried by err, or its Error() string for
// uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// ToHTTPStatus maps a code to the HTTP status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateKey, CodeAlreadyExists:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
