// Package apperr defines the error taxonomy shared by services and transports.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers. Transports map kinds to status codes.
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindPermission    Kind = "PERMISSION_DENIED"
	KindNotFound      Kind = "NOT_FOUND"
	KindCapacity      Kind = "CAPACITY_EXCEEDED"
	KindAlreadyMember Kind = "ALREADY_MEMBER"
	KindAlreadyExists Kind = "ALREADY_EXISTS"
	KindConflict      Kind = "CONFLICT"
	KindTransport     Kind = "TRANSPORT_ERROR"
	KindInternal      Kind = "INTERNAL"
)

// AppError is a classified error with a stable code and a user-visible message.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so wrapped copies of a predefined
// error still satisfy errors.Is against the original.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an error whose code equals its kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Code: string(kind), Message: message}
}

// NewCode creates an error with a specific code under a kind.
func NewCode(kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of e carrying err as its cause.
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: e.Message, Fields: e.Fields, Err: err}
}

// WithFields returns a copy of e carrying per-field validation messages.
func (e *AppError) WithFields(fields map[string]string) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: e.Message, Fields: fields, Err: e.Err}
}

// Validation builds a validation error from field messages.
func Validation(fields map[string]string) *AppError {
	return ErrValidation.WithFields(fields)
}

// KindOf returns the kind of err, KindInternal when err is not an *AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As extracts the *AppError from err.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var (
	ErrValidation = New(KindValidation, "validation failed")
	ErrTransport  = New(KindTransport, "event delivery failed")
	ErrInternal   = New(KindInternal, "something went wrong")
)
