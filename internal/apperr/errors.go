// Package apperr defines the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindThreadLocked    Kind = "THREAD_LOCKED"
	KindValidation      Kind = "VALIDATION_FAILED"
	KindProfanity       Kind = "PROFANITY_REJECTED"
	KindImageRejected   Kind = "IMAGE_REJECTED"
	KindQuotaExceeded   Kind = "QUOTA_EXCEEDED"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindConflict        Kind = "CONFLICT"
	KindUpstreamFailure Kind = "UPSTREAM_FAILURE"
	KindInternal        Kind = "INTERNAL"
)

// Error is a classified application error
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input field, when there is one
	Field string
	// Match carries the matched word or URL for moderation rejections
	Match string
	// Reasons carries upstream error codes (captcha)
	Reasons []string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrThreadLocked    = &Error{Kind: KindThreadLocked}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrProfanity       = &Error{Kind: KindProfanity}
	ErrImageRejected   = &Error{Kind: KindImageRejected}
	ErrQuotaExceeded   = &Error{Kind: KindQuotaExceeded}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrUpstreamFailure = &Error{Kind: KindUpstreamFailure}
)

// NotFound creates a NotFound error
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Forbidden creates a Forbidden error
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// ThreadLocked creates a ThreadLocked error
func ThreadLocked() *Error {
	return &Error{Kind: KindThreadLocked, Message: "Thread is locked"}
}

// Validation creates a ValidationFailed error
func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

// ValidationField creates a ValidationFailed error tied to an input field
func ValidationField(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Field: field}
}

// Profanity creates a ProfanityRejected error for the matched word
func Profanity(field, match string) *Error {
	return &Error{
		Kind:    KindProfanity,
		Message: fmt.Sprintf("Content contains inappropriate language: “%s”.", match),
		Field:   field,
		Match:   match,
	}
}

// ImageRejected creates an ImageRejected error for the offending URL
func ImageRejected(url, msg string) *Error {
	return &Error{Kind: KindImageRejected, Message: msg, Match: url}
}

// QuotaExceeded creates a QuotaExceeded error
func QuotaExceeded(msg string) *Error { return &Error{Kind: KindQuotaExceeded, Message: msg} }

// Unauthorized creates an Unauthorized error
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

// Conflict creates a Conflict error
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Upstream wraps a failing external dependency
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
