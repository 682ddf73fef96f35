// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned by stores when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is wrapped by stores on unique-constraint violations.
var ErrConflict = errors.New("conflict")

// Kind is the caller-facing category of an error returned by the Coordinator.
type Kind uint8

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindConflict
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:     "internal_error",
	KindValidation:   "validation_error",
	KindUnauthorized: "unauthorized",
	KindForbidden:    "forbidden",
	KindConflict:     "conflict",
	KindNotFound:     "not_found",
}

// String returns the snake_case name used in API error bodies.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "internal_error"
}

// Generic messages returned at the boundary. They never reveal which internal
// check failed.
const (
	MsgInvalidCredentials        = "invalid credentials"
	MsgInvalidToken              = "invalid or expired token"
	MsgInvalidResetToken         = "invalid or expired reset token"
	MsgInvalidVerificationToken  = "invalid or expired verification token"
	MsgInternal                  = "internal error"
	MsgValidationFailed          = "validation failed"
	MsgResetRequested            = "If an account with that email exists, a password reset link has been sent."
	MsgVerificationRequested     = "If an account with that email exists and is not yet verified, a verification email has been sent."
	MsgVerificationSent          = "verification email sent"
	MsgEmailVerified             = "email verified"
	MsgEmailAlreadyVerified      = "email already verified"
	MsgLoggedOut                 = "logged out"
	MsgAlreadyLoggedOut          = "already logged out"
	MsgPasswordReset             = "password has been reset"
	MsgPasswordChanged           = "password changed"
	MsgAccountDeleted            = "account deleted"
	MsgForbidden                 = "insufficient permissions"
	MsgUserNotFound              = "user not found"
	MsgEmailOrUsernameTaken      = "email or username already in use"
	MsgNewPasswordMatchesCurrent = "new password must differ from the current password"
)

// Error is the error type returned by Coordinator operations. Message is safe
// to show to callers; the wrapped cause carries the internal detail.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

// Error implements error.
func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// Unwrap returns the internal cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the Kind of the outermost *Error in err's chain.
// Errors that never passed through the Coordinator are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

func validationError(fields map[string]string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: MsgValidationFailed, Fields: fields, cause: cause}
}

func unauthorized(msg string, cause error) *Error {
	return newError(KindUnauthorized, msg, cause)
}

func internalError(cause error) *Error {
	return newError(KindInternal, MsgInternal, cause)
}
