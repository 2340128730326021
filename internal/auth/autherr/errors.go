// Package autherr defines the coded error type shared by every stage of the
// sign-in pipeline. Callers branch on the Code, never on the message text.
package autherr

import (
	"errors"
	"fmt"
)

// Code identifies a class of authentication failure.
type Code string

const (
	CodeConfiguration         Code = "AUTH_CONFIGURATION"
	CodeTransientNetwork      Code = "AUTH_TRANSIENT_NETWORK"
	CodeProvider              Code = "AUTH_PROVIDER"
	CodeBackendLink           Code = "AUTH_BACKEND_LINK"
	CodeTimeout               Code = "AUTH_TIMEOUT"
	CodeCancelled             Code = "AUTH_CANCELLED"
	CodeInvalidCredentials    Code = "AUTH_INVALID_CREDENTIALS"
	CodeEmailNotConfirmed     Code = "AUTH_EMAIL_NOT_CONFIRMED"
	CodeUserAlreadyRegistered Code = "AUTH_USER_ALREADY_REGISTERED"
	CodeSessionExpired        Code = "AUTH_SESSION_EXPIRED"
	CodeRestoreInvalidated    Code = "AUTH_RESTORE_INVALIDATED"
	CodeOperationInProgress   Code = "AUTH_OPERATION_IN_PROGRESS"
	CodeInvalidInput          Code = "AUTH_INVALID_INPUT"
	CodeIdentityBackend       Code = "AUTH_IDENTITY_BACKEND"
	CodeStore                 Code = "AUTH_STORE"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrConfiguration         = &Error{Code: CodeConfiguration}
	ErrProvider              = &Error{Code: CodeProvider}
	ErrBackendLink           = &Error{Code: CodeBackendLink}
	ErrTimeout               = &Error{Code: CodeTimeout}
	ErrCancelled             = &Error{Code: CodeCancelled}
	ErrInvalidCredentials    = &Error{Code: CodeInvalidCredentials}
	ErrEmailNotConfirmed     = &Error{Code: CodeEmailNotConfirmed}
	ErrUserAlreadyRegistered = &Error{Code: CodeUserAlreadyRegistered}
	ErrSessionExpired        = &Error{Code: CodeSessionExpired}
	ErrOperationInProgress   = &Error{Code: CodeOperationInProgress}
)

// Error is an authentication failure with a stable code and optional context.
type Error struct {
	Code    Code
	Message string
	Context map[string]interface{}
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithContext attaches a key/value pair and returns the same error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given code that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
