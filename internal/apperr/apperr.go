// Package apperr defines the marketplace error taxonomy shared by the store,
// the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class that callers can act on.
type Code string

const (
	CodeDuplicateIdentity      Code = "DUPLICATE_IDENTITY"
	CodeInvalidCredential      Code = "INVALID_CREDENTIAL"
	CodeExpiredSession         Code = "EXPIRED_SESSION"
	CodeInvalidSession         Code = "INVALID_SESSION"
	CodeForbidden              Code = "FORBIDDEN"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInsufficientInventory  Code = "INSUFFICIENT_INVENTORY"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeConcurrentConflict     Code = "CONCURRENT_CONFLICT"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeInvalidInput           Code = "INVALID_INPUT"
)

// Error is a classified application error.
type Error struct {
	Code    Code
	Message string
	// Available is set for CodeInsufficientInventory.
	Available int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrDuplicateIdentity      = &Error{Code: CodeDuplicateIdentity, Message: "email already registered"}
	ErrInvalidCredential      = &Error{Code: CodeInvalidCredential, Message: "invalid credentials"}
	ErrExpiredSession         = &Error{Code: CodeExpiredSession, Message: "session expired"}
	ErrInvalidSession         = &Error{Code: CodeInvalidSession, Message: "invalid session"}
	ErrForbidden              = &Error{Code: CodeForbidden, Message: "access denied"}
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInsufficientInventory  = &Error{Code: CodeInsufficientInventory, Message: "insufficient inventory"}
	ErrInsufficientBalance    = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrConcurrentConflict     = &Error{Code: CodeConcurrentConflict, Message: "concurrent update conflict"}
	ErrInvalidStateTransition = &Error{Code: CodeInvalidStateTransition, Message: "request already processed"}
	ErrInvalidInput           = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// New creates an error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity, e.g. NotFound("category").
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: entity + " not found"}
}

// InvalidInput reports a rejected argument.
func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidInput, format, args...)
}

// InsufficientInventory reports how many items were actually available.
func InsufficientInventory(available int) *Error {
	return &Error{
		Code:      CodeInsufficientInventory,
		Message:   fmt.Sprintf("only %d items available", available),
		Available: available,
	}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or "" when err is not classified.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// StatusCode returns the HTTP status the error is reported with.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeDuplicateIdentity, CodeConcurrentConflict, CodeInvalidStateTransition:
		return http.StatusConflict
	case CodeInvalidCredential, CodeExpiredSession, CodeInvalidSession:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientInventory, CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case CodeInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorCode returns the machine-readable code.
func (e *Error) ErrorCode() string { return string(e.Code) }

// ErrorDetails exposes structured fields clients can act on.
func (e *Error) ErrorDetails() map[string]interface{} {
	if e.Code == CodeInsufficientInventory {
		return map[string]interface{}{"available": e.Available}
	}
	return nil
}
