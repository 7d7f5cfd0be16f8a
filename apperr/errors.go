// Package apperr is the error taxonomy shared by the storage, lifecycle and
// transport layers. Every error carries a Code; errors.Is matches on the code,
// so a wrapped failure still matches its sentinel.
package apperr

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is reports a match when target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Persistence wraps a storage failure for operation op.
func Persistence(op string, cause error) error {
	return Wrap(CodePersistence, op+" failed", cause)
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

// CodeOf extracts the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

var (
	ErrNotAuthenticated = New(CodeNotAuthenticated, "not authenticated")
	ErrPersistence      = New(CodePersistence, "persistence failure")
	ErrInvalidMessage   = New(CodeInvalidMessage, "message content must not be empty")
	ErrNotAParticipant  = New(CodeNotAParticipant, "not a participant of this conversation")
	ErrInvalidArgument  = New(CodeInvalidArgument, "invalid argument")
	ErrSelfRequest      = New(CodeSelfRequest, "cannot target yourself")
	ErrNotFound         = New(CodeNotFound, "not found")
	ErrAlreadyExists    = New(CodeAlreadyExists, "already exists")
)
