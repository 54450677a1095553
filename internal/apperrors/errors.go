// Package apperrors defines the error taxonomy surfaced to chat users and the
// decoding of backend error bodies into it.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a machine-readable error class.
type Code string

const (
	CodeValidation Code = "validation"
	CodeConflict   Code = "conflict"
	CodeAuth       Code = "auth"
	CodeProvider   Code = "provider"
	CodeServer     Code = "server"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code
	Message  string                // user-facing message
	Status   int                   // HTTP status when the error came from the backend
	Fields   []FieldError          // validation only
	Existing *ExistingRegistration // conflict only
	Cause    error
}

type FieldError struct {
	Field   string
	Message string
}

// ExistingRegistration is the competing registration reported with a 409.
type ExistingRegistration struct {
	RegistrationID string `json:"registration_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	EventTitle     string `json:"event_title,omitempty"`
	Status         string `json:"status,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, &Error{Code: CodeAuth}) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation builds a local, pre-submission error.
func Validation(fields ...FieldError) *Error {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, f.Message)
	}
	return &Error{Code: CodeValidation, Message: strings.Join(msgs, "; "), Fields: fields}
}

func Conflict(existing ExistingRegistration) *Error {
	title := strings.TrimSpace(existing.EventTitle)
	if title == "" {
		title = "another event"
	}
	status := strings.TrimSpace(existing.Status)
	if status == "" {
		status = "active"
	}
	msg := fmt.Sprintf("You already have an active registration for %q (status: %s). Cancel it first to register here.", title, status)
	return &Error{Code: CodeConflict, Message: msg, Status: 409, Existing: &existing}
}

func Provider(message string, cause error) *Error {
	if message == "" {
		message = "Payment could not be started. Your registration is kept, please try paying again."
	}
	return &Error{Code: CodeProvider, Message: message, Cause: cause}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func hasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

func IsValidation(err error) bool { return hasCode(err, CodeValidation) }
func IsConflict(err error) bool   { return hasCode(err, CodeConflict) }
func IsAuth(err error) bool       { return hasCode(err, CodeAuth) }
func IsProvider(err error) bool   { return hasCode(err, CodeProvider) }
func IsServer(err error) bool     { return hasCode(err, CodeServer) }

// UserMessage returns the text shown next to the triggering control.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	e, ok := As(err)
	if !ok || strings.TrimSpace(e.Message) == "" {
		return "Something went wrong. Please try again."
	}
	return e.Message
}
