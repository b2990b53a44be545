// Package apperror provides structured errors for the ledger API.
// Domain code returns *AppError for every failure the caller can act on;
// anything else surfaces as INTERNAL_ERROR.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInternal     = "INTERNAL_ERROR"
	CodeValidation   = "VALIDATION_ERROR"
	CodeBusinessRule = "BUSINESS_RULE_VIOLATION"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeDuplicate    = "DUPLICATE_ENTRY"
)

// AppError is the error every ledger operation reports to its caller.
// Code is stable and machine-readable; Details carries the offending field
// or ids; Err is logged but never serialized.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets details[key] and returns e for chaining.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 2)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Field returns the "field" detail of a validation error, or "".
func (e *AppError) Field() string {
	f, _ := e.Details["field"].(string)
	return f
}

func newError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func NewValidation(message string) *AppError {
	return newError(http.StatusBadRequest, CodeValidation, message)
}

// NewFieldValidation is a validation error naming the rejected input field.
func NewFieldValidation(field, message string) *AppError {
	return NewValidation(message).WithDetail("field", field)
}

func NewNotFound(entity string, id any) *AppError {
	return newError(http.StatusNotFound, CodeNotFound, entity+" not found").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewBusinessRule reports a rejected operation (422) under a caller-chosen code.
func NewBusinessRule(code, message string) *AppError {
	return newError(http.StatusUnprocessableEntity, code, message)
}

// NewInternal hides err from the client; the error middleware logs it.
func NewInternal(err error) *AppError {
	e := newError(http.StatusInternalServerError, CodeInternal, "Internal server error")
	e.Err = err
	return e
}

func NewUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message)
}

func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, CodeForbidden, message)
}

func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, CodeConflict, message)
}

// NewDuplicate reports a unique key collision, e.g. a reused externalRef.
func NewDuplicate(entity, field, value string) *AppError {
	return newError(http.StatusConflict, CodeDuplicate, fmt.Sprintf("%s with this %s already exists", entity, field)).
		WithDetail("entity", entity).
		WithDetail("field", field).
		WithDetail("value", value)
}

// AsAppError extracts the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func hasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool   { return hasCode(err, CodeNotFound) }
func IsDuplicate(err error) bool  { return hasCode(err, CodeDuplicate) }
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }
