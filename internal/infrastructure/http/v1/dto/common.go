// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/core/types"
)

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// NewListResponse never serializes items as null.
func NewListResponse[T any](items []T, limit, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: limit, Offset: offset}
}

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ParseID parses a required id field.
func ParseID(field, value string) (id.ID, error) {
	if value == "" {
		return id.ID{}, apperror.NewFieldValidation(field, field+" is required")
	}
	v, err := id.Parse(value)
	if err != nil {
		return id.ID{}, apperror.NewFieldValidation(field, "invalid "+field+" format")
	}
	return v, nil
}

// ParseOptionalID returns nil for an empty value.
func ParseOptionalID(field, value string) (*id.ID, error) {
	if value == "" {
		return nil, nil
	}
	v, err := ParseID(field, value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseTime parses an RFC 3339 timestamp.
func ParseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperror.NewFieldValidation(field, field+" is required")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, apperror.NewFieldValidation(field, "invalid "+field+" format, expected RFC3339")
	}
	return t, nil
}

// ParseOptionalTime returns nil for an empty value.
func ParseOptionalTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := ParseTime(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseQuantity checks the stored precision of a decimal from a request body.
func ParseQuantity(field string, d decimal.Decimal) (decimal.Decimal, error) {
	q, err := types.ParseQuantity(d.String())
	if err != nil {
		return decimal.Zero, apperror.NewFieldValidation(field, err.Error())
	}
	return q, nil
}
