// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

var ErrSchemaNotFound = errors.New("schema not found")
var ErrEventNotFound = errors.New("event not found")
var ErrDuplicateEvent = errors.New("event already exists")
var ErrMagnitudeExists = errors.New("network magnitude already exists")
var ErrMagnitudeNotFound = errors.New("network magnitude not found")
var ErrUnauthorized = errors.New("unauthorized")
var ErrForbidden = errors.New("insufficient permissions")

// ValidationError reports a field value rejected before any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
