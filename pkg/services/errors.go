// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/iotlinker/automation/pkg/graph"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrTenantRequired       = errors.New("tenant id is required")

	// ErrWorkflowInvalid is returned when the graph breaks a publish rule (422).
	ErrWorkflowInvalid = errors.New("workflow is invalid")

	// Business Logic Conflicts (409 Conflict).
	ErrVersionConflict = errors.New("workflow version conflict")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op         string // Operation name
	Code       string // Error code for API responses
	Message    string // Human-readable message
	Violations []graph.Violation
	Err        error // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrTenantRequired)
}

// IsWorkflowInvalid checks if an error carries graph violations (HTTP 422).
func IsWorkflowInvalid(err error) bool {
	return errors.Is(err, ErrWorkflowInvalid)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// Violations returns the graph violations carried by err, if any.
func Violations(err error) []graph.Violation {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Violations
	}

	return nil
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func newInvalidWorkflowError(op string, violations []graph.Violation) *ServiceError {
	return &ServiceError{
		Op:         op,
		Code:       "WORKFLOW_INVALID",
		Message:    graph.AsError(violations).Error(),
		Violations: violations,
		Err:        ErrWorkflowInvalid,
	}
}
