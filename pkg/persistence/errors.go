package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow (or workflow version) was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunRecordNotFound indicates the ledger holds no record for a correlation id.
	ErrRunRecordNotFound = errors.New("run record not found")

	// ErrConnectionNotFound indicates a connection was not found by the given identifier.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrInvalidID indicates an identifier that cannot be stored safely.
	ErrInvalidID = errors.New("invalid identifier")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// RunRecordError wraps ledger errors with the correlation id involved.
type RunRecordError struct {
	Op            string
	CorrelationID string
	Err           error
}

func (e *RunRecordError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.CorrelationID, e.Err)
}

func (e *RunRecordError) Unwrap() error {
	return e.Err
}

func (e *RunRecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRunRecordError(op, correlationID string, err error) *RunRecordError {
	return &RunRecordError{Op: op, CorrelationID: correlationID, Err: err}
}

// ConnectionError wraps connection-related errors with additional context.
type ConnectionError struct {
	Op           string
	ConnectionID string
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s operation failed for connection %s: %v", e.Op, e.ConnectionID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewConnectionError(op, connectionID string, err error) *ConnectionError {
	return &ConnectionError{Op: op, ConnectionID: connectionID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunRecordNotFound checks if an error indicates the ledger has no record.
func IsRunRecordNotFound(err error) bool {
	return errors.Is(err, ErrRunRecordNotFound)
}

// IsConnectionNotFound checks if an error indicates a connection was not found.
func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}

func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}
