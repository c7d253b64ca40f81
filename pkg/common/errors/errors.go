// Package errors defines the error kinds shared by taskflow components.
//
// Per-job errors (JobExecutionError, ErrCancelled, ErrTimeout) are always
// recovered into a Future or returned to the awaiting caller. Structural
// errors (ErrInvariantViolation, FaultError) are not recoverable locally and
// propagate to the owner of the component that detected them.
package errors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrClosedChannel indicates that an operation was attempted on a closed channel
	// or on a pool whose intake has been closed.
	ErrClosedChannel = errors.New("channel is closed")

	// ErrQueueFull indicates that a non-blocking submission was rejected due to capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrCancelled indicates that a job was cancelled before it produced a result.
	ErrCancelled = errors.New("job cancelled")

	// ErrTimeout indicates that a deadline was exceeded while awaiting a result.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvariantViolation indicates that an internal invariant no longer holds.
	ErrInvariantViolation = errors.New("internal invariant violated")

	// ErrInvalidConfiguration indicates invalid configuration parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// JobExecutionError wraps the error returned (or the panic raised) by a job.
type JobExecutionError struct {
	JobID uuid.UUID
	Err   error
}

// NewJobExecutionError tags err with the identity of the job that produced it.
func NewJobExecutionError(id uuid.UUID, err error) *JobExecutionError {
	return &JobExecutionError{JobID: id, Err: err}
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Err)
}

func (e *JobExecutionError) Unwrap() error {
	return e.Err
}

// FaultError is a structural failure detected inside a component.
// It always wraps ErrInvariantViolation or an unexpected internal error
// and must be handed to the component's owner.
type FaultError struct {
	Component string
	WorkerID  int
	Err       error
}

// NewFaultError creates a FaultError. workerID is -1 when the fault is not
// tied to a particular worker.
func NewFaultError(component string, workerID int, err error) *FaultError {
	return &FaultError{Component: component, WorkerID: workerID, Err: err}
}

func (e *FaultError) Error() string {
	if e.WorkerID >= 0 {
		return fmt.Sprintf("%s: fatal fault in worker %d: %v", e.Component, e.WorkerID, e.Err)
	}
	return fmt.Sprintf("%s: fatal fault: %v", e.Component, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// ValidationError describes an invalid configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint sets a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// OperationError records which operation of which module failed.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches extra detail and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrQueueFull)
}

// IsStructural returns true if the error must propagate to the component owner
// instead of being recovered into a single job's outcome.
func IsStructural(err error) bool {
	var fault *FaultError
	return errors.Is(err, ErrInvariantViolation) || errors.As(err, &fault)
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
