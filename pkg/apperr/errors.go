// Package apperr defines the error taxonomy shared by the orchestrator,
// the task runtime, the stores, and the HTTP layer (spec.md §7).
//
// Sentinel errors are checked with errors.Is/errors.As; wrapping always
// uses fmt.Errorf("...: %w", err), following pkg/services/errors.go and
// pkg/api/errors.go in the teacher repo.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStateTransition is returned when a campaign status change
	// is not present in the transition table (spec.md §4.1).
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrForbidden is returned when a user attempts to access another
	// user's resource.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized is returned for missing/invalid/revoked tokens or
	// an invalid webhook signature.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists is returned on a unique-constraint collision.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrQuotaExceeded surfaces as 402/429 at the HTTP boundary.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// ValidationError wraps field-shape errors (spec.md: ValidationFailed, 400/422).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Message)
}

// NewValidationError builds a field-scoped validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StageError is raised inside the orchestrator when a workflow stage
// fails. It is caught once per stage, recorded onto the campaign, and
// re-raised so the task runtime can apply retry semantics.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps an underlying cause with the stage that produced it.
func NewStageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// TransientDependencyError marks a failure that should trigger a task
// retry with backoff (a timed-out HTTP call, a deadlocked transaction).
type TransientDependencyError struct {
	Err error
}

func (e *TransientDependencyError) Error() string { return fmt.Sprintf("transient dependency error: %v", e.Err) }
func (e *TransientDependencyError) Unwrap() error { return e.Err }

// NewTransientDependencyError marks err as retryable.
func NewTransientDependencyError(err error) error {
	return &TransientDependencyError{Err: err}
}

// PermanentDependencyError marks a failure that must not be retried.
type PermanentDependencyError struct {
	Err error
}

func (e *PermanentDependencyError) Error() string { return fmt.Sprintf("permanent dependency error: %v", e.Err) }
func (e *PermanentDependencyError) Unwrap() error { return e.Err }

// NewPermanentDependencyError marks err as non-retryable.
func NewPermanentDependencyError(err error) error {
	return &PermanentDependencyError{Err: err}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err is (or wraps) a *TransientDependencyError.
func IsTransient(err error) bool {
	var te *TransientDependencyError
	return errors.As(err, &te)
}
