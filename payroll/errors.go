/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All engine error types in one place. Surrounding layers (API, queue
  handlers) classify errors with the helpers at the bottom instead of
  matching strings.

ERROR CATEGORIES:
  1. Reference errors - a mutation names a worker/activity/batch that
     does not exist
  2. Validation errors - business rule violations on the write path
     (daily line limit, duplicate (worker, activity, date) triple)
  3. Sync errors - malformed webhook payloads (retryable by contract)

SEE ALSO:
  - service.go: raises the write-path errors
  - hrsync: wraps MissingFieldError for webhook payloads
*/
package payroll

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrWorkerNotFound is returned when a referenced worker does not exist.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrActivityNotFound is returned when a referenced activity does not exist.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrFarmNotFound is returned when a referenced farm does not exist.
	ErrFarmNotFound = errors.New("farm not found")

	// ErrBatchNotFound is returned when a referenced batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrLineNotFound is returned when a referenced line does not exist.
	ErrLineNotFound = errors.New("line not found")

	// ErrDuplicateLine is returned when a second line would share the same
	// (worker, activity, date) triple.
	ErrDuplicateLine = errors.New("duplicate line for worker, activity and date")

	// ErrDailyLineLimit is returned when a worker already has the configured
	// maximum number of lines on a date. Enforced before any calculation runs.
	ErrDailyLineLimit = errors.New("daily line limit reached")

	// ErrMissingField is returned when a sync payload lacks a required key.
	// Retryable by the task contract, though a retry cannot succeed without
	// payload correction; the bounded retry count surfaces it for manual
	// intervention.
	ErrMissingField = errors.New("missing required field")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DailyLimitError reports a daily line limit violation.
type DailyLimitError struct {
	WorkerID WorkerID
	Date     time.Time
	Limit    int
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("worker %s already has %d lines on %s",
		e.WorkerID, e.Limit, e.Date.Format("2006-01-02"))
}

func (e *DailyLimitError) Unwrap() error { return ErrDailyLineLimit }

// MissingFieldError reports which required key a sync payload lacks.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// ReferenceError names a missing reference during bulk line creation.
type ReferenceError struct {
	Kind string // "worker" or "activity"
	Ref  string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference not found: %s %q", e.Kind, e.Ref)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if a task scheduler should retry the error.
// Malformed payloads are retryable by contract (bounded by the task's
// retry limit); reference and validation errors are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrMissingField)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateLine) ||
		errors.Is(err, ErrDailyLineLimit)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrFarmNotFound) ||
		errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrLineNotFound)
}
