// Package errors consolidates error definitions for the speedhist project.
//
// It provides sentinel errors for all error conditions, category checking
// functions, and error wrapping utilities.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Store errors
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrSchemaVersionMismatch = errors.New("schema version mismatch")
	ErrTransientWrite        = errors.New("transient write failure")
	ErrMaintenanceFailed     = errors.New("maintenance failed")

	// Lifecycle errors
	ErrAlreadyRunning = errors.New("already running")
	ErrWorkerStopped  = errors.New("worker stopped")
	ErrQueueDrain     = errors.New("queue drain timed out")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidRange  = errors.New("invalid time range")
	ErrNoInterfaces  = errors.New("no network interfaces found")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsFatal returns true if err is not recoverable by a later retry.
// Fatal errors are surfaced to the caller at startup instead of being
// swallowed by the worker loop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSchemaVersionMismatch) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsRetriable returns true if the error is expected to clear on a
// subsequent scheduled run.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTransientWrite) ||
		errors.Is(err, ErrMaintenanceFailed) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidRange)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}
