// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrPromotionNotFound indicates a promotion record was not found.
	ErrPromotionNotFound = errors.New("promotion record not found")

	// ErrIncidentNotFound indicates a drift incident was not found.
	ErrIncidentNotFound = errors.New("drift incident not found")

	// ErrMappingNotFound indicates a workflow mapping was not found.
	ErrMappingNotFound = errors.New("workflow mapping not found")

	// ErrApprovalNotFound indicates an approval request was not found.
	ErrApprovalNotFound = errors.New("approval request not found")
)

// RecordError wraps record-related errors with additional context.
type RecordError struct {
	Op       string // Operation being performed (e.g. "GetByID", "Save")
	RecordID string
	TenantID string
	Err      error
}

func (e *RecordError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("%s operation failed for record %s (tenant %s): %v", e.Op, e.RecordID, e.TenantID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for record %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, recordID string, err error) *RecordError {
	return &RecordError{Op: op, RecordID: recordID, Err: err}
}

// IsPromotionNotFound checks if an error indicates a missing promotion
// record.
func IsPromotionNotFound(err error) bool {
	return errors.Is(err, ErrPromotionNotFound)
}

// IsIncidentNotFound checks if an error indicates a missing drift incident.
func IsIncidentNotFound(err error) bool {
	return errors.Is(err, ErrIncidentNotFound)
}

// IsMappingNotFound checks if an error indicates a missing workflow mapping.
func IsMappingNotFound(err error) bool {
	return errors.Is(err, ErrMappingNotFound)
}
