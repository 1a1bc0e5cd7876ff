package services

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

var (
	// Exam errors
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")

	// Attempt errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptIDRequired       = errors.New("attempt id is required")
	ErrAttemptNotActive        = errors.New("attempt is no longer active")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptTimeExpired      = errors.New("attempt time expired")
	ErrAttemptConflict         = errors.New("attempt was modified concurrently")
	ErrRetakesDisabled         = errors.New("retakes are disabled for this exam")
	ErrExamAlreadyPassed       = errors.New("exam already passed and retakes are not allowed")

	// Report errors
	ErrReportStorageDisabled = errors.New("report storage is not configured")

	// Generic errors
	ErrForbidden        = errors.New("forbidden")
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationErrors is the field-level result of struct validation
type ValidationErrors = validator.ValidationErrors

// ValidationError is a single rule failure raised by service logic rather than struct tags
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// PermissionError describes a denied action on a resource
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}
