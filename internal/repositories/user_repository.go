package repositories

import (
	"context"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// UserRepository interface for user lookups (the service is not owner of user data)
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}

// EnrollmentRepository answers the course access predicate
type EnrollmentRepository interface {
	IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error)
}
