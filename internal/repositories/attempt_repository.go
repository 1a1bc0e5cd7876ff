package repositories

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// AttemptRepository interface for exam attempts
type AttemptRepository interface {
	// Create returns ErrDuplicateKey when the user already has an in-progress attempt
	Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	// GetByID loads the attempt with its answers
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	// Finalize writes the finished state only while the stored row is still in progress;
	// ErrNotFound means another request finished it first
	Finalize(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	// UpdateAutosave overwrites the payload only if the attempt is still in progress
	UpdateAutosave(ctx context.Context, tx *gorm.DB, id uint, payload datatypes.JSON) error

	// Per-user lookups
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error)
	GetLatestAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error)
	GetLatestFinishedAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error)
	CountByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (int64, error)
	HasGradedAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error)
	ListByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint, filters AttemptFilters) ([]*models.ExamAttempt, error)

	// Admin queries
	ListByExam(ctx context.Context, tx *gorm.DB, examID uint, filters AttemptFilters) ([]*models.ExamAttempt, int64, error)
	GetExamAggregates(ctx context.Context, tx *gorm.DB, examID uint) (*ExamAttemptAggregates, error)
}

// AnswerRepository interface for graded answers
type AnswerRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.ExamAnswer) error
	DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.ExamAnswer, error)
	UpdateGrade(ctx context.Context, tx *gorm.DB, answer *models.ExamAnswer) error

	GetQuestionAnswerCounts(ctx context.Context, tx *gorm.DB, examID uint) ([]QuestionAnswerCount, error)
}
