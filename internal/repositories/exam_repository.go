package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// ExamRepository interface for exam definitions
type ExamRepository interface {
	// Create inserts the exam and any questions attached to it
	Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	// GetByIDWithQuestions loads questions ordered by (order_index, id); cached
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters ExamFilters) ([]*models.Exam, int64, error)
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Exam, error)
}

// QuestionRepository interface for the ordered questions of an exam
type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.ExamQuestion) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamQuestion, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.ExamQuestion) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamQuestion, error)
	GetNextOrderIndex(ctx context.Context, tx *gorm.DB, examID uint) (int, error)
	UpdateOrder(ctx context.Context, tx *gorm.DB, examID uint, orders []QuestionOrder) error
}
