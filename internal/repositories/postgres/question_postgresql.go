package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// ===== BASIC CRUD OPERATIONS =====

// Create creates a new question and invalidates the owning exam
func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.ExamQuestion) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return translateError(err, "failed to create question")
	}
	cache.InvalidateExamCache(ctx, q.cacheManager, question.ExamID)
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamQuestion, error) {
	db := q.getDB(tx)
	var question models.ExamQuestion
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, translateError(err, "failed to get question %d", id)
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.ExamQuestion) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(question).Error; err != nil {
		return translateError(err, "failed to update question %d", question.ID)
	}
	cache.InvalidateExamCache(ctx, q.cacheManager, question.ExamID)
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)

	var question models.ExamQuestion
	if err := db.WithContext(ctx).Select("id", "exam_id").First(&question, id).Error; err != nil {
		return translateError(err, "failed to get question %d", id)
	}
	if err := db.WithContext(ctx).Delete(&models.ExamQuestion{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	cache.InvalidateExamCache(ctx, q.cacheManager, question.ExamID)
	return nil
}

// ===== EXAM SCOPED OPERATIONS =====

func (q *QuestionPostgreSQL) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamQuestion, error) {
	db := q.getDB(tx)
	var questions []*models.ExamQuestion
	err := db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("order_index ASC, id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get exam questions: %w", err)
	}
	return questions, nil
}

// GetNextOrderIndex returns max(order_index)+1, or 0 for an empty exam
func (q *QuestionPostgreSQL) GetNextOrderIndex(ctx context.Context, tx *gorm.DB, examID uint) (int, error) {
	db := q.getDB(tx)
	var maxOrder *int
	err := db.WithContext(ctx).
		Model(&models.ExamQuestion{}).
		Select("MAX(order_index)").
		Where("exam_id = ?", examID).
		Scan(&maxOrder).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get next order index: %w", err)
	}
	if maxOrder == nil {
		return 0, nil
	}
	return *maxOrder + 1, nil
}

func (q *QuestionPostgreSQL) UpdateOrder(ctx context.Context, tx *gorm.DB, examID uint, orders []repositories.QuestionOrder) error {
	db := q.getDB(tx)
	for _, o := range orders {
		result := db.WithContext(ctx).
			Model(&models.ExamQuestion{}).
			Where("id = ? AND exam_id = ?", o.QuestionID, examID).
			Update("order_index", o.Order)
		if result.Error != nil {
			return fmt.Errorf("failed to reorder question %d: %w", o.QuestionID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("question %d in exam %d: %w", o.QuestionID, examID, repositories.ErrNotFound)
		}
	}
	cache.InvalidateExamCache(ctx, q.cacheManager, examID)
	return nil
}
