package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type ExamPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
	// inTx disables cached reads; writes still invalidate
	inTx bool
}

func NewExamPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.ExamRepository {
	return &ExamPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

func newExamPostgreSQLTx(tx *gorm.DB, cacheManager *cache.CacheManager) repositories.ExamRepository {
	return &ExamPostgreSQL{db: tx, helpers: NewSharedHelpers(tx), cacheManager: cacheManager, inTx: true}
}

func (e *ExamPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

// Create inserts the exam with its questions in one statement batch
func (e *ExamPostgreSQL) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Create(exam).Error; err != nil {
		return translateError(err, "failed to create exam")
	}
	return nil
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	db := e.getDB(tx)
	var exam models.Exam
	if err := db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return nil, translateError(err, "failed to get exam %d", id)
	}
	return &exam, nil
}

// GetByIDWithQuestions goes through the exam cache outside of transactions
func (e *ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	db := e.getDB(tx)
	load := func() (*models.Exam, error) {
		var exam models.Exam
		err := db.WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("order_index ASC, id ASC")
			}).
			First(&exam, id).Error
		if err != nil {
			return nil, translateError(err, "failed to get exam %d", id)
		}
		return &exam, nil
	}

	if e.inTx || (tx != nil && tx != e.db) {
		return load()
	}

	var exam models.Exam
	err := e.cacheManager.Exam.CacheOrExecute(ctx, cache.ExamWithQuestionsKey(id), &exam, cache.ExamCacheConfig.TTL, func() (interface{}, error) {
		return load()
	})
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// Update saves the exam row only; questions are managed through QuestionRepository
func (e *ExamPostgreSQL) Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Omit(clause.Associations).Save(exam).Error; err != nil {
		return translateError(err, "failed to update exam %d", exam.ID)
	}
	cache.InvalidateExamCache(ctx, e.cacheManager, exam.ID)
	return nil
}

// Delete removes the exam together with its questions, attempts and answers
func (e *ExamPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := e.getDB(tx).WithContext(ctx)

	attemptIDs := db.Model(&models.ExamAttempt{}).Select("id").Where("exam_id = ?", id)
	if err := db.Where("attempt_id IN (?)", attemptIDs).Delete(&models.ExamAnswer{}).Error; err != nil {
		return fmt.Errorf("failed to delete exam answers: %w", err)
	}
	if err := db.Where("exam_id = ?", id).Delete(&models.ExamAttempt{}).Error; err != nil {
		return fmt.Errorf("failed to delete exam attempts: %w", err)
	}
	if err := db.Where("exam_id = ?", id).Delete(&models.ExamQuestion{}).Error; err != nil {
		return fmt.Errorf("failed to delete exam questions: %w", err)
	}

	result := db.Delete(&models.Exam{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete exam: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("exam %d: %w", id, repositories.ErrNotFound)
	}

	cache.InvalidateExamCache(ctx, e.cacheManager, id)
	return nil
}

func (e *ExamPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	db := e.getDB(tx)
	query := e.helpers.ApplyExamFilters(db.WithContext(ctx).Model(&models.Exam{}), filters)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}

	var exams []*models.Exam
	query = e.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Preload("Questions").Find(&exams).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list exams: %w", err)
	}
	return exams, total, nil
}

// ListByCourse returns active exams of a course in creation order
func (e *ExamPostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Exam, error) {
	db := e.getDB(tx)
	var exams []*models.Exam
	err := db.WithContext(ctx).
		Preload("Questions").
		Where("course_id = ? AND is_active = ?", courseID, true).
		Order("id ASC").
		Find(&exams).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list course exams: %w", err)
	}
	return exams, nil
}
