package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// ===== BASIC CRUD OPERATIONS =====

// Create relies on idx_exam_attempts_active to reject a second in-progress attempt
func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(attempt).Error; err != nil {
		return translateError(err, "failed to create attempt")
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&attempt, id).Error
	if err != nil {
		return nil, translateError(err, "failed to get attempt %d", id)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Omit(clause.Associations).Save(attempt).Error; err != nil {
		return translateError(err, "failed to update attempt %d", attempt.ID)
	}
	return nil
}

func (a *AttemptPostgreSQL) Finalize(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	now := time.Now().UTC()
	result := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ? AND status = ?", attempt.ID, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"end_time":         attempt.EndTime,
			"duration_seconds": attempt.DurationSeconds,
			"status":           attempt.Status,
			"score":            attempt.Score,
			"max_score":        attempt.MaxScore,
			"passed":           attempt.Passed,
			"autosave_payload": attempt.AutosavePayload,
			"updated_at":       now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize attempt %d: %w", attempt.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("attempt %d is not in progress: %w", attempt.ID, repositories.ErrNotFound)
	}
	attempt.UpdatedAt = now
	return nil
}

func (a *AttemptPostgreSQL) UpdateAutosave(ctx context.Context, tx *gorm.DB, id uint, payload datatypes.JSON) error {
	db := a.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"autosave_payload": payload,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to autosave attempt %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("attempt %d is not in progress: %w", id, repositories.ErrNotFound)
	}
	return nil
}

// ===== PER-USER LOOKUPS =====

// GetActiveAttempt returns the newest in-progress attempt
func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	err := db.WithContext(ctx).
		Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, models.AttemptInProgress).
		Order("start_time DESC, id DESC").
		First(&attempt).Error
	if err != nil {
		return nil, translateError(err, "failed to get active attempt")
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetLatestAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	err := db.WithContext(ctx).
		Where("user_id = ? AND exam_id = ?", userID, examID).
		Order("id DESC").
		First(&attempt).Error
	if err != nil {
		return nil, translateError(err, "failed to get latest attempt")
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetLatestFinishedAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	err := db.WithContext(ctx).
		Where("user_id = ? AND exam_id = ? AND status <> ?", userID, examID, models.AttemptInProgress).
		Order("id DESC").
		First(&attempt).Error
	if err != nil {
		return nil, translateError(err, "failed to get latest finished attempt")
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("user_id = ? AND exam_id = ?", userID, examID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// HasGradedAttempt also accepts the legacy "passed" status
func (a *AttemptPostgreSQL) HasGradedAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("user_id = ? AND exam_id = ? AND status IN ?", userID, examID,
			[]models.AttemptStatus{models.AttemptGraded, models.AttemptLegacyPassed}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check graded attempts: %w", err)
	}
	return count > 0, nil
}

func (a *AttemptPostgreSQL) ListByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint, filters repositories.AttemptFilters) ([]*models.ExamAttempt, error) {
	db := a.getDB(tx)
	filters.UserID = &userID
	query := a.helpers.ApplyAttemptFilters(db.WithContext(ctx).Model(&models.ExamAttempt{}).Where("exam_id = ?", examID), filters)
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var attempts []*models.ExamAttempt
	err := query.
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user attempts: %w", err)
	}
	return attempts, nil
}

// ===== ADMIN QUERIES =====

// ListByExam returns attempts with answers preloaded plus the unpaginated total
func (a *AttemptPostgreSQL) ListByExam(ctx context.Context, tx *gorm.DB, examID uint, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	db := a.getDB(tx)
	query := a.helpers.ApplyAttemptFilters(db.WithContext(ctx).Model(&models.ExamAttempt{}).Where("exam_id = ?", examID), filters)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exam attempts: %w", err)
	}

	var attempts []*models.ExamAttempt
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	err := query.
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Find(&attempts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list exam attempts: %w", err)
	}
	return attempts, total, nil
}

// GetExamAggregates summarizes finished attempts in a single query
func (a *AttemptPostgreSQL) GetExamAggregates(ctx context.Context, tx *gorm.DB, examID uint) (*repositories.ExamAttemptAggregates, error) {
	db := a.getDB(tx)

	var (
		count                 int64
		avgScore, maxScore    sql.NullFloat64
		minScore, avgDuration sql.NullFloat64
		passedTotal           sql.NullInt64
	)
	row := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Select(`COUNT(id),
			AVG(CAST(score AS DOUBLE PRECISION)),
			MAX(CAST(score AS DOUBLE PRECISION)),
			MIN(CAST(score AS DOUBLE PRECISION)),
			AVG(CAST(duration_seconds AS DOUBLE PRECISION)),
			SUM(CASE WHEN passed = ? THEN 1 ELSE 0 END)`, true).
		Where("exam_id = ? AND status <> ?", examID, models.AttemptInProgress).
		Row()
	if err := row.Scan(&count, &avgScore, &maxScore, &minScore, &avgDuration, &passedTotal); err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}

	agg := &repositories.ExamAttemptAggregates{
		AttemptCount: count,
		PassedTotal:  passedTotal.Int64,
	}
	if avgScore.Valid {
		agg.AverageScore = &avgScore.Float64
	}
	if maxScore.Valid {
		agg.HighestScore = &maxScore.Float64
	}
	if minScore.Valid {
		agg.LowestScore = &minScore.Float64
	}
	if avgDuration.Valid {
		agg.AverageDuration = &avgDuration.Float64
	}
	return agg, nil
}

// ===== ANSWERS =====

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AnswerPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.ExamAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	db := a.getDB(tx)
	if err := db.WithContext(ctx).CreateInBatches(answers, 100).Error; err != nil {
		return translateError(err, "failed to create answers")
	}
	return nil
}

func (a *AnswerPostgreSQL) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Where("attempt_id = ?", attemptID).Delete(&models.ExamAnswer{}).Error; err != nil {
		return fmt.Errorf("failed to delete answers of attempt %d: %w", attemptID, err)
	}
	return nil
}

func (a *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.ExamAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.ExamAnswer
	if err := db.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("id ASC").Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers of attempt %d: %w", attemptID, err)
	}
	return answers, nil
}

// UpdateGrade writes only the grading columns
func (a *AnswerPostgreSQL) UpdateGrade(ctx context.Context, tx *gorm.DB, answer *models.ExamAnswer) error {
	db := a.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.ExamAnswer{}).
		Where("id = ? AND attempt_id = ?", answer.ID, answer.AttemptID).
		Updates(map[string]interface{}{
			"is_correct":     answer.IsCorrect,
			"points_awarded": answer.PointsAwarded,
			"feedback":       answer.Feedback,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to grade answer %d: %w", answer.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("answer %d: %w", answer.ID, repositories.ErrNotFound)
	}
	return nil
}

// GetQuestionAnswerCounts tallies answers per question of the exam, ordered by question id
func (a *AnswerPostgreSQL) GetQuestionAnswerCounts(ctx context.Context, tx *gorm.DB, examID uint) ([]repositories.QuestionAnswerCount, error) {
	db := a.getDB(tx)
	var rows []repositories.QuestionAnswerCount
	err := db.WithContext(ctx).
		Table("exam_answers").
		Select(`exam_answers.question_id AS question_id,
			COUNT(exam_answers.id) AS total,
			SUM(CASE WHEN exam_answers.is_correct = ? THEN 1 ELSE 0 END) AS correct`, true).
		Joins("JOIN exam_questions ON exam_questions.id = exam_answers.question_id").
		Where("exam_questions.exam_id = ?", examID).
		Group("exam_answers.question_id").
		Order("exam_answers.question_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count answers per question: %w", err)
	}
	return rows, nil
}
