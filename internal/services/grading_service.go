package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/grading"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

type gradingService struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	stats     StatisticsService
}

func NewGradingService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, stats StatisticsService) GradingService {
	return &gradingService{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		stats:     stats,
	}
}

func (s *gradingService) GetAttemptDetail(ctx context.Context, attemptID uint) (*models.AdminAttemptPayload, error) {
	attempt, exam, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	users := lookupUsers(ctx, s.repo.User(), s.logger, []*models.ExamAttempt{attempt})
	return newAdminAttemptPayload(attempt, exam, users[attempt.UserID]), nil
}

// ===== MANUAL GRADING =====

// GradeAttempt applies per-answer overrides, recomputes the score and then forces the
// requested status, which may disagree with what the aggregator inferred.
func (s *gradingService) GradeAttempt(ctx context.Context, attemptID uint, req *GradeAttemptRequest, graderID string) (*models.AdminAttemptPayload, error) {
	s.logger.Info("Manually grading attempt",
		"attempt_id", attemptID,
		"grader_id", graderID,
		"overrides", len(req.Answers))

	target := models.AttemptStatus(strings.TrimSpace(req.Status))
	if target == "" {
		target = models.AttemptGraded
	}
	if err := s.validator.ValidateVar("status", string(target), "attempt_status"); err != nil {
		return nil, err
	}

	attempt, exam, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	changed := applyOverrides(attempt, req.Answers)
	attempt.OverallFeedback = req.OverallFeedback
	grading.ApplyScore(attempt, exam)
	attempt.Status = target

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		for _, answer := range changed {
			if err := txRepo.Answer().UpdateGrade(ctx, nil, answer); err != nil {
				return fmt.Errorf("failed to update answer %d: %w", answer.ID, err)
			}
		}
		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to update attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save grades: %w", err)
	}

	if s.stats != nil {
		s.stats.InvalidateExam(ctx, exam.ID)
	}
	publishAttemptEvent(ctx, s.publisher, s.logger, events.AttemptGraded, attempt, graderID, time.Now())

	s.logger.Info("Attempt graded",
		"attempt_id", attempt.ID,
		"score", attempt.Score,
		"max_score", attempt.MaxScore,
		"status", attempt.Status)

	return s.GetAttemptDetail(ctx, attemptID)
}

func (s *gradingService) loadAttempt(ctx context.Context, attemptID uint) (*models.ExamAttempt, *models.Exam, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, attempt.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrExamNotFound
		}
		return nil, nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return attempt, exam, nil
}
