package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/grading"
	"github.com/SAP-F-2025/exam-attempt-service/internal/metrics"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

// Finalization reasons, used as the metrics label
const (
	reasonSubmit     = "submit"
	reasonLateSubmit = "late_submit"
	reasonExpired    = "expired"
)

// ===== ACCESS =====

// resolveExam loads the exam addressed by scope and checks the caller may take it.
// A course-bound exam reached through another course, or through a standalone route, is not found.
func (s *attemptService) resolveExam(ctx context.Context, scope ExamScope, user *models.User) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, scope.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if exam.CourseID != nil && (scope.CourseID == nil || *scope.CourseID != *exam.CourseID) {
		return nil, ErrExamNotFound
	}

	if err := s.checkAccess(ctx, exam, user); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *attemptService) checkAccess(ctx context.Context, exam *models.Exam, user *models.User) error {
	if user.IsAdmin() {
		return nil
	}
	if !exam.IsActive {
		return ErrExamNotFound
	}

	if exam.IsStandalone() {
		if !user.IsElevated() {
			return NewPermissionError(user.ID, exam.ID, "exam", "take", "standalone exams require an elevated role")
		}
		return nil
	}

	enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, user.ID, *exam.CourseID)
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return NewPermissionError(user.ID, exam.ID, "exam", "take", "not enrolled in course")
	}
	return nil
}

// checkRetakes applies the no-retake rule. The latest finished attempt is picked by id, not time.
func (s *attemptService) checkRetakes(ctx context.Context, exam *models.Exam, userID string) error {
	if exam.AllowRetakes {
		return nil
	}

	graded, err := s.repo.Attempt().HasGradedAttempt(ctx, s.db, userID, exam.ID)
	if err != nil {
		return fmt.Errorf("failed to check graded attempts: %w", err)
	}
	if graded {
		return ErrExamAlreadyPassed
	}

	latest, err := s.repo.Attempt().GetLatestFinishedAttempt(ctx, s.db, userID, exam.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to get latest attempt: %w", err)
	}
	if latest.Passed != nil {
		return ErrRetakesDisabled
	}
	return nil
}

func (s *attemptService) ownedAttempt(ctx context.Context, exam *models.Exam, user *models.User, attemptID uint) (*models.ExamAttempt, error) {
	attempt, err := s.reload(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != user.ID || attempt.ExamID != exam.ID {
		return nil, NewPermissionError(user.ID, attemptID, "attempt", "access", "not owned by user")
	}
	return attempt, nil
}

func (s *attemptService) reload(ctx context.Context, attemptID uint) (*models.ExamAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

// ===== LIFECYCLE =====

// activeAttempt is the resume lookup. An expired in-progress attempt is finalized and reported as none.
func (s *attemptService) activeAttempt(ctx context.Context, exam *models.Exam, userID string) (*models.ExamAttempt, error) {
	attempt, err := s.repo.Attempt().GetActiveAttempt(ctx, s.db, userID, exam.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}

	if grading.TimeRemaining(attempt, exam, s.now()) <= 0 {
		if err := s.expire(ctx, exam, attempt); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return attempt, nil
}

// createAttempt inserts a new in-progress attempt. Losing the insert race to a concurrent
// start returns the winner's attempt instead.
func (s *attemptService) createAttempt(ctx context.Context, exam *models.Exam, userID string) (*models.ExamAttempt, string, error) {
	count, err := s.repo.Attempt().CountByUserAndExam(ctx, s.db, userID, exam.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count attempts: %w", err)
	}

	attempt := &models.ExamAttempt{
		UserID:        userID,
		ExamID:        exam.ID,
		CourseID:      exam.CourseID,
		StartTime:     s.now().UTC(),
		Status:        models.AttemptInProgress,
		AttemptNumber: int(count) + 1,
		MaxScore:      exam.MaxScore(),
	}

	err = s.repo.Attempt().Create(ctx, s.db, attempt)
	if err == nil {
		s.publish(ctx, events.AttemptStarted, attempt, "")
		return attempt, "created", nil
	}
	if !repositories.IsDuplicateKeyError(err) {
		return nil, "", fmt.Errorf("failed to create attempt: %w", err)
	}

	existing, lookupErr := s.repo.Attempt().GetActiveAttempt(ctx, s.db, userID, exam.ID)
	if lookupErr != nil {
		if repositories.IsNotFoundError(lookupErr) {
			return nil, "", ErrAttemptConflict
		}
		return nil, "", fmt.Errorf("failed to get active attempt: %w", lookupErr)
	}
	return existing, "resumed", nil
}

// expire finalizes a timed-out attempt from its autosave payload. Losing the race to
// another finalizer is not an error.
func (s *attemptService) expire(ctx context.Context, exam *models.Exam, attempt *models.ExamAttempt) error {
	err := s.finalize(ctx, exam, attempt, attempt.AutosavePayload, s.now().UTC(), reasonExpired)
	if errors.Is(err, ErrAttemptAlreadySubmitted) {
		return nil
	}
	return err
}

// finalize grades responses, replaces the attempt's answers and writes the finished state
// in one transaction. The write is conditional on the attempt still being in progress.
func (s *attemptService) finalize(ctx context.Context, exam *models.Exam, attempt *models.ExamAttempt, responses []byte, at time.Time, reason string) error {
	answers := s.gradeResponses(exam, attempt.ID, responses)

	attempt.Answers = make([]models.ExamAnswer, len(answers))
	for i, a := range answers {
		attempt.Answers[i] = *a
	}
	attempt.AutosavePayload = nil
	grading.Finish(attempt, exam, at)

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().Finalize(ctx, nil, attempt); err != nil {
			return err
		}
		if err := txRepo.Answer().DeleteByAttempt(ctx, nil, attempt.ID); err != nil {
			return fmt.Errorf("failed to clear answers: %w", err)
		}
		if len(answers) == 0 {
			return nil
		}
		if err := txRepo.Answer().CreateBatch(ctx, nil, answers); err != nil {
			return fmt.Errorf("failed to save answers: %w", err)
		}
		return nil
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptAlreadySubmitted
		}
		return fmt.Errorf("failed to finalize attempt: %w", err)
	}

	// Pick up generated answer ids
	for i, a := range answers {
		attempt.Answers[i] = *a
	}

	metrics.AttemptsFinalized.WithLabelValues(string(attempt.Status), reason).Inc()
	if s.stats != nil {
		s.stats.InvalidateExam(ctx, exam.ID)
	}

	eventType := events.AttemptSubmitted
	if reason == reasonExpired {
		eventType = events.AttemptExpired
	}
	s.publish(ctx, eventType, attempt, "")

	s.logger.Info("Exam attempt finalized",
		"attempt_id", attempt.ID,
		"status", attempt.Status,
		"score", attempt.Score,
		"max_score", attempt.MaxScore,
		"reason", reason)
	return nil
}

// ===== GRADING =====

// gradeResponses builds one answer per well-formed response item that names a question of
// the exam. Malformed items and unknown questions are skipped.
func (s *attemptService) gradeResponses(exam *models.Exam, attemptID uint, raw []byte) []*models.ExamAnswer {
	lookup := exam.QuestionLookup()
	settings := exam.GradingSettings()
	manual := settings.GradingMode == models.GradingManual

	var answers []*models.ExamAnswer
	for _, item := range parseResponseItems(raw) {
		question, ok := lookup[item.questionID]
		if !ok {
			continue
		}

		result := s.engine.Grade(question, item.response, !manual)
		if manual {
			result.IsCorrect = nil
			result.PointsAwarded = 0
		}
		if result.IsCorrect == nil {
			result.PointsAwarded = 0
		}

		normalized, err := json.Marshal(result.Normalized)
		if err != nil {
			s.logger.Warn("Skipping response that cannot be stored",
				"attempt_id", attemptID,
				"question_id", item.questionID,
				"error", err)
			continue
		}

		answers = append(answers, &models.ExamAnswer{
			AttemptID:     attemptID,
			QuestionID:    item.questionID,
			ResponseData:  datatypes.JSON(normalized),
			IsCorrect:     result.IsCorrect,
			PointsAwarded: result.PointsAwarded,
		})
	}
	return answers
}

type responseItem struct {
	questionID uint
	response   interface{}
}

// parseResponseItems accepts a list of {question_id, response|selected|values|text|value}
// objects or a map keyed by question id. Map entries are returned in question id order.
func parseResponseItems(raw []byte) []responseItem {
	if len(raw) == 0 {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}

	var items []responseItem
	switch v := decoded.(type) {
	case map[string]interface{}:
		for key, value := range v {
			id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
			if err != nil || id == 0 {
				continue
			}
			items = append(items, responseItem{questionID: uint(id), response: value})
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].questionID < items[j].questionID })
	case []interface{}:
		for _, entry := range v {
			obj, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			id, ok := questionIDOf(obj["question_id"])
			if !ok {
				continue
			}
			items = append(items, responseItem{questionID: id, response: responseOf(obj)})
		}
	}
	return items
}

func questionIDOf(v interface{}) (uint, bool) {
	n, ok := v.(float64)
	if !ok || n <= 0 || n != math.Trunc(n) || n > math.MaxUint32 {
		return 0, false
	}
	return uint(n), true
}

// responseOf prefers "response", then falls back to the shorthand keys in a fixed order
func responseOf(item map[string]interface{}) interface{} {
	if r := item["response"]; r != nil {
		return r
	}
	if v, ok := item["selected"]; ok {
		return map[string]interface{}{"selected": v}
	}
	if v, ok := item["values"]; ok {
		return map[string]interface{}{"selected": v}
	}
	if v, ok := item["text"]; ok {
		return map[string]interface{}{"text": v}
	}
	if v, ok := item["value"]; ok {
		return v
	}
	return nil
}

// autosavePayload stores falsy payloads as an empty object
func autosavePayload(raw []byte) datatypes.JSON {
	var decoded interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &decoded) != nil || !models.Truthy(decoded) {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

// ===== EVENTS =====

func (s *attemptService) publish(ctx context.Context, eventType string, attempt *models.ExamAttempt, gradedBy string) {
	publishAttemptEvent(ctx, s.publisher, s.logger, eventType, attempt, gradedBy, s.now())
}

// publishAttemptEvent is best effort: the attempt is already committed, so a broker
// failure is logged and swallowed.
func publishAttemptEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, eventType string, attempt *models.ExamAttempt, gradedBy string, at time.Time) {
	if publisher == nil {
		return
	}
	event := events.NewEvent(eventType, events.AttemptEvent{
		AttemptID:     attempt.ID,
		ExamID:        attempt.ExamID,
		CourseID:      attempt.CourseID,
		UserID:        attempt.UserID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        string(attempt.Status),
		Score:         attempt.Score,
		MaxScore:      attempt.MaxScore,
		Passed:        attempt.Passed,
		OccurredAt:    at.UTC(),
		GradedBy:      gradedBy,
	})
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish attempt event",
			"event_type", eventType,
			"attempt_id", attempt.ID,
			"error", err)
	}
}
