package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/grading"
	"github.com/SAP-F-2025/exam-attempt-service/internal/metrics"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

// DefaultSubmitGrace is how long after the deadline a submitted payload is still accepted
const DefaultSubmitGrace = 2 * time.Second

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	publisher events.EventPublisher
	stats     StatisticsService
	engine    *grading.Engine
	grace     time.Duration
	now       func() time.Time
	tracer    trace.Tracer
}

type AttemptOption func(*attemptService)

func WithSubmitGrace(grace time.Duration) AttemptOption {
	return func(s *attemptService) { s.grace = grace }
}

// WithClock replaces time.Now; tests use it to move past deadlines
func WithClock(now func() time.Time) AttemptOption {
	return func(s *attemptService) { s.now = now }
}

func WithGradingEngine(engine *grading.Engine) AttemptOption {
	return func(s *attemptService) { s.engine = engine }
}

// WithStatistics lets finalization drop cached statistics for the exam
func WithStatistics(stats StatisticsService) AttemptOption {
	return func(s *attemptService) { s.stats = stats }
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, publisher events.EventPublisher, opts ...AttemptOption) AttemptService {
	s := &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		publisher: publisher,
		engine:    grading.NewEngine(),
		grace:     DefaultSubmitGrace,
		now:       time.Now,
		tracer:    otel.Tracer("exam-attempt-service/attempts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) ExamPage(ctx context.Context, scope ExamScope, user *models.User) (*ExamPageResponse, error) {
	exam, err := s.resolveExam(ctx, scope, user)
	if err != nil {
		return nil, err
	}

	response := &ExamPageResponse{
		Exam:         models.NewExamPayload(exam),
		PastAttempts: []*models.AttemptSummary{},
	}

	active, err := s.activeAttempt(ctx, exam, user.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		remaining := grading.TimeRemaining(active, exam, s.now())
		response.ActiveAttemptID = &active.ID
		response.ActiveTimeRemaining = &remaining
	}

	past, err := s.repo.Attempt().ListByUserAndExam(ctx, s.db, user.ID, exam.ID, repositories.AttemptFilters{
		Finished:  true,
		SortBy:    "start_time",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list past attempts: %w", err)
	}
	for _, attempt := range past {
		response.PastAttempts = append(response.PastAttempts, models.NewAttemptSummary(attempt, exam))
	}
	return response, nil
}

func (s *attemptService) Start(ctx context.Context, scope ExamScope, user *models.User) (*StartAttemptResponse, error) {
	ctx, span := s.tracer.Start(ctx, "AttemptService.Start",
		trace.WithAttributes(attribute.Int64("exam.id", int64(scope.ExamID))))
	defer span.End()
	logger := utils.WithTraceContext(ctx, s.logger)

	logger.Info("Starting exam attempt",
		"exam_id", scope.ExamID,
		"user_id", user.ID)

	exam, err := s.resolveExam(ctx, scope, user)
	if err != nil {
		return nil, err
	}

	attempt, err := s.activeAttempt(ctx, exam, user.ID)
	if err != nil {
		return nil, err
	}

	outcome := "resumed"
	if attempt == nil {
		// Runs after the lookup so an attempt it just expired counts as finished
		if err := s.checkRetakes(ctx, exam, user.ID); err != nil {
			return nil, err
		}
		attempt, outcome, err = s.createAttempt(ctx, exam, user.ID)
		if err != nil {
			return nil, err
		}
	}
	metrics.AttemptsStarted.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.Int64("attempt.id", int64(attempt.ID)), attribute.String("attempt.outcome", outcome))

	logger.Info("Exam attempt ready",
		"attempt_id", attempt.ID,
		"attempt_number", attempt.AttemptNumber,
		"outcome", outcome)

	return &StartAttemptResponse{
		AttemptID:            attempt.ID,
		AttemptNumber:        attempt.AttemptNumber,
		StartedAt:            attempt.StartTime.UTC().Format(time.RFC3339Nano),
		TimeRemainingSeconds: grading.TimeRemaining(attempt, exam, s.now()),
		Exam:                 models.NewExamPayload(exam),
		AutosavePayload:      models.RawOr(attempt.AutosavePayload, "{}"),
		Status:               attempt.Status,
		Passed:               attempt.Passed,
	}, nil
}

func (s *attemptService) Autosave(ctx context.Context, scope ExamScope, user *models.User, req *AutosaveRequest) (*AutosaveResponse, error) {
	ctx, span := s.tracer.Start(ctx, "AttemptService.Autosave")
	defer span.End()

	exam, err := s.resolveExam(ctx, scope, user)
	if err != nil {
		return nil, err
	}
	if req.AttemptID == nil || *req.AttemptID == 0 {
		return nil, ErrAttemptIDRequired
	}

	attempt, err := s.ownedAttempt(ctx, exam, user, *req.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}

	if grading.TimeRemaining(attempt, exam, s.now()) <= 0 {
		if err := s.expire(ctx, exam, attempt); err != nil {
			return nil, err
		}
		return nil, ErrAttemptTimeExpired
	}

	if err := s.repo.Attempt().UpdateAutosave(ctx, s.db, attempt.ID, autosavePayload(req.Responses)); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("failed to save progress: %w", err)
	}
	metrics.Autosaves.Inc()

	return &AutosaveResponse{
		Success:              true,
		TimeRemainingSeconds: grading.TimeRemaining(attempt, exam, s.now()),
	}, nil
}

func (s *attemptService) Submit(ctx context.Context, scope ExamScope, user *models.User, req *SubmitRequest) (*SubmitResponse, error) {
	ctx, span := s.tracer.Start(ctx, "AttemptService.Submit")
	defer span.End()

	exam, err := s.resolveExam(ctx, scope, user)
	if err != nil {
		return nil, err
	}
	if req.AttemptID == nil || *req.AttemptID == 0 {
		return nil, ErrAttemptIDRequired
	}

	logger := utils.WithTraceContext(ctx, s.logger)
	logger.Info("Submitting exam attempt",
		"attempt_id", *req.AttemptID,
		"user_id", user.ID)

	attempt, err := s.ownedAttempt(ctx, exam, user, *req.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptAlreadySubmitted
	}

	now := s.now().UTC()
	responses, reason := req.Responses, reasonSubmit
	if now.After(grading.Deadline(attempt, exam).Add(s.grace)) {
		// Past the deadline the client payload is ignored in favor of the last autosave
		responses, reason = json.RawMessage(attempt.AutosavePayload), reasonLateSubmit
		logger.Warn("Late submission, grading autosave payload",
			"attempt_id", attempt.ID,
			"deadline", grading.Deadline(attempt, exam))
	}

	if err := s.finalize(ctx, exam, attempt, responses, now, reason); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("attempt.status", string(attempt.Status)))

	summary := models.NewAttemptSummary(attempt, exam)
	remaining := grading.TimeRemaining(attempt, exam, s.now())
	summary.TimeRemainingSeconds = &remaining

	return &SubmitResponse{Success: true, Attempt: summary}, nil
}

func (s *attemptService) Status(ctx context.Context, scope ExamScope, user *models.User, attemptID *uint) (*StatusResponse, error) {
	exam, err := s.resolveExam(ctx, scope, user)
	if err != nil {
		return nil, err
	}

	var attempt *models.ExamAttempt
	if attemptID != nil && *attemptID != 0 {
		attempt, err = s.ownedAttempt(ctx, exam, user, *attemptID)
	} else {
		attempt, err = s.activeAttempt(ctx, exam, user.ID)
	}
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return &StatusResponse{}, nil
	}

	if attempt.Status == models.AttemptInProgress && grading.TimeRemaining(attempt, exam, s.now()) <= 0 {
		if err := s.expire(ctx, exam, attempt); err != nil {
			return nil, err
		}
		if attempt, err = s.reload(ctx, attempt.ID); err != nil {
			return nil, err
		}
	}

	summary := models.NewAttemptSummary(attempt, exam)
	remaining := grading.TimeRemaining(attempt, exam, s.now())
	summary.TimeRemainingSeconds = &remaining
	return &StatusResponse{Attempt: summary}, nil
}

func (s *attemptService) Result(ctx context.Context, scope ExamScope, user *models.User, attemptID uint) (*models.AttemptSummary, error) {
	exam, err := s.resolveExam(ctx, scope, user)
	if err != nil {
		return nil, err
	}
	attempt, err := s.ownedAttempt(ctx, exam, user, attemptID)
	if err != nil {
		return nil, err
	}
	return models.NewAttemptSummary(attempt, exam), nil
}
