package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type statisticsService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	cache  *cache.CacheManager
}

// NewStatisticsService caches aggregates in cm.Stats; a manager without a redis client disables caching
func NewStatisticsService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, cm *cache.CacheManager) StatisticsService {
	if cm == nil {
		cm = cache.NewCacheManager(nil)
	}
	return &statisticsService{
		repo:   repo,
		db:     db,
		logger: logger,
		cache:  cm,
	}
}

func (s *statisticsService) GetExamStatistics(ctx context.Context, examID uint) (*ExamStatistics, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	var stats ExamStatistics
	err = s.cache.Stats.CacheOrExecute(ctx, cache.ExamStatsKey(examID), &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return s.computeStatistics(ctx, exam)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *statisticsService) GetQuestionAnalytics(ctx context.Context, examID uint) ([]QuestionAnalytics, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	var analytics []QuestionAnalytics
	err = s.cache.Stats.CacheOrExecute(ctx, cache.ExamQuestionAnalyticsKey(examID), &analytics, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return s.computeQuestionAnalytics(ctx, exam)
	})
	if err != nil {
		return nil, err
	}
	return analytics, nil
}

func (s *statisticsService) GetExamResults(ctx context.Context, examID uint) (*ExamResultsResponse, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	stats, err := s.GetExamStatistics(ctx, examID)
	if err != nil {
		return nil, err
	}
	analytics, err := s.GetQuestionAnalytics(ctx, examID)
	if err != nil {
		return nil, err
	}

	attempts, _, err := s.repo.Attempt().ListByExam(ctx, s.db, examID, repositories.AttemptFilters{
		SortBy:    "start_time",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list exam attempts: %w", err)
	}

	users := lookupUsers(ctx, s.repo.User(), s.logger, attempts)
	payloads := make([]*models.AdminAttemptPayload, 0, len(attempts))
	for _, attempt := range attempts {
		payloads = append(payloads, newAdminAttemptPayload(attempt, exam, users[attempt.UserID]))
	}

	return &ExamResultsResponse{
		Exam:              models.NewExamPayload(exam),
		Statistics:        stats,
		QuestionAnalytics: analytics,
		Attempts:          payloads,
	}, nil
}

func (s *statisticsService) InvalidateExam(ctx context.Context, examID uint) {
	cache.InvalidateExamStats(ctx, s.cache, examID)
}

// ===== COMPUTATION =====

func (s *statisticsService) loadExam(ctx context.Context, examID uint) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return exam, nil
}

func (s *statisticsService) computeStatistics(ctx context.Context, exam *models.Exam) (*ExamStatistics, error) {
	agg, err := s.repo.Attempt().GetExamAggregates(ctx, s.db, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempts: %w", err)
	}
	counts, err := s.repo.Answer().GetQuestionAnswerCounts(ctx, s.db, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count answers: %w", err)
	}

	stats := &ExamStatistics{
		ExamID:          exam.ID,
		AttemptCount:    agg.AttemptCount,
		AverageScore:    round2Ptr(agg.AverageScore),
		HighestScore:    agg.HighestScore,
		LowestScore:     agg.LowestScore,
		AverageDuration: round2Ptr(agg.AverageDuration),
		PassedTotal:     agg.PassedTotal,
		MostMissed:      mostMissed(counts, exam.QuestionLookup()),
	}
	if agg.AttemptCount > 0 {
		rate := models.Round2(float64(agg.PassedTotal) / float64(agg.AttemptCount) * 100)
		stats.PassRate = &rate
	}
	return stats, nil
}

func (s *statisticsService) computeQuestionAnalytics(ctx context.Context, exam *models.Exam) ([]QuestionAnalytics, error) {
	counts, err := s.repo.Answer().GetQuestionAnswerCounts(ctx, s.db, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count answers: %w", err)
	}

	lookup := exam.QuestionLookup()
	analytics := make([]QuestionAnalytics, 0, len(counts))
	for _, row := range counts {
		analytics = append(analytics, QuestionAnalytics{
			QuestionID:   row.QuestionID,
			QuestionText: questionText(lookup, row.QuestionID),
			Total:        row.Total,
			Correct:      row.Correct,
			Incorrect:    row.Total - row.Correct,
		})
	}
	return analytics, nil
}

// mostMissed walks rows in question id order; only a strictly higher miss ratio replaces the pick
func mostMissed(rows []repositories.QuestionAnswerCount, lookup map[uint]*models.ExamQuestion) *MostMissedQuestion {
	var pick *MostMissedQuestion
	for _, row := range rows {
		if row.Total == 0 {
			continue
		}
		missed := row.Total - row.Correct
		ratio := float64(missed) / float64(row.Total)
		if pick != nil && ratio <= pick.Ratio {
			continue
		}
		pick = &MostMissedQuestion{
			QuestionID:   row.QuestionID,
			QuestionText: questionText(lookup, row.QuestionID),
			Missed:       missed,
			Total:        row.Total,
			Ratio:        ratio,
		}
	}
	return pick
}

func questionText(lookup map[uint]*models.ExamQuestion, id uint) *string {
	q, ok := lookup[id]
	if !ok {
		return nil
	}
	text := q.Text
	return &text
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := models.Round2(*v)
	return &r
}
