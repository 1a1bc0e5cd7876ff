package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

func ExamKey(examID uint) string {
	return fmt.Sprintf("id:%d", examID)
}

func ExamWithQuestionsKey(examID uint) string {
	return fmt.Sprintf("full:%d", examID)
}

func ExamStatsKey(examID uint) string {
	return fmt.Sprintf("exam:%d:summary", examID)
}

func ExamQuestionAnalyticsKey(examID uint) string {
	return fmt.Sprintf("exam:%d:questions", examID)
}

// InvalidateExamCache drops the cached definition after any exam or question write.
func InvalidateExamCache(ctx context.Context, cm *CacheManager, examID uint) {
	SafeDelete(ctx, cm.Exam, ExamKey(examID), ExamWithQuestionsKey(examID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("exam:%d:*", examID))
}

// InvalidateExamStats drops cached statistics after an attempt is finalized or regraded.
func InvalidateExamStats(ctx context.Context, cm *CacheManager, examID uint) {
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("exam:%d:*", examID))
}
