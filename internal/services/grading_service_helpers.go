package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

// applyOverrides mutates the attempt's answers in place and returns the ones that were touched.
// Overrides naming an answer of another attempt are ignored.
func applyOverrides(attempt *models.ExamAttempt, overrides []GradeAnswerOverride) []*models.ExamAnswer {
	index := make(map[uint]int, len(attempt.Answers))
	for i, a := range attempt.Answers {
		index[a.ID] = i
	}

	touched := map[uint]bool{}
	var changed []*models.ExamAnswer
	for _, o := range overrides {
		i, ok := index[o.ID]
		if !ok {
			continue
		}
		answer := &attempt.Answers[i]

		if len(o.PointsAwarded) > 0 {
			if points, ok := parsePoints(o.PointsAwarded); ok {
				answer.PointsAwarded = points
			}
		}
		if len(o.IsCorrect) > 0 {
			answer.IsCorrect = parseCorrectness(o.IsCorrect)
		}
		if len(o.Feedback) > 0 {
			answer.Feedback = parseFeedback(o.Feedback)
		}

		if !touched[answer.ID] {
			touched[answer.ID] = true
			changed = append(changed, answer)
		}
	}
	return changed
}

// parsePoints accepts a JSON number or a numeric string
func parsePoints(raw json.RawMessage) (float64, bool) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// parseCorrectness maps null to indeterminate and anything else through JSON truthiness
func parseCorrectness(raw json.RawMessage) *bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return nil
	}
	b := models.Truthy(v)
	return &b
}

func parseFeedback(raw json.RawMessage) *string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return &s
	}
	s := string(raw)
	return &s
}

// ===== ADMIN PAYLOADS =====

func newAdminAttemptPayload(attempt *models.ExamAttempt, exam *models.Exam, user *models.User) *models.AdminAttemptPayload {
	summary := models.NewAttemptSummary(attempt, exam)

	lookup := exam.QuestionLookup()
	for i := range summary.Answers {
		if q, ok := lookup[summary.Answers[i].QuestionID]; ok {
			order := q.OrderIndex
			summary.Answers[i].QuestionOrder = &order
		}
	}
	sort.SliceStable(summary.Answers, func(i, j int) bool {
		return orderOf(summary.Answers[i]) < orderOf(summary.Answers[j])
	})

	return &models.AdminAttemptPayload{
		AttemptSummary:  summary,
		User:            models.NewAttemptUserInfo(user),
		AttemptNumber:   attempt.AttemptNumber,
		AutosavePayload: models.RawOr(attempt.AutosavePayload, "null"),
		CourseID:        attempt.CourseID,
	}
}

func orderOf(a models.AnswerSummary) int {
	if a.QuestionOrder == nil {
		return 0
	}
	return *a.QuestionOrder
}

// lookupUsers resolves attempt owners. A directory failure degrades to "Unknown" users.
func lookupUsers(ctx context.Context, users repositories.UserRepository, logger *slog.Logger, attempts []*models.ExamAttempt) map[string]*models.User {
	out := map[string]*models.User{}
	if users == nil || len(attempts) == 0 {
		return out
	}

	ids := make([]string, 0, len(attempts))
	for _, a := range attempts {
		ids = append(ids, a.UserID)
	}
	found, err := users.GetByIDs(ctx, ids)
	if err != nil {
		logger.Warn("Failed to resolve attempt users", "error", err, "count", len(ids))
		return out
	}
	for _, u := range found {
		out[u.ID] = u
	}
	return out
}
