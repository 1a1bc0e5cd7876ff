package grading

import (
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// Outcome is the aggregate of an attempt's answers.
type Outcome struct {
	Score          float64
	MaxScore       float64
	Passed         *bool
	Status         models.AttemptStatus
	RequiresManual bool
}

// ComputeScore sums awarded points and decides pass/fail. Any indeterminate answer, or an
// exam worth nothing, leaves the attempt submitted with passed unset.
func ComputeScore(answers []models.ExamAnswer, maxScore, passMark float64) Outcome {
	out := Outcome{MaxScore: maxScore, Status: models.AttemptSubmitted}

	total := 0.0
	for _, a := range answers {
		total += a.PointsAwarded
		if a.IsCorrect == nil {
			out.RequiresManual = true
		}
	}
	out.Score = models.Round2(total)

	if maxScore > 0 && !out.RequiresManual {
		percent := out.Score / maxScore * 100
		passed := percent >= passMark
		out.Passed = &passed
		out.Status = models.AttemptGraded
	}
	return out
}

// ApplyScore recomputes score fields on attempt from its loaded answers. max_score is
// taken live from the exam's questions, not from the value captured at start.
func ApplyScore(attempt *models.ExamAttempt, exam *models.Exam) Outcome {
	out := ComputeScore(attempt.Answers, exam.MaxScore(), exam.PassMark)
	attempt.Score = out.Score
	attempt.MaxScore = out.MaxScore
	attempt.Passed = out.Passed
	attempt.Status = out.Status
	return out
}

// Finish stamps end time and duration, then scores the attempt.
func Finish(attempt *models.ExamAttempt, exam *models.Exam, at time.Time) Outcome {
	at = at.UTC()
	start := attempt.StartTime.UTC()
	if attempt.StartTime.IsZero() {
		start = at
	}
	attempt.StartTime = start
	attempt.EndTime = &at

	duration := int(at.Sub(start) / time.Second)
	if duration < 0 {
		duration = 0
	}
	attempt.DurationSeconds = &duration
	return ApplyScore(attempt, exam)
}

// TimeRemaining floors at zero. Elapsed time is truncated to whole seconds.
func TimeRemaining(attempt *models.ExamAttempt, exam *models.Exam, now time.Time) int {
	duration := exam.DurationMinutes * 60
	elapsed := int(now.UTC().Sub(attempt.StartTime.UTC()) / time.Second)
	remaining := duration - elapsed
	if remaining > 0 {
		return remaining
	}
	return 0
}

// Deadline is start + duration.
func Deadline(attempt *models.ExamAttempt, exam *models.Exam) time.Time {
	return attempt.StartTime.UTC().Add(time.Duration(exam.DurationMinutes) * time.Minute)
}
