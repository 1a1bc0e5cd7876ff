package grading

import (
	"testing"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

func answer(points float64, correct *bool) models.ExamAnswer {
	return models.ExamAnswer{PointsAwarded: points, IsCorrect: correct}
}

func TestComputeScore(t *testing.T) {
	yes, no := boolPtr(true), boolPtr(false)

	tests := []struct {
		name       string
		answers    []models.ExamAnswer
		maxScore   float64
		passMark   float64
		wantScore  float64
		wantStatus models.AttemptStatus
		wantPassed *bool
		wantManual bool
	}{
		{"all correct passes", []models.ExamAnswer{answer(2, yes), answer(3, yes)}, 5, 70, 5, models.AttemptGraded, yes, false},
		{"boundary is inclusive", []models.ExamAnswer{answer(7, yes), answer(0, no)}, 10, 70, 7, models.AttemptGraded, yes, false},
		{"below pass mark", []models.ExamAnswer{answer(6.99, yes)}, 10, 70, 6.99, models.AttemptGraded, no, false},
		{"indeterminate blocks grading", []models.ExamAnswer{answer(5, yes), answer(0, nil)}, 10, 50, 5, models.AttemptSubmitted, nil, true},
		{"zero max score", []models.ExamAnswer{answer(0, yes)}, 0, 70, 0, models.AttemptSubmitted, nil, false},
		{"no answers", nil, 10, 70, 0, models.AttemptGraded, no, false},
		{"zero pass mark", nil, 10, 0, 0, models.AttemptGraded, yes, false},
		{"rounded to cents", []models.ExamAnswer{answer(0.333, yes), answer(0.333, yes)}, 1, 50, 0.67, models.AttemptGraded, yes, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(tt.answers, tt.maxScore, tt.passMark)

			if got.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", got.Status, tt.wantStatus)
			}
			if got.RequiresManual != tt.wantManual {
				t.Errorf("RequiresManual = %v, want %v", got.RequiresManual, tt.wantManual)
			}
			switch {
			case tt.wantPassed == nil && got.Passed != nil:
				t.Errorf("Passed = %v, want nil", *got.Passed)
			case tt.wantPassed != nil && (got.Passed == nil || *got.Passed != *tt.wantPassed):
				t.Errorf("Passed = %v, want %v", got.Passed, *tt.wantPassed)
			}
		})
	}
}

func TestComputeScoreNeverExceedsMax(t *testing.T) {
	yes := boolPtr(true)
	answers := []models.ExamAnswer{answer(1, yes), answer(2, yes), answer(1.5, yes)}
	got := ComputeScore(answers, 4.5, 70)
	if got.Score > got.MaxScore {
		t.Fatalf("score %v exceeds max %v", got.Score, got.MaxScore)
	}
}

func TestFinish(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	exam := &models.Exam{PassMark: 50, DurationMinutes: 30, Questions: []models.ExamQuestion{{ID: 1, Points: 2}}}
	attempt := &models.ExamAttempt{StartTime: start, MaxScore: 99, Answers: []models.ExamAnswer{answer(2, boolPtr(true))}}

	out := Finish(attempt, exam, start.Add(90*time.Second+500*time.Millisecond))

	if attempt.DurationSeconds == nil || *attempt.DurationSeconds != 90 {
		t.Errorf("DurationSeconds = %v, want 90", attempt.DurationSeconds)
	}
	if attempt.MaxScore != 2 {
		t.Errorf("MaxScore = %v, want live total 2", attempt.MaxScore)
	}
	if out.Status != models.AttemptGraded || attempt.Status != models.AttemptGraded {
		t.Errorf("Status = %v, want graded", attempt.Status)
	}
	if attempt.EndTime == nil || attempt.EndTime.Before(start) {
		t.Errorf("EndTime = %v", attempt.EndTime)
	}
}

func TestFinishClampsNegativeDuration(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	exam := &models.Exam{}
	attempt := &models.ExamAttempt{StartTime: start}

	Finish(attempt, exam, start.Add(-time.Minute))

	if *attempt.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %d, want 0", *attempt.DurationSeconds)
	}
}

func TestTimeRemaining(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	exam := &models.Exam{DurationMinutes: 30}
	attempt := &models.ExamAttempt{StartTime: start}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"fresh", 0, 1800},
		{"partial second truncates", 10*time.Second + 900*time.Millisecond, 1790},
		{"exactly at deadline", 30 * time.Minute, 0},
		{"past deadline floors at zero", 31 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeRemaining(attempt, exam, start.Add(tt.elapsed)); got != tt.want {
				t.Errorf("TimeRemaining = %d, want %d", got, tt.want)
			}
		})
	}
}
