package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"

	// Written by older deployments; only read when checking whether a user already passed.
	AttemptLegacyPassed AttemptStatus = "passed"
)

func (s AttemptStatus) IsValid() bool {
	switch s {
	case AttemptInProgress, AttemptSubmitted, AttemptGraded:
		return true
	}
	return false
}

func (s AttemptStatus) IsFinished() bool {
	return s != AttemptInProgress
}

// ExamAttempt - one sitting of a user at an exam.
// At most one row per (user_id, exam_id) may be in-progress; see idx_exam_attempts_active.
type ExamAttempt struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	UserID   string `json:"user_id" gorm:"not null;size:255;index:idx_exam_attempts_user_exam"`
	ExamID   uint   `json:"exam_id" gorm:"not null;index:idx_exam_attempts_user_exam;index"`
	CourseID *uint  `json:"course_id" gorm:"index"`

	// Timing (UTC)
	StartTime       time.Time  `json:"start_time" gorm:"not null"`
	EndTime         *time.Time `json:"end_time"`
	DurationSeconds *int       `json:"duration_seconds"`

	Status        AttemptStatus `json:"status" gorm:"not null;size:20;default:in-progress;index"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;default:1"`

	// Scoring
	Score    float64 `json:"score" gorm:"not null;default:0"`
	MaxScore float64 `json:"max_score" gorm:"not null;default:0"`
	Passed   *bool   `json:"passed"`

	AutosavePayload datatypes.JSON `json:"autosave_payload" gorm:"type:jsonb"`
	OverallFeedback *string        `json:"overall_feedback" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Answers []ExamAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// RequiresManualGrading is true while any answer is indeterminate.
func (a *ExamAttempt) RequiresManualGrading() bool {
	for _, answer := range a.Answers {
		if answer.IsCorrect == nil {
			return true
		}
	}
	return false
}

// Percentage uses the max score captured on the attempt, not the live exam total.
func (a *ExamAttempt) Percentage() *float64 {
	if a.MaxScore == 0 {
		return nil
	}
	p := Round2(a.Score / a.MaxScore * 100)
	return &p
}

type ExamAnswer struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	AttemptID     uint           `json:"attempt_id" gorm:"not null;index"`
	QuestionID    uint           `json:"question_id" gorm:"not null;index"`
	ResponseData  datatypes.JSON `json:"response_data" gorm:"type:jsonb"`
	IsCorrect     *bool          `json:"is_correct"` // nil = awaiting manual grading
	PointsAwarded float64        `json:"points_awarded" gorm:"not null;default:0"`
	Feedback      *string        `json:"feedback" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExamAnswer) TableName() string {
	return "exam_answers"
}
