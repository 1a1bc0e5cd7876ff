package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventSource  = "exam-attempt-service"
	EventVersion = "1.0"
)

// Attempt lifecycle event types
const (
	AttemptStarted   = "exam.attempt.started"
	AttemptSubmitted = "exam.attempt.submitted"
	AttemptExpired   = "exam.attempt.expired"
	AttemptGraded    = "exam.attempt.graded"
)

// Event is the envelope written to the broker
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// AttemptEvent is the payload of every attempt lifecycle event
type AttemptEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	ExamID        uint      `json:"exam_id"`
	CourseID      *uint     `json:"course_id"`
	UserID        string    `json:"user_id"`
	AttemptNumber int       `json:"attempt_number"`
	Status        string    `json:"status"`
	Score         float64   `json:"score"`
	MaxScore      float64   `json:"max_score"`
	Passed        *bool     `json:"passed"`
	OccurredAt    time.Time `json:"occurred_at"`
	// GradedBy is set for manual grading only
	GradedBy string `json:"graded_by,omitempty"`
}
