package repositories

import (
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ExamFilters struct {
	CourseID  *uint  `json:"course_id"`
	IsActive  *bool  `json:"is_active"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	SortBy    string `json:"sort_by"`    // "created_at", "title", "id"
	SortOrder string `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	UserID    *string               `json:"user_id"`
	Finished  bool                  `json:"finished"` // exclude in-progress rows
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "start_time", "score", "id"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

// ===== SHARED HELPER STRUCTS =====

type QuestionOrder struct {
	QuestionID uint `json:"question_id"`
	Order      int  `json:"order"`
}

// ===== SHARED STATISTICS STRUCTS =====

// ExamAttemptAggregates covers finished attempts only. Nil pointers mean no rows.
type ExamAttemptAggregates struct {
	AttemptCount    int64    `json:"attempt_count"`
	AverageScore    *float64 `json:"average_score"`
	HighestScore    *float64 `json:"highest_score"`
	LowestScore     *float64 `json:"lowest_score"`
	AverageDuration *float64 `json:"average_duration"`
	PassedTotal     int64    `json:"passed_total"`
}

// QuestionAnswerCount is one row of per-question answer tallies, ordered by question id.
type QuestionAnswerCount struct {
	QuestionID uint  `json:"question_id"`
	Total      int64 `json:"total"`
	Correct    int64 `json:"correct"`
}
