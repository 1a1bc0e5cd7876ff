package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

// ===== REQUEST/RESPONSE DTOs =====

// ExamScope is the exam addressed by a student route. CourseID is nil on standalone routes.
type ExamScope struct {
	CourseID *uint
	ExamID   uint
}

type ExamPageResponse struct {
	Exam                *models.ExamPayload      `json:"exam"`
	ActiveAttemptID     *uint                    `json:"active_attempt_id"`
	ActiveTimeRemaining *int                     `json:"active_time_remaining"`
	PastAttempts        []*models.AttemptSummary `json:"past_attempts"`
}

type StartAttemptResponse struct {
	AttemptID            uint                 `json:"attempt_id"`
	AttemptNumber        int                  `json:"attempt_number"`
	StartedAt            string               `json:"started_at"`
	TimeRemainingSeconds int                  `json:"time_remaining_seconds"`
	Exam                 *models.ExamPayload  `json:"exam"`
	AutosavePayload      json.RawMessage      `json:"autosave_payload"`
	Status               models.AttemptStatus `json:"status"`
	Passed               *bool                `json:"passed"`
}

type AutosaveRequest struct {
	AttemptID *uint           `json:"attempt_id"`
	Responses json.RawMessage `json:"responses"`
}

type AutosaveResponse struct {
	Success              bool `json:"success"`
	TimeRemainingSeconds int  `json:"time_remaining_seconds"`
}

// SubmitRequest carries responses either as a list of items or as a map keyed by question id
type SubmitRequest struct {
	AttemptID *uint           `json:"attempt_id"`
	Responses json.RawMessage `json:"responses"`
}

type SubmitResponse struct {
	Success bool                   `json:"success"`
	Attempt *models.AttemptSummary `json:"attempt"`
}

// StatusResponse serializes a missing attempt as {"attempt": null}
type StatusResponse struct {
	Attempt *models.AttemptSummary `json:"attempt"`
}

// GradeAnswerOverride keeps raw values so that absent keys can be told apart from nulls
type GradeAnswerOverride struct {
	ID            uint            `json:"id"`
	PointsAwarded json.RawMessage `json:"points_awarded"`
	IsCorrect     json.RawMessage `json:"is_correct"`
	Feedback      json.RawMessage `json:"feedback"`
}

type GradeAttemptRequest struct {
	Answers         []GradeAnswerOverride `json:"answers"`
	OverallFeedback *string               `json:"overall_feedback"`
	Status          string                `json:"status"`
}

type MostMissedQuestion struct {
	QuestionID   uint    `json:"question_id"`
	QuestionText *string `json:"question_text"`
	Missed       int64   `json:"missed"`
	Total        int64   `json:"total"`
	Ratio        float64 `json:"ratio"`
}

type ExamStatistics struct {
	ExamID          uint                `json:"exam_id"`
	AttemptCount    int64               `json:"attempt_count"`
	AverageScore    *float64            `json:"average_score"`
	HighestScore    *float64            `json:"highest_score"`
	LowestScore     *float64            `json:"lowest_score"`
	AverageDuration *float64            `json:"average_duration"`
	PassRate        *float64            `json:"pass_rate"`
	PassedTotal     int64               `json:"passed_total"`
	MostMissed      *MostMissedQuestion `json:"most_missed"`
}

type QuestionAnalytics struct {
	QuestionID   uint    `json:"question_id"`
	QuestionText *string `json:"question_text"`
	Total        int64   `json:"total"`
	Correct      int64   `json:"correct"`
	Incorrect    int64   `json:"incorrect"`
}

type ExamResultsResponse struct {
	Exam              *models.ExamPayload           `json:"exam"`
	Statistics        *ExamStatistics               `json:"statistics"`
	QuestionAnalytics []QuestionAnalytics           `json:"question_analytics"`
	Attempts          []*models.AdminAttemptPayload `json:"attempts"`
}

type ExamListResponse struct {
	Exams []*models.ExamPayload `json:"exams"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Size  int                   `json:"size"`
}

// ReportFile is a generated export ready to be streamed or archived
type ReportFile struct {
	Name        string
	ContentType string
	Data        []byte
	GeneratedAt time.Time
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	ExamPage(ctx context.Context, scope ExamScope, user *models.User) (*ExamPageResponse, error)
	Start(ctx context.Context, scope ExamScope, user *models.User) (*StartAttemptResponse, error)
	Autosave(ctx context.Context, scope ExamScope, user *models.User, req *AutosaveRequest) (*AutosaveResponse, error)
	Submit(ctx context.Context, scope ExamScope, user *models.User, req *SubmitRequest) (*SubmitResponse, error)
	Status(ctx context.Context, scope ExamScope, user *models.User, attemptID *uint) (*StatusResponse, error)
	Result(ctx context.Context, scope ExamScope, user *models.User, attemptID uint) (*models.AttemptSummary, error)
}

type GradingService interface {
	GetAttemptDetail(ctx context.Context, attemptID uint) (*models.AdminAttemptPayload, error)
	GradeAttempt(ctx context.Context, attemptID uint, req *GradeAttemptRequest, graderID string) (*models.AdminAttemptPayload, error)
}

type StatisticsService interface {
	GetExamStatistics(ctx context.Context, examID uint) (*ExamStatistics, error)
	GetQuestionAnalytics(ctx context.Context, examID uint) ([]QuestionAnalytics, error)
	GetExamResults(ctx context.Context, examID uint) (*ExamResultsResponse, error)
	InvalidateExam(ctx context.Context, examID uint)
}

type ExamService interface {
	Create(ctx context.Context, req *models.ExamRequest) (*models.ExamPayload, error)
	Update(ctx context.Context, id uint, req *models.ExamRequest) (*models.ExamPayload, error)
	Get(ctx context.Context, id uint) (*models.ExamPayload, error)
	List(ctx context.Context, filters repositories.ExamFilters) (*ExamListResponse, error)
	Delete(ctx context.Context, id uint) error

	AddQuestion(ctx context.Context, examID uint, req *models.QuestionRequest) (*models.QuestionPayload, error)
	UpdateQuestion(ctx context.Context, examID, questionID uint, req *models.QuestionRequest) (*models.QuestionPayload, error)
	DeleteQuestion(ctx context.Context, examID, questionID uint) error
	ReorderQuestions(ctx context.Context, examID uint, req *models.QuestionReorderRequest) error
}

type ExportService interface {
	ExportResults(ctx context.Context, examID uint) (*ReportFile, error)
	// ArchiveResults uploads the workbook and returns its object URL
	ArchiveResults(ctx context.Context, examID uint) (string, error)
}

type ServiceManager interface {
	Initialize(ctx context.Context) error
	Attempt() AttemptService
	Grading() GradingService
	Statistics() StatisticsService
	Exam() ExamService
	Export() ExportService
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
