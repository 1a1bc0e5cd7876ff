package models

import (
	"encoding/json"
	"time"
)

// ===== ADMIN AUTHORING REQUESTS =====

type ExamRequest struct {
	CourseID                 *uint           `json:"course_id"`
	Title                    string          `json:"title" validate:"required,min=1,max=200"`
	Description              *string         `json:"description" validate:"omitempty,max=5000"`
	DurationMinutes          int             `json:"duration_minutes" validate:"exam_duration"`
	PassMark                 *float64        `json:"pass_mark" validate:"omitempty,pass_mark"`
	IsRequired               bool            `json:"is_required"`
	IsActive                 *bool           `json:"is_active"`
	AllowRetakes             *bool           `json:"allow_retakes"`
	TriggerLessonID          *uint           `json:"trigger_lesson_id"`
	RequiredToCompleteCourse bool            `json:"required_to_complete_course"`
	Settings                 json.RawMessage `json:"settings"`

	// nil keeps the current question set; a non-nil (even empty) list replaces it.
	Questions []QuestionRequest `json:"questions" validate:"omitempty,dive"`
}

type QuestionRequest struct {
	ID             *uint           `json:"id"`
	QuestionType   QuestionType    `json:"type" validate:"omitempty,question_type"`
	Text           string          `json:"text" validate:"max=10000"`
	Options        json.RawMessage `json:"options"`
	CorrectAnswers json.RawMessage `json:"correct_answers"`
	Points         *float64        `json:"points" validate:"omitempty,min=0"`
	IsRequired     *bool           `json:"required"`
	Config         json.RawMessage `json:"config"`
	OrderIndex     *int            `json:"order_index" validate:"omitempty,min=0"`
}

type QuestionReorderRequest struct {
	Order []uint `json:"order" validate:"required,min=1"`
}

// ===== WIRE PAYLOADS =====

type QuestionPayload struct {
	ID             uint            `json:"id"`
	Type           QuestionType    `json:"type"`
	Text           string          `json:"text"`
	Options        json.RawMessage `json:"options"`
	CorrectAnswers json.RawMessage `json:"correct_answers"`
	Points         float64         `json:"points"`
	Required       bool            `json:"required"`
	Config         json.RawMessage `json:"config"`
	OrderIndex     int             `json:"order_index"`
}

type ExamPayload struct {
	ID                       uint              `json:"id"`
	CourseID                 *uint             `json:"course_id"`
	Title                    string            `json:"title"`
	Description              *string           `json:"description"`
	DurationMinutes          int               `json:"duration_minutes"`
	PassMark                 float64           `json:"pass_mark"`
	IsRequired               bool              `json:"is_required"`
	IsActive                 bool              `json:"is_active"`
	AllowRetakes             bool              `json:"allow_retakes"`
	TriggerLessonID          *uint             `json:"trigger_lesson_id"`
	RequiredToCompleteCourse bool              `json:"required_to_complete_course"`
	Settings                 json.RawMessage   `json:"settings"`
	MaxScore                 float64           `json:"max_score"`
	Questions                []QuestionPayload `json:"questions"`
}

func NewQuestionPayload(q *ExamQuestion) QuestionPayload {
	return QuestionPayload{
		ID:             q.ID,
		Type:           q.QuestionType,
		Text:           q.Text,
		Options:        RawOr(q.Options, "[]"),
		CorrectAnswers: RawOr(q.CorrectAnswers, "[]"),
		Points:         q.Points,
		Required:       q.IsRequired,
		Config:         RawOr(q.Config, "{}"),
		OrderIndex:     q.OrderIndex,
	}
}

func NewExamPayload(exam *Exam) *ExamPayload {
	questions := exam.SortedQuestions()
	payload := &ExamPayload{
		ID:                       exam.ID,
		CourseID:                 exam.CourseID,
		Title:                    exam.Title,
		Description:              exam.Description,
		DurationMinutes:          exam.DurationMinutes,
		PassMark:                 exam.PassMark,
		IsRequired:               exam.IsRequired,
		IsActive:                 exam.IsActive,
		AllowRetakes:             exam.AllowRetakes,
		TriggerLessonID:          exam.TriggerLessonID,
		RequiredToCompleteCourse: exam.RequiredToCompleteCourse,
		Settings:                 RawOr(exam.Settings, "{}"),
		MaxScore:                 exam.MaxScore(),
		Questions:                make([]QuestionPayload, 0, len(questions)),
	}
	for i := range questions {
		payload.Questions = append(payload.Questions, NewQuestionPayload(&questions[i]))
	}
	return payload
}

type AnswerSummary struct {
	ID             uint            `json:"id"`
	QuestionID     uint            `json:"question_id"`
	QuestionText   *string         `json:"question_text"`
	QuestionType   *QuestionType   `json:"question_type"`
	ResponseData   json.RawMessage `json:"response_data"`
	IsCorrect      *bool           `json:"is_correct"`
	PointsAwarded  float64         `json:"points_awarded"`
	PointsPossible *float64        `json:"points_possible"`
	Feedback       *string         `json:"feedback"`
	CorrectAnswers json.RawMessage `json:"correct_answers"`
	Options        json.RawMessage `json:"options"`

	// Only set on admin payloads
	QuestionOrder *int `json:"question_order,omitempty"`
}

type AttemptSummary struct {
	AttemptID             uint            `json:"attempt_id"`
	ExamID                uint            `json:"exam_id"`
	UserID                string          `json:"user_id"`
	Status                AttemptStatus   `json:"status"`
	Score                 float64         `json:"score"`
	MaxScore              float64         `json:"max_score"`
	Percentage            *float64        `json:"percentage"`
	StartTime             *string         `json:"start_time"`
	EndTime               *string         `json:"end_time"`
	DurationSeconds       *int            `json:"duration_seconds"`
	OverallFeedback       *string         `json:"overall_feedback"`
	Passed                *bool           `json:"passed"`
	RequiresManualGrading bool            `json:"requires_manual_grading"`
	Answers               []AnswerSummary `json:"answers"`

	TimeRemainingSeconds *int `json:"time_remaining_seconds,omitempty"`
}

// NewAttemptSummary enriches answers with question fields looked up from exam; exam may be nil.
func NewAttemptSummary(attempt *ExamAttempt, exam *Exam) *AttemptSummary {
	summary := &AttemptSummary{
		AttemptID:             attempt.ID,
		ExamID:                attempt.ExamID,
		UserID:                attempt.UserID,
		Status:                attempt.Status,
		Score:                 attempt.Score,
		MaxScore:              attempt.MaxScore,
		Percentage:            attempt.Percentage(),
		StartTime:             isoTime(&attempt.StartTime),
		EndTime:               isoTime(attempt.EndTime),
		DurationSeconds:       attempt.DurationSeconds,
		OverallFeedback:       attempt.OverallFeedback,
		Passed:                attempt.Passed,
		RequiresManualGrading: attempt.RequiresManualGrading(),
		Answers:               make([]AnswerSummary, 0, len(attempt.Answers)),
	}

	var lookup map[uint]*ExamQuestion
	if exam != nil {
		lookup = exam.QuestionLookup()
	}
	for _, answer := range attempt.Answers {
		item := AnswerSummary{
			ID:            answer.ID,
			QuestionID:    answer.QuestionID,
			ResponseData:  RawOr(answer.ResponseData, "null"),
			IsCorrect:     answer.IsCorrect,
			PointsAwarded: answer.PointsAwarded,
			Feedback:      answer.Feedback,
		}
		if q, ok := lookup[answer.QuestionID]; ok {
			text, qType, points := q.Text, q.QuestionType, q.Points
			item.QuestionText = &text
			item.QuestionType = &qType
			item.PointsPossible = &points
			item.CorrectAnswers = RawOr(q.CorrectAnswers, "[]")
			item.Options = RawOr(q.Options, "[]")
		} else {
			item.CorrectAnswers = json.RawMessage("null")
			item.Options = json.RawMessage("null")
		}
		summary.Answers = append(summary.Answers, item)
	}
	return summary
}

type AttemptUserInfo struct {
	ID    *string `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

type AdminAttemptPayload struct {
	*AttemptSummary
	User            AttemptUserInfo `json:"user"`
	AttemptNumber   int             `json:"attempt_number"`
	AutosavePayload json.RawMessage `json:"autosave_payload"`
	CourseID        *uint           `json:"course_id"`
}

func NewAttemptUserInfo(user *User) AttemptUserInfo {
	if user == nil {
		return AttemptUserInfo{Name: "Unknown"}
	}
	id, email := user.ID, user.Email
	info := AttemptUserInfo{ID: &id, Name: user.DisplayName()}
	if email != "" {
		info.Email = &email
	}
	return info
}

func isoTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// RawOr substitutes fallback for empty or null JSON.
func RawOr(raw []byte, fallback string) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(raw)
}
