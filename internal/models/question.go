package models

import (
	"bytes"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	MCQ            QuestionType = "mcq"
	Radio          QuestionType = "radio"
	Checkbox       QuestionType = "checkbox"
	MultiSelect    QuestionType = "multi_select"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	LongAnswer     QuestionType = "long_answer"
)

// KnownQuestionTypes lists every type the grading engine has a strategy for.
var KnownQuestionTypes = []QuestionType{
	MultipleChoice, MCQ, Radio, Checkbox, MultiSelect, ShortAnswer, Essay, LongAnswer,
}

func (t QuestionType) IsKnown() bool {
	for _, known := range KnownQuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

type ExamQuestion struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	ExamID         uint           `json:"exam_id" gorm:"not null;index"`
	QuestionType   QuestionType   `json:"question_type" gorm:"not null;size:50;default:multiple_choice"`
	Text           string         `json:"text" gorm:"type:text;not null"`
	Options        datatypes.JSON `json:"options" gorm:"type:jsonb"`
	CorrectAnswers datatypes.JSON `json:"correct_answers" gorm:"type:jsonb"`
	Points         float64        `json:"points" gorm:"not null"`
	IsRequired     bool           `json:"is_required" gorm:"not null"`
	OrderIndex     int            `json:"order_index" gorm:"not null;default:0;index"`
	Config         datatypes.JSON `json:"config" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

// CorrectAnswerList decodes the correct-answer definition. A single stored value is
// treated as a one-element list; null, an empty string and invalid JSON yield nil.
func (q *ExamQuestion) CorrectAnswerList() []interface{} {
	if len(q.CorrectAnswers) == 0 {
		return nil
	}
	var key interface{}
	if err := json.Unmarshal(q.CorrectAnswers, &key); err != nil {
		return nil
	}
	switch k := key.(type) {
	case nil:
		return nil
	case []interface{}:
		return k
	case string:
		if k == "" {
			return nil
		}
	}
	return []interface{}{key}
}

// AnswerKeyJSON normalizes an authored answer key to a JSON array
func AnswerKeyJSON(raw json.RawMessage) datatypes.JSON {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return datatypes.JSON("[]")
	}
	if trimmed[0] == '[' || !json.Valid(trimmed) {
		return datatypes.JSON(trimmed)
	}
	return datatypes.JSON("[" + string(trimmed) + "]")
}
