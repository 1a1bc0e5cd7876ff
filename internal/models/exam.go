package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type GradingMode string

const (
	GradingAutomatic GradingMode = "automatic"
	GradingManual    GradingMode = "manual"
)

// Recognized keys inside Exam.Settings. Anything else is stored and echoed back untouched.
const (
	SettingGradingMode        = "grading_mode"
	SettingUnlockOnSubmission = "unlock_on_submission"
)

type Exam struct {
	ID                       uint           `json:"id" gorm:"primaryKey"`
	CourseID                 *uint          `json:"course_id" gorm:"index"`
	Title                    string         `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description              *string        `json:"description" gorm:"type:text"`
	DurationMinutes          int            `json:"duration_minutes" gorm:"not null;default:30" validate:"exam_duration"`
	PassMark                 float64        `json:"pass_mark" gorm:"not null" validate:"pass_mark"`
	IsRequired               bool           `json:"is_required" gorm:"not null"`
	IsActive                 bool           `json:"is_active" gorm:"not null"`
	AllowRetakes             bool           `json:"allow_retakes" gorm:"not null"`
	TriggerLessonID          *uint          `json:"trigger_lesson_id"`
	RequiredToCompleteCourse bool           `json:"required_to_complete_course" gorm:"not null"`
	Settings                 datatypes.JSON `json:"settings" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []ExamQuestion `json:"questions,omitempty" gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE"`
}

func (Exam) TableName() string {
	return "exams"
}

// ExamSettings is the typed view of the settings blob.
type ExamSettings struct {
	GradingMode        GradingMode
	UnlockOnSubmission bool
	Extra              map[string]json.RawMessage
}

// ParseExamSettings never fails: malformed blobs and unknown grading modes fall back to defaults.
func ParseExamSettings(raw datatypes.JSON) ExamSettings {
	settings := ExamSettings{GradingMode: GradingAutomatic, Extra: map[string]json.RawMessage{}}
	if len(raw) == 0 {
		return settings
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return settings
	}

	for key, value := range fields {
		switch key {
		case SettingGradingMode:
			var mode string
			if json.Unmarshal(value, &mode) == nil {
				switch GradingMode(strings.ToLower(strings.TrimSpace(mode))) {
				case GradingManual:
					settings.GradingMode = GradingManual
				default:
					settings.GradingMode = GradingAutomatic
				}
			}
		case SettingUnlockOnSubmission:
			var v interface{}
			if json.Unmarshal(value, &v) == nil {
				settings.UnlockOnSubmission = Truthy(v)
			}
		default:
			settings.Extra[key] = value
		}
	}
	return settings
}

// ToJSON merges the recognized keys back over the pass-through keys.
func (s ExamSettings) ToJSON() datatypes.JSON {
	out := make(map[string]interface{}, len(s.Extra)+2)
	for k, v := range s.Extra {
		out[k] = v
	}
	mode := s.GradingMode
	if mode == "" {
		mode = GradingAutomatic
	}
	out[SettingGradingMode] = mode
	out[SettingUnlockOnSubmission] = s.UnlockOnSubmission
	b, _ := json.Marshal(out)
	return datatypes.JSON(b)
}

func (e *Exam) GradingSettings() ExamSettings {
	return ParseExamSettings(e.Settings)
}

// MaxScore is the live sum of question points.
func (e *Exam) MaxScore() float64 {
	total := 0.0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

func (e *Exam) Duration() time.Duration {
	if e.DurationMinutes <= 0 {
		return 0
	}
	return time.Duration(e.DurationMinutes) * time.Minute
}

// SortedQuestions orders by (order_index, id) without mutating the exam.
func (e *Exam) SortedQuestions() []ExamQuestion {
	out := make([]ExamQuestion, len(e.Questions))
	copy(out, e.Questions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Exam) QuestionLookup() map[uint]*ExamQuestion {
	lookup := make(map[uint]*ExamQuestion, len(e.Questions))
	for i := range e.Questions {
		lookup[e.Questions[i].ID] = &e.Questions[i]
	}
	return lookup
}

// IsStandalone reports whether the exam is attached to no course.
func (e *Exam) IsStandalone() bool {
	return e.CourseID == nil
}

// Truthy mirrors loose JSON truthiness: false, 0, "", null, [] and {} are false.
func Truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}
