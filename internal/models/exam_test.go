package models

import (
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
)

func TestParseExamSettings(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantMode   GradingMode
		wantUnlock bool
		wantExtra  int
	}{
		{"empty", "", GradingAutomatic, false, 0},
		{"malformed", "{not json", GradingAutomatic, false, 0},
		{"manual upper case", `{"grading_mode":"MANUAL"}`, GradingManual, false, 0},
		{"unknown mode falls back", `{"grading_mode":"peer"}`, GradingAutomatic, false, 0},
		{"unlock truthy number", `{"unlock_on_submission":1}`, GradingAutomatic, true, 0},
		{"unknown keys kept", `{"theme":"dark","shuffle":true,"grading_mode":"automatic"}`, GradingAutomatic, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseExamSettings(datatypes.JSON(tt.raw))
			if got.GradingMode != tt.wantMode {
				t.Errorf("GradingMode = %q, want %q", got.GradingMode, tt.wantMode)
			}
			if got.UnlockOnSubmission != tt.wantUnlock {
				t.Errorf("UnlockOnSubmission = %v, want %v", got.UnlockOnSubmission, tt.wantUnlock)
			}
			if len(got.Extra) != tt.wantExtra {
				t.Errorf("len(Extra) = %d, want %d", len(got.Extra), tt.wantExtra)
			}
		})
	}
}

func TestExamSettingsToJSONKeepsUnknownKeys(t *testing.T) {
	settings := ParseExamSettings(datatypes.JSON(`{"theme":"dark","grading_mode":"manual"}`))
	var decoded map[string]interface{}
	if err := json.Unmarshal(settings.ToJSON(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["theme"] != "dark" {
		t.Errorf("theme = %v, want dark", decoded["theme"])
	}
	if decoded["grading_mode"] != "manual" {
		t.Errorf("grading_mode = %v, want manual", decoded["grading_mode"])
	}
}

func TestNewExamPayloadOrdersQuestions(t *testing.T) {
	exam := &Exam{
		ID:       7,
		Title:    "Final",
		PassMark: 70,
		Questions: []ExamQuestion{
			{ID: 3, OrderIndex: 1, Points: 2},
			{ID: 2, OrderIndex: 0, Points: 1},
			{ID: 1, OrderIndex: 1, Points: 1.5},
		},
	}

	payload := NewExamPayload(exam)

	wantOrder := []uint{2, 1, 3}
	for i, q := range payload.Questions {
		if q.ID != wantOrder[i] {
			t.Fatalf("question %d id = %d, want %d", i, q.ID, wantOrder[i])
		}
	}
	if payload.MaxScore != 4.5 {
		t.Errorf("MaxScore = %v, want 4.5", payload.MaxScore)
	}
	if string(payload.Settings) != "{}" {
		t.Errorf("Settings = %s, want {}", payload.Settings)
	}
	if string(payload.Questions[0].Options) != "[]" {
		t.Errorf("Options = %s, want []", payload.Questions[0].Options)
	}
}

func TestNewAttemptSummary(t *testing.T) {
	correct := true
	exam := &Exam{Questions: []ExamQuestion{{ID: 1, Text: "Q1", QuestionType: MultipleChoice, Points: 2}}}
	attempt := &ExamAttempt{
		ID:       10,
		Score:    1,
		MaxScore: 3,
		Answers: []ExamAnswer{
			{ID: 1, QuestionID: 1, IsCorrect: &correct, PointsAwarded: 1},
			{ID: 2, QuestionID: 99},
		},
	}

	summary := NewAttemptSummary(attempt, exam)

	if summary.Percentage == nil || *summary.Percentage != 33.33 {
		t.Errorf("Percentage = %v, want 33.33", summary.Percentage)
	}
	if !summary.RequiresManualGrading {
		t.Error("expected requires_manual_grading with an indeterminate answer")
	}
	if summary.Answers[0].QuestionText == nil || *summary.Answers[0].QuestionText != "Q1" {
		t.Errorf("answer 0 not enriched: %+v", summary.Answers[0])
	}
	if summary.Answers[1].QuestionText != nil {
		t.Error("answer for unknown question should have nil question_text")
	}
}

func TestAttemptPercentageNilWithoutMaxScore(t *testing.T) {
	attempt := &ExamAttempt{Score: 0, MaxScore: 0}
	if attempt.Percentage() != nil {
		t.Error("expected nil percentage when max_score is 0")
	}
}
