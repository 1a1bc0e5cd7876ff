package services

import (
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// submitManual finishes an attempt on a manually graded exam and returns its admin detail
func submitManual(t *testing.T, env *testEnv) (*models.Exam, *models.AdminAttemptPayload) {
	t.Helper()
	exam := env.seedExam(t, func(e *models.Exam) {
		e.Settings = datatypes.JSON(`{"grading_mode":"manual"}`)
	})
	started := env.start(t, exam, env.student)
	env.submit(t, exam, env.student, started.AttemptID, responsesFor(t, exam, "b", []string{"a"}, "Paris"))

	detail, err := env.grading.GetAttemptDetail(env.ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("get attempt detail: %v", err)
	}
	if len(detail.Answers) != 3 {
		t.Fatalf("answers = %d, want 3", len(detail.Answers))
	}
	return exam, detail
}

func TestGetAttemptDetail(t *testing.T) {
	env := newTestEnv(t)
	_, detail := submitManual(t, env)

	if detail.User.Name != "Ada Student" {
		t.Errorf("user.name = %q, want Ada Student", detail.User.Name)
	}
	if detail.User.Email == nil || *detail.User.Email != "ada@example.com" {
		t.Errorf("user.email = %v", detail.User.Email)
	}
	if detail.AttemptNumber != 1 {
		t.Errorf("attempt_number = %d, want 1", detail.AttemptNumber)
	}
	if detail.CourseID == nil || *detail.CourseID != testCourseID {
		t.Errorf("course_id = %v, want %d", detail.CourseID, testCourseID)
	}
	if !detail.RequiresManualGrading {
		t.Errorf("requires_manual_grading = false, want true")
	}
	for i, a := range detail.Answers {
		if a.QuestionOrder == nil || *a.QuestionOrder != i {
			t.Errorf("answer %d question_order = %v, want %d", i, a.QuestionOrder, i)
		}
	}

	_, err := env.grading.GetAttemptDetail(env.ctx, 4242)
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestGradeAttempt(t *testing.T) {
	env := newTestEnv(t)
	_, detail := submitManual(t, env)
	feedback := "Solid work"

	graded, err := env.grading.GradeAttempt(env.ctx, detail.AttemptID, &GradeAttemptRequest{
		Answers: []GradeAnswerOverride{
			{ID: detail.Answers[0].ID, PointsAwarded: json.RawMessage(`"1"`), IsCorrect: json.RawMessage(`true`), Feedback: json.RawMessage(`"Right"`)},
			{ID: detail.Answers[1].ID, PointsAwarded: json.RawMessage(`2`), IsCorrect: json.RawMessage(`1`), Feedback: json.RawMessage(`{"hint":"islands"}`)},
			{ID: detail.Answers[2].ID, PointsAwarded: json.RawMessage(`"lots"`), IsCorrect: json.RawMessage(`false`), Feedback: json.RawMessage(`null`)},
			{ID: 999999, PointsAwarded: json.RawMessage(`100`)},
		},
		OverallFeedback: &feedback,
	}, env.admin.ID)
	if err != nil {
		t.Fatalf("grade attempt: %v", err)
	}

	if graded.Score != 3 {
		t.Errorf("score = %v, want 3", graded.Score)
	}
	if graded.Status != models.AttemptGraded {
		t.Errorf("status = %s, want graded", graded.Status)
	}
	if graded.Passed == nil || !*graded.Passed {
		t.Errorf("passed = %v, want true", graded.Passed)
	}
	if graded.OverallFeedback == nil || *graded.OverallFeedback != feedback {
		t.Errorf("overall_feedback = %v", graded.OverallFeedback)
	}
	if graded.RequiresManualGrading {
		t.Errorf("requires_manual_grading = true after grading every answer")
	}

	answers := graded.Answers
	if answers[0].Feedback == nil || *answers[0].Feedback != "Right" {
		t.Errorf("answer 0 feedback = %v", answers[0].Feedback)
	}
	if answers[1].Feedback == nil || *answers[1].Feedback != `{"hint":"islands"}` {
		t.Errorf("answer 1 feedback = %v", answers[1].Feedback)
	}
	if answers[2].Feedback != nil {
		t.Errorf("answer 2 feedback = %v, want nil", *answers[2].Feedback)
	}
	if answers[2].PointsAwarded != 0 {
		t.Errorf("invalid points override changed points to %v", answers[2].PointsAwarded)
	}
	if answers[1].IsCorrect == nil || !*answers[1].IsCorrect {
		t.Errorf("answer 1 is_correct = %v, want true", answers[1].IsCorrect)
	}

	gradedEvents := env.publisher.EventsOfType(events.AttemptGraded)
	if len(gradedEvents) != 1 {
		t.Fatalf("graded events = %d, want 1", len(gradedEvents))
	}
	if data, ok := gradedEvents[0].Data.(events.AttemptEvent); !ok || data.GradedBy != env.admin.ID {
		t.Errorf("graded event data = %+v", gradedEvents[0].Data)
	}
}

func TestGradeAttemptStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		wantStatus models.AttemptStatus
		wantErr    bool
	}{
		{name: "defaults to graded", status: "", wantStatus: models.AttemptGraded},
		{name: "forced submitted", status: "submitted", wantStatus: models.AttemptSubmitted},
		{name: "forced in-progress", status: "in-progress", wantStatus: models.AttemptInProgress},
		{name: "unknown status", status: "finished", wantErr: true},
		{name: "legacy passed is not writable", status: "passed", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, detail := submitManual(t, env)

			graded, err := env.grading.GradeAttempt(env.ctx, detail.AttemptID, &GradeAttemptRequest{Status: tt.status}, env.admin.ID)
			if tt.wantErr {
				var verrs ValidationErrors
				if !errors.As(err, &verrs) {
					t.Fatalf("err = %v, want ValidationErrors", err)
				}
				if verrs[0].Field != "status" {
					t.Errorf("field = %s, want status", verrs[0].Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("grade attempt: %v", err)
			}
			if graded.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", graded.Status, tt.wantStatus)
			}
			// answers are still undecided, so the aggregate leaves passed unset
			if graded.Passed != nil {
				t.Errorf("passed = %v, want nil", *graded.Passed)
			}
		})
	}
}

func TestGradeAttemptClearsOverallFeedback(t *testing.T) {
	env := newTestEnv(t)
	_, detail := submitManual(t, env)
	note := "first pass"

	if _, err := env.grading.GradeAttempt(env.ctx, detail.AttemptID, &GradeAttemptRequest{OverallFeedback: &note}, env.admin.ID); err != nil {
		t.Fatalf("grade attempt: %v", err)
	}
	graded, err := env.grading.GradeAttempt(env.ctx, detail.AttemptID, &GradeAttemptRequest{}, env.admin.ID)
	if err != nil {
		t.Fatalf("grade attempt: %v", err)
	}
	if graded.OverallFeedback != nil {
		t.Errorf("overall_feedback = %q, want nil", *graded.OverallFeedback)
	}
}

func TestParsePoints(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{raw: `2.5`, want: 2.5, wantOK: true},
		{raw: `" 3 "`, want: 3, wantOK: true},
		{raw: `"abc"`},
		{raw: `null`},
		{raw: `true`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parsePoints(json.RawMessage(tt.raw))
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parsePoints(%s) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
