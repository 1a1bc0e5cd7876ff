package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/memory"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

const testCourseID uint = 7

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	ctx       context.Context
	repo      *memory.Repository
	clock     *fakeClock
	publisher *events.MockEventPublisher
	stats     StatisticsService
	attempts  AttemptService
	grading   GradingService
	exams     ExamService
	export    ExportService

	student *models.User
	admin   *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	clock := newFakeClock()
	publisher := events.NewMockEventPublisher(logger)
	v := validator.New()

	stats := NewStatisticsService(repo, nil, logger, nil)
	env := &testEnv{
		ctx:       context.Background(),
		repo:      repo,
		clock:     clock,
		publisher: publisher,
		stats:     stats,
		attempts: NewAttemptService(repo, nil, logger, publisher,
			WithClock(clock.Now),
			WithStatistics(stats)),
		grading: NewGradingService(nil, repo, logger, v, publisher, stats),
		exams:   NewExamService(repo, nil, logger, v),
		export:  NewExportService(stats, nil, logger),
		student: &models.User{ID: "student-1", FullName: "Ada Student", Email: "ada@example.com", Role: models.RoleStudent},
		admin:   &models.User{ID: "admin-1", Username: "root", Role: models.RoleAdmin},
	}
	repo.AddUser(env.student)
	repo.AddUser(env.admin)
	repo.Enroll(env.student.ID, testCourseID)
	return env
}

// seedExam stores a three-question course exam worth 4 points
func (e *testEnv) seedExam(t *testing.T, mutate ...func(*models.Exam)) *models.Exam {
	t.Helper()
	courseID := testCourseID
	exam := &models.Exam{
		CourseID:        &courseID,
		Title:           "Geography quiz",
		DurationMinutes: 10,
		PassMark:        70,
		IsActive:        true,
		AllowRetakes:    true,
		Settings:        datatypes.JSON(`{"grading_mode":"automatic"}`),
		Questions: []models.ExamQuestion{
			{QuestionType: models.MultipleChoice, Text: "Capital of Italy?", Options: datatypes.JSON(`["a","b","c"]`), CorrectAnswers: datatypes.JSON(`["b"]`), Points: 1, IsRequired: true, OrderIndex: 0},
			{QuestionType: models.Checkbox, Text: "Pick the islands", Options: datatypes.JSON(`["a","b","c"]`), CorrectAnswers: datatypes.JSON(`["a","c"]`), Points: 2, IsRequired: true, OrderIndex: 1},
			{QuestionType: models.ShortAnswer, Text: "Capital of France?", CorrectAnswers: datatypes.JSON(`["Paris"]`), Points: 1, IsRequired: true, OrderIndex: 2},
		},
	}
	for _, m := range mutate {
		m(exam)
	}
	if err := e.repo.Exam().Create(e.ctx, nil, exam); err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return exam
}

func (e *testEnv) scope(exam *models.Exam) ExamScope {
	return ExamScope{CourseID: exam.CourseID, ExamID: exam.ID}
}

func (e *testEnv) start(t *testing.T, exam *models.Exam, user *models.User) *StartAttemptResponse {
	t.Helper()
	resp, err := e.attempts.Start(e.ctx, e.scope(exam), user)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return resp
}

func (e *testEnv) submit(t *testing.T, exam *models.Exam, user *models.User, attemptID uint, responses string) *SubmitResponse {
	t.Helper()
	resp, err := e.attempts.Submit(e.ctx, e.scope(exam), user, &SubmitRequest{
		AttemptID: &attemptID,
		Responses: json.RawMessage(responses),
	})
	if err != nil {
		t.Fatalf("submit attempt: %v", err)
	}
	return resp
}

// responsesFor builds a map-shaped payload keyed by the seeded question ids
func responsesFor(t *testing.T, exam *models.Exam, values ...interface{}) string {
	t.Helper()
	payload := map[string]interface{}{}
	for i, v := range values {
		if i >= len(exam.Questions) {
			break
		}
		payload[jsonKey(exam.Questions[i].ID)] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal responses: %v", err)
	}
	return string(b)
}

func jsonKey(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func boolPtr(b bool) *bool { return &b }

func uintPtr(v uint) *uint { return &v }
