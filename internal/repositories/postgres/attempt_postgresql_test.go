package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/exam-attempt-service/internal/cache"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/pkg"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := pkg.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedExam(t *testing.T, db *gorm.DB) *models.Exam {
	t.Helper()
	exam := &models.Exam{
		Title:           "Networking basics",
		DurationMinutes: 30,
		PassMark:        70,
		IsActive:        true,
		Questions: []models.ExamQuestion{
			{QuestionType: models.MultipleChoice, Text: "Q1", Points: 2, OrderIndex: 1, CorrectAnswers: datatypes.JSON(`["a"]`)},
			{QuestionType: models.ShortAnswer, Text: "Q2", Points: 3, OrderIndex: 0, CorrectAnswers: datatypes.JSON(`["tcp"]`)},
		},
	}
	if err := NewExamPostgreSQL(db, cache.NewCacheManager(nil)).Create(context.Background(), nil, exam); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return exam
}

func boolPtr(b bool) *bool { return &b }

func TestCreateRejectsSecondInProgressAttempt(t *testing.T) {
	db := newTestDB(t)
	exam := seedExam(t, db)
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	first := &models.ExamAttempt{UserID: "u1", ExamID: exam.ID, StartTime: time.Now().UTC(), Status: models.AttemptInProgress, AttemptNumber: 1}
	if err := repo.Create(ctx, nil, first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := &models.ExamAttempt{UserID: "u1", ExamID: exam.ID, StartTime: time.Now().UTC(), Status: models.AttemptInProgress, AttemptNumber: 2}
	err := repo.Create(ctx, nil, second)
	if !errors.Is(err, repositories.ErrDuplicateKey) {
		t.Fatalf("second create err = %v, want ErrDuplicateKey", err)
	}

	// another user is unaffected
	other := &models.ExamAttempt{UserID: "u2", ExamID: exam.ID, StartTime: time.Now().UTC(), Status: models.AttemptInProgress, AttemptNumber: 1}
	if err := repo.Create(ctx, nil, other); err != nil {
		t.Fatalf("other user create: %v", err)
	}
}

func TestFinalizeOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	exam := seedExam(t, db)
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	attempt := &models.ExamAttempt{UserID: "u1", ExamID: exam.ID, StartTime: time.Now().UTC(), Status: models.AttemptInProgress, AttemptNumber: 1}
	if err := repo.Create(ctx, nil, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}

	end := time.Now().UTC()
	dur := 12
	attempt.EndTime = &end
	attempt.DurationSeconds = &dur
	attempt.Status = models.AttemptGraded
	attempt.Score = 5
	attempt.MaxScore = 5
	attempt.Passed = boolPtr(true)

	if err := repo.Finalize(ctx, nil, attempt); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := repo.Finalize(ctx, nil, attempt); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("second finalize err = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateAutosave(ctx, nil, attempt.ID, datatypes.JSON(`{"1":"a"}`)); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("autosave on finished attempt err = %v, want ErrNotFound", err)
	}

	// a new attempt may start once the previous one is finished
	next := &models.ExamAttempt{UserID: "u1", ExamID: exam.ID, StartTime: time.Now().UTC(), Status: models.AttemptInProgress, AttemptNumber: 2}
	if err := repo.Create(ctx, nil, next); err != nil {
		t.Fatalf("create after finalize: %v", err)
	}

	graded, err := repo.HasGradedAttempt(ctx, nil, "u1", exam.ID)
	if err != nil || !graded {
		t.Fatalf("HasGradedAttempt = %v, %v", graded, err)
	}
	latest, err := repo.GetLatestFinishedAttempt(ctx, nil, "u1", exam.ID)
	if err != nil {
		t.Fatalf("latest finished: %v", err)
	}
	if latest.ID != attempt.ID {
		t.Errorf("latest finished = %d, want %d", latest.ID, attempt.ID)
	}
}

func TestGetExamAggregates(t *testing.T) {
	db := newTestDB(t)
	exam := seedExam(t, db)
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	empty, err := repo.GetExamAggregates(ctx, nil, exam.ID)
	if err != nil {
		t.Fatalf("empty aggregates: %v", err)
	}
	if empty.AttemptCount != 0 || empty.AverageScore != nil {
		t.Fatalf("empty aggregates = %+v", empty)
	}

	now := time.Now().UTC()
	rows := []struct {
		user   string
		status models.AttemptStatus
		score  float64
		dur    int
		passed *bool
	}{
		{"a", models.AttemptGraded, 4, 60, boolPtr(true)},
		{"b", models.AttemptGraded, 1, 120, boolPtr(false)},
		{"c", models.AttemptSubmitted, 2, 30, nil},
		{"d", models.AttemptInProgress, 0, 0, nil},
	}
	for _, r := range rows {
		dur := r.dur
		a := &models.ExamAttempt{
			UserID: r.user, ExamID: exam.ID, StartTime: now, Status: r.status,
			AttemptNumber: 1, Score: r.score, MaxScore: 5, Passed: r.passed,
		}
		if r.status != models.AttemptInProgress {
			a.DurationSeconds = &dur
		}
		if err := repo.Create(ctx, nil, a); err != nil {
			t.Fatalf("create %s: %v", r.user, err)
		}
	}

	agg, err := repo.GetExamAggregates(ctx, nil, exam.ID)
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if agg.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", agg.AttemptCount)
	}
	if agg.PassedTotal != 1 {
		t.Errorf("PassedTotal = %d, want 1", agg.PassedTotal)
	}
	if agg.HighestScore == nil || *agg.HighestScore != 4 {
		t.Errorf("HighestScore = %v, want 4", agg.HighestScore)
	}
	if agg.LowestScore == nil || *agg.LowestScore != 1 {
		t.Errorf("LowestScore = %v, want 1", agg.LowestScore)
	}
	if agg.AverageDuration == nil || *agg.AverageDuration != 70 {
		t.Errorf("AverageDuration = %v, want 70", agg.AverageDuration)
	}
}

func TestQuestionAnswerCounts(t *testing.T) {
	db := newTestDB(t)
	exam := seedExam(t, db)
	attempts := NewAttemptPostgreSQL(db)
	answers := NewAnswerPostgreSQL(db)
	ctx := context.Background()

	q1, q2 := exam.Questions[0].ID, exam.Questions[1].ID
	for i, user := range []string{"a", "b"} {
		a := &models.ExamAttempt{UserID: user, ExamID: exam.ID, StartTime: time.Now().UTC(), Status: models.AttemptGraded, AttemptNumber: 1}
		if err := attempts.Create(ctx, nil, a); err != nil {
			t.Fatalf("create attempt: %v", err)
		}
		batch := []*models.ExamAnswer{
			{AttemptID: a.ID, QuestionID: q1, IsCorrect: boolPtr(i == 0)},
			{AttemptID: a.ID, QuestionID: q2, IsCorrect: boolPtr(true)},
		}
		if err := answers.CreateBatch(ctx, nil, batch); err != nil {
			t.Fatalf("create answers: %v", err)
		}
	}

	counts, err := answers.GetQuestionAnswerCounts(ctx, nil, exam.ID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("len(counts) = %d, want 2", len(counts))
	}
	byID := map[uint]repositories.QuestionAnswerCount{}
	for _, c := range counts {
		byID[c.QuestionID] = c
	}
	if got := byID[q1]; got.Total != 2 || got.Correct != 1 {
		t.Errorf("q1 counts = %+v", got)
	}
	if got := byID[q2]; got.Total != 2 || got.Correct != 2 {
		t.Errorf("q2 counts = %+v", got)
	}
}

func TestExamQuestionsOrderedAndReordered(t *testing.T) {
	db := newTestDB(t)
	exam := seedExam(t, db)
	exams := NewExamPostgreSQL(db, cache.NewCacheManager(nil))
	questions := NewQuestionPostgreSQL(db, cache.NewCacheManager(nil))
	ctx := context.Background()

	loaded, err := exams.GetByIDWithQuestions(ctx, nil, exam.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Questions[0].Text != "Q2" {
		t.Fatalf("first question = %q, want Q2", loaded.Questions[0].Text)
	}

	next, err := questions.GetNextOrderIndex(ctx, nil, exam.ID)
	if err != nil || next != 2 {
		t.Fatalf("GetNextOrderIndex = %d, %v; want 2", next, err)
	}

	err = questions.UpdateOrder(ctx, nil, exam.ID, []repositories.QuestionOrder{
		{QuestionID: loaded.Questions[1].ID, Order: 0},
		{QuestionID: loaded.Questions[0].ID, Order: 1},
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	reordered, _ := questions.GetByExam(ctx, nil, exam.ID)
	if reordered[0].Text != "Q1" {
		t.Errorf("after reorder first = %q, want Q1", reordered[0].Text)
	}

	if _, err := exams.GetByID(ctx, nil, 9999); !repositories.IsNotFoundError(err) {
		t.Errorf("missing exam err = %v, want not found", err)
	}
}

func TestEnrollment(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&models.CourseEnrollment{UserID: "u1", CourseID: 7}).Error; err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	repo := NewEnrollmentPostgreSQL(db)

	ok, err := repo.IsEnrolled(context.Background(), "u1", 7)
	if err != nil || !ok {
		t.Errorf("IsEnrolled(u1, 7) = %v, %v", ok, err)
	}
	ok, _ = repo.IsEnrolled(context.Background(), "u1", 8)
	if ok {
		t.Error("IsEnrolled(u1, 8) should be false")
	}
}
