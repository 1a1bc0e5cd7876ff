package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/events"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories/memory"
	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

const courseID = 7

// tokenTable accepts "token-<user id>" for the users it knows
type tokenTable map[string]string

func (t tokenTable) ParseJwtToken(token string) (*casdoorsdk.Claims, error) {
	id, ok := t[token]
	if !ok {
		return nil, errors.New("signature is invalid")
	}
	return &casdoorsdk.Claims{User: casdoorsdk.User{Id: id}}, nil
}

type apiEnv struct {
	t      *testing.T
	router *gin.Engine
	repo   *memory.Repository
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger := utils.NewSlogLogger(slogger)
	repo := memory.New()

	tokens := tokenTable{}
	for _, u := range []*models.User{
		{ID: "student-1", FullName: "Ada Student", Role: models.RoleStudent},
		{ID: "teacher-1", FullName: "Tom Teacher", Role: models.RoleTeacher},
		{ID: "admin-1", FullName: "Ann Admin", Role: models.RoleAdmin},
	} {
		repo.AddUser(u)
		tokens["token-"+u.ID] = u.ID
	}
	repo.Enroll("student-1", courseID)

	sm := services.NewServiceManager(nil, repo, slogger, validator.New(), services.ServiceManagerConfig{
		SubmitGracePeriod: services.DefaultSubmitGrace,
		Publisher:         events.NewMockEventPublisher(slogger),
	})
	if err := sm.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize services: %v", err)
	}

	router := gin.New()
	SetupMiddleware(router, logger)
	NewHandlerManager(sm, logger, NewAuthMiddleware(tokens, repo.User(), logger), 30).SetupRoutes(router)

	return &apiEnv{t: t, router: router, repo: repo}
}

func (e *apiEnv) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer token-"+userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

// createExam posts a one-question course exam through the admin API
func (e *apiEnv) createExam(allowRetakes bool) (examID, questionID uint) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/v1/admin/exams", "admin-1", map[string]interface{}{
		"exam": map[string]interface{}{
			"course_id":        courseID,
			"title":            "Capitals",
			"duration_minutes": 10,
			"allow_retakes":    allowRetakes,
		},
		"questions": []map[string]interface{}{
			{"type": "multiple_choice", "text": "Capital of France?", "options": []string{"Paris", "Rome"}, "correct_answers": []string{"Paris"}},
		},
	})
	if w.Code != http.StatusCreated {
		e.t.Fatalf("create exam: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		ExamID uint                `json:"exam_id"`
		Exam   *models.ExamPayload `json:"exam"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		e.t.Fatalf("decode exam: %v", err)
	}
	return resp.ExamID, resp.Exam.Questions[0].ID
}

func TestAuthentication(t *testing.T) {
	env := newAPIEnv(t)
	examID, _ := env.createExam(true)
	path := fmt.Sprintf("/api/v1/courses/%d/exams/%d", courseID, examID)

	if w := env.do(http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodGet, path, "stranger", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unknown token = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodGet, path, "student-1", nil); w.Code != http.StatusOK {
		t.Errorf("student = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestAdminRoles(t *testing.T) {
	env := newAPIEnv(t)
	examID, _ := env.createExam(true)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		want   int
	}{
		{"student cannot list exams", http.MethodGet, "/api/v1/admin/exams", "student-1", http.StatusForbidden},
		{"teacher cannot author", http.MethodDelete, fmt.Sprintf("/api/v1/admin/exams/%d", examID), "teacher-1", http.StatusForbidden},
		{"teacher reads results", http.MethodGet, fmt.Sprintf("/api/v1/admin/exams/%d/results", examID), "teacher-1", http.StatusOK},
		{"teacher reads statistics", http.MethodGet, fmt.Sprintf("/api/v1/admin/exams/%d/statistics", examID), "teacher-1", http.StatusOK},
		{"teacher cannot grade", http.MethodGet, "/api/v1/admin/attempts/1", "teacher-1", http.StatusForbidden},
		{"admin lists exams", http.MethodGet, "/api/v1/admin/exams?page=1&size=5", "admin-1", http.StatusOK},
		{"bad id", http.MethodGet, "/api/v1/admin/exams/abc", "admin-1", http.StatusBadRequest},
		{"missing exam", http.MethodGet, "/api/v1/admin/exams/9999", "admin-1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.user, nil)
			if w.Code != tt.want {
				t.Errorf("%s %s = %d, want %d: %s", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestExamAttemptFlow(t *testing.T) {
	env := newAPIEnv(t)
	examID, questionID := env.createExam(false)
	base := fmt.Sprintf("/api/v1/courses/%d/exams/%d", courseID, examID)

	w := env.do(http.MethodGet, base+"/status", "student-1", nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"attempt":null}` {
		t.Fatalf("status before start = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, base+"/start", "student-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d %s", w.Code, w.Body.String())
	}
	started := decode(t, w)
	attemptID := uint(started["attempt_id"].(float64))
	if started["status"] != string(models.AttemptInProgress) || started["time_remaining_seconds"].(float64) <= 0 {
		t.Errorf("start payload = %v", started)
	}

	w = env.do(http.MethodPost, base+"/autosave", "student-1", map[string]interface{}{"responses": map[string]string{}})
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "Attempt ID is required." {
		t.Errorf("autosave without id = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, base+"/autosave", "student-1", map[string]interface{}{
		"attempt_id": attemptID,
		"responses":  map[string]string{fmt.Sprint(questionID): "Rome"},
	})
	if w.Code != http.StatusOK || decode(t, w)["success"] != true {
		t.Errorf("autosave = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, base+"/submit", "student-1", map[string]interface{}{
		"attempt_id": attemptID,
		"responses":  []map[string]interface{}{{"question_id": questionID, "response": "Paris"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("submit = %d %s", w.Code, w.Body.String())
	}
	attempt := decode(t, w)["attempt"].(map[string]interface{})
	if attempt["status"] != string(models.AttemptGraded) || attempt["passed"] != true || attempt["score"].(float64) != 1 {
		t.Errorf("submitted attempt = %v", attempt)
	}

	w = env.do(http.MethodPost, base+"/submit", "student-1", map[string]interface{}{"attempt_id": attemptID})
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "This attempt has already been submitted." {
		t.Errorf("second submit = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, base+"/start", "student-1", nil)
	if w.Code != http.StatusForbidden || decode(t, w)["error"] != "You have already passed this exam and retakes are not allowed." {
		t.Errorf("restart = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, fmt.Sprintf("%s/results/%d", base, attemptID), "student-1", nil)
	if w.Code != http.StatusOK || decode(t, w)["attempt_id"].(float64) != float64(attemptID) {
		t.Errorf("result = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, fmt.Sprintf("/api/v1/admin/attempts/%d", attemptID), "admin-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin detail = %d %s", w.Code, w.Body.String())
	}
	if _, ok := decode(t, w)["attempt"].(map[string]interface{}); !ok {
		t.Errorf("admin detail body = %s", w.Body.String())
	}

	w = env.do(http.MethodPost, fmt.Sprintf("/api/v1/admin/attempts/%d/grade", attemptID), "admin-1", map[string]interface{}{
		"overall_feedback": "Well done",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("grade = %d %s", w.Code, w.Body.String())
	}
	graded := decode(t, w)["attempt"].(map[string]interface{})
	if graded["overall_feedback"] != "Well done" {
		t.Errorf("graded attempt = %v", graded)
	}

	w = env.do(http.MethodPost, fmt.Sprintf("/api/v1/admin/attempts/%d/grade", attemptID), "admin-1", map[string]interface{}{"status": "passed"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("grade with legacy status = %d, want 400", w.Code)
	}
}

func TestExamAccessRoutes(t *testing.T) {
	env := newAPIEnv(t)
	examID, _ := env.createExam(true)

	// course exams are not reachable through the standalone route
	if w := env.do(http.MethodGet, fmt.Sprintf("/api/v1/exams/%d", examID), "student-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("standalone route for course exam = %d, want 404", w.Code)
	}
	if w := env.do(http.MethodGet, fmt.Sprintf("/api/v1/courses/%d/exams/%d", courseID+1, examID), "student-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("wrong course = %d, want 404", w.Code)
	}
	if w := env.do(http.MethodPost, fmt.Sprintf("/api/v1/courses/%d/exams/%d/start", courseID, examID), "teacher-1", nil); w.Code != http.StatusForbidden {
		t.Errorf("not enrolled = %d, want 403", w.Code)
	}

	// standalone exams need an elevated role
	w := env.do(http.MethodPost, "/api/v1/admin/exams", "admin-1", map[string]interface{}{
		"exam": map[string]interface{}{"title": "Open quiz", "duration_minutes": 5},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create standalone exam = %d %s", w.Code, w.Body.String())
	}
	standaloneID := uint(decode(t, w)["exam_id"].(float64))
	path := fmt.Sprintf("/api/v1/exams/%d/start", standaloneID)

	if w := env.do(http.MethodPost, path, "student-1", nil); w.Code != http.StatusForbidden {
		t.Errorf("student on standalone exam = %d, want 403", w.Code)
	}
	if w := env.do(http.MethodPost, path, "teacher-1", nil); w.Code != http.StatusOK {
		t.Errorf("teacher on standalone exam = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestQuestionRoutes(t *testing.T) {
	env := newAPIEnv(t)
	examID, firstID := env.createExam(true)
	base := fmt.Sprintf("/api/v1/admin/exams/%d/questions", examID)

	w := env.do(http.MethodPost, base, "admin-1", map[string]interface{}{"type": "short_answer", "text": "Capital of Italy?", "correct_answers": []string{"Rome"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("add question = %d %s", w.Code, w.Body.String())
	}
	added := decode(t, w)["question"].(map[string]interface{})
	addedID := uint(added["id"].(float64))

	w = env.do(http.MethodPatch, fmt.Sprintf("%s/%d", base, addedID), "admin-1", map[string]interface{}{"type": "short_answer", "text": "Capital of Italy?", "points": 2})
	if w.Code != http.StatusOK || decode(t, w)["question"].(map[string]interface{})["points"].(float64) != 2 {
		t.Errorf("update question = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, base+"/reorder", "admin-1", map[string]interface{}{"order": []uint{addedID, firstID}})
	if w.Code != http.StatusOK {
		t.Fatalf("reorder = %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, fmt.Sprintf("/api/v1/admin/exams/%d", examID), "admin-1", nil)
	var exam models.ExamPayload
	if err := json.Unmarshal(w.Body.Bytes(), &exam); err != nil {
		t.Fatalf("decode exam: %v", err)
	}
	if len(exam.Questions) != 2 || exam.Questions[0].ID != addedID || exam.MaxScore != 3 {
		t.Errorf("exam after reorder = %+v", exam)
	}

	if w := env.do(http.MethodDelete, fmt.Sprintf("%s/%d", base, firstID), "admin-1", nil); w.Code != http.StatusOK {
		t.Errorf("delete question = %d %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodDelete, fmt.Sprintf("%s/%d", base, firstID), "admin-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete missing question = %d, want 404", w.Code)
	}

	w = env.do(http.MethodPost, "/api/v1/admin/exams", "admin-1", map[string]interface{}{"questions": []interface{}{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("create without exam = %d, want 400", w.Code)
	}
}

func TestExportRoute(t *testing.T) {
	env := newAPIEnv(t)
	examID, _ := env.createExam(true)

	w := env.do(http.MethodGet, fmt.Sprintf("/api/v1/admin/exams/%d/results/export", examID), "teacher-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Error("missing Content-Disposition")
	}
	if w.Body.Len() == 0 {
		t.Error("empty workbook")
	}

	w = env.do(http.MethodGet, fmt.Sprintf("/api/v1/admin/exams/%d/results/export?archive=true", examID), "admin-1", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("archive without storage = %d, want 503", w.Code)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != "healthy" {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestUserRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewUserRateLimiter(2)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("u1") || !limiter.allow("u1") {
		t.Fatal("burst rejected")
	}
	if limiter.allow("u1") {
		t.Fatal("third request in the same instant allowed")
	}
	if !limiter.allow("u2") {
		t.Fatal("other users share the bucket")
	}

	now = now.Add(30 * time.Second)
	if !limiter.allow("u1") {
		t.Fatal("token not refilled after 30s")
	}
}
