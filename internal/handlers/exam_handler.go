package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

type ExamHandler struct {
	BaseHandler
	examService services.ExamService
}

func NewExamHandler(examService services.ExamService, logger utils.Logger) *ExamHandler {
	return &ExamHandler{
		BaseHandler: NewBaseHandler(logger),
		examService: examService,
	}
}

// examBody is the builder payload. A missing questions key keeps the current question set.
type examBody struct {
	Exam      *models.ExamRequest      `json:"exam"`
	Questions []models.QuestionRequest `json:"questions"`
}

func (h *ExamHandler) bindExamBody(c *gin.Context) (*models.ExamRequest, bool) {
	var body examBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return nil, false
	}
	if body.Exam == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: "exam is required"})
		return nil, false
	}
	body.Exam.Questions = body.Questions
	return body.Exam, true
}

// CreateExam creates an exam with its questions
// @Summary Create exam
// @Tags admin-exams
// @Accept json
// @Produce json
// @Success 201 {object} models.ExamPayload
// @Failure 400 {object} ErrorResponse
// @Router /admin/exams [post]
func (h *ExamHandler) CreateExam(c *gin.Context) {
	req, ok := h.bindExamBody(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating exam", "title", req.Title)

	exam, err := h.examService.Create(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "exam_id": exam.ID, "exam": exam})
}

// UpdateExam updates exam fields and, when questions are sent, replaces the question set
// @Summary Update exam
// @Tags admin-exams
// @Router /admin/exams/{id} [put]
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	req, ok := h.bindExamBody(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Updating exam", "exam_id", id, "replace_questions", req.Questions != nil)

	exam, err := h.examService.Update(c.Request.Context(), id, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "exam_id": exam.ID, "exam": exam})
}

// GetExam returns the serialized exam
// @Summary Get exam
// @Tags admin-exams
// @Router /admin/exams/{id} [get]
func (h *ExamHandler) GetExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// ListExams lists exams with pagination
// @Summary List exams
// @Tags admin-exams
// @Param course_id query uint false "Course filter"
// @Param is_active query bool false "Active filter"
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Router /admin/exams [get]
func (h *ExamHandler) ListExams(c *gin.Context) {
	page := h.parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	size := h.parseIntQuery(c, "size", 20)
	if size < 1 || size > 100 {
		size = 20
	}

	filters := repositories.ExamFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: strings.ToLower(c.DefaultQuery("sort_order", "desc")),
	}
	if raw := c.Query("course_id"); raw != "" {
		if courseID, err := strconv.ParseUint(raw, 10, 32); err == nil {
			v := uint(courseID)
			filters.CourseID = &v
		}
	}
	if raw := c.Query("is_active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &active
		}
	}

	list, err := h.examService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// DeleteExam deletes an exam with its questions and attempts
// @Summary Delete exam
// @Tags admin-exams
// @Router /admin/exams/{id} [delete]
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting exam", "exam_id", id)

	if err := h.examService.Delete(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AddQuestion appends a question to an exam
// @Summary Add question
// @Tags admin-exams
// @Router /admin/exams/{id}/questions [post]
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	var req models.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	question, err := h.examService.AddQuestion(c.Request.Context(), examID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "question": question})
}

// @Router /admin/exams/{id}/questions/{question_id} [patch]
func (h *ExamHandler) UpdateQuestion(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	var req models.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	question, err := h.examService.UpdateQuestion(c.Request.Context(), examID, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "question": question})
}

// @Router /admin/exams/{id}/questions/{question_id} [delete]
func (h *ExamHandler) DeleteQuestion(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	if err := h.examService.DeleteQuestion(c.Request.Context(), examID, questionID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ReorderQuestions sets question order from the position of each id in the list
// @Router /admin/exams/{id}/questions/reorder [post]
func (h *ExamHandler) ReorderQuestions(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	var req models.QuestionReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.examService.ReorderQuestions(c.Request.Context(), examID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
