package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

// AttemptHandler serves the exam-taking routes. Every route is mounted twice: under
// /courses/:course_id/exams/:exam_id for course exams and /exams/:exam_id for standalone ones.
type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// ExamPage returns the exam with the caller's active attempt and past attempts
// @Summary Exam page
// @Tags attempts
// @Produce json
// @Param course_id path uint false "Course ID"
// @Param exam_id path uint true "Exam ID"
// @Success 200 {object} services.ExamPageResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /courses/{course_id}/exams/{exam_id} [get]
func (h *AttemptHandler) ExamPage(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	h.LogRequest(c, "Loading exam page", "exam_id", scope.ExamID)

	page, err := h.attemptService.ExamPage(c.Request.Context(), scope, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// StartAttempt resumes the caller's live attempt or opens a new one
// @Summary Start exam attempt
// @Tags attempts
// @Produce json
// @Success 200 {object} services.StartAttemptResponse
// @Failure 403 {object} ErrorResponse
// @Router /courses/{course_id}/exams/{exam_id}/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	h.LogRequest(c, "Starting exam attempt", "exam_id", scope.ExamID)

	resp, err := h.attemptService.Start(c.Request.Context(), scope, user)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Autosave stores the in-progress responses
// @Summary Autosave responses
// @Tags attempts
// @Accept json
// @Produce json
// @Param body body services.AutosaveRequest true "Autosave payload"
// @Success 200 {object} services.AutosaveResponse
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /courses/{course_id}/exams/{exam_id}/autosave [post]
func (h *AttemptHandler) Autosave(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	var req services.AutosaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.attemptService.Autosave(c.Request.Context(), scope, user, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitAttempt grades and closes an attempt
// @Summary Submit exam attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param body body services.SubmitRequest true "Responses as a list or a map keyed by question id"
// @Success 200 {object} services.SubmitResponse
// @Failure 400 {object} ErrorResponse
// @Router /courses/{course_id}/exams/{exam_id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Submitting exam attempt", "exam_id", scope.ExamID)

	resp, err := h.attemptService.Submit(c.Request.Context(), scope, user, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AttemptStatus reports an attempt, finalizing it first when its time ran out
// @Summary Attempt status
// @Tags attempts
// @Produce json
// @Param attempt_id query uint false "Attempt ID; defaults to the latest attempt"
// @Success 200 {object} services.StatusResponse
// @Router /courses/{course_id}/exams/{exam_id}/status [get]
func (h *AttemptHandler) AttemptStatus(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	var attemptID *uint
	if raw := c.Query("attempt_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid attempt_id",
				Details: err.Error(),
			})
			return
		}
		v := uint(id)
		attemptID = &v
	}

	resp, err := h.attemptService.Status(c.Request.Context(), scope, user, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AttemptResult returns the summary of one of the caller's attempts
// @Summary Attempt result
// @Tags attempts
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Success 200 {object} models.AttemptSummary
// @Failure 404 {object} ErrorResponse
// @Router /courses/{course_id}/exams/{exam_id}/results/{attempt_id} [get]
func (h *AttemptHandler) AttemptResult(c *gin.Context) {
	scope, ok := h.parseScope(c)
	if !ok {
		return
	}
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	summary, err := h.attemptService.Result(c.Request.Context(), scope, user, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// parseScope reads exam_id and, on course routes, course_id
func (h *AttemptHandler) parseScope(c *gin.Context) (services.ExamScope, bool) {
	var scope services.ExamScope
	if c.Param("course_id") != "" {
		courseID := h.parseIDParam(c, "course_id")
		if courseID == 0 {
			return scope, false
		}
		scope.CourseID = &courseID
	}
	scope.ExamID = h.parseIDParam(c, "exam_id")
	return scope, scope.ExamID != 0
}
