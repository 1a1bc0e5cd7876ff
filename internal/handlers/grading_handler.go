package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
}

func NewGradingHandler(gradingService services.GradingService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
	}
}

// GetAttempt returns the admin view of an attempt
// @Summary Admin attempt detail
// @Tags grading
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} models.AdminAttemptPayload
// @Failure 404 {object} ErrorResponse
// @Router /admin/attempts/{id} [get]
func (h *GradingHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	attempt, err := h.gradingService.GetAttemptDetail(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempt": attempt})
}

// GradeAttempt applies per-answer overrides and recomputes the score
// @Summary Grade attempt
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param body body services.GradeAttemptRequest true "Overrides"
// @Success 200 {object} models.AdminAttemptPayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/attempts/{id}/grade [post]
func (h *GradingHandler) GradeAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	user := h.currentUser(c)
	if user == nil {
		return
	}

	var req services.GradeAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Grading attempt", "attempt_id", id, "overrides", len(req.Answers))

	attempt, err := h.gradingService.GradeAttempt(c.Request.Context(), id, &req, user.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "attempt": attempt})
}
