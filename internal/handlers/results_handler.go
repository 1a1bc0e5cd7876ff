package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

type ResultsHandler struct {
	BaseHandler
	statisticsService services.StatisticsService
	exportService     services.ExportService
}

func NewResultsHandler(statisticsService services.StatisticsService, exportService services.ExportService, logger utils.Logger) *ResultsHandler {
	return &ResultsHandler{
		BaseHandler:       NewBaseHandler(logger),
		statisticsService: statisticsService,
		exportService:     exportService,
	}
}

// GetResults returns statistics, per-question analytics and every attempt of an exam
// @Summary Exam results
// @Tags results
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} services.ExamResultsResponse
// @Router /admin/exams/{id}/results [get]
func (h *ResultsHandler) GetResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	results, err := h.statisticsService.GetExamResults(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// @Router /admin/exams/{id}/statistics [get]
func (h *ResultsHandler) GetStatistics(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	stats, err := h.statisticsService.GetExamStatistics(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportResults streams the results workbook, or archives it when archive=true
// @Summary Export exam results
// @Tags results
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Exam ID"
// @Param archive query bool false "Upload to report storage and return its URL"
// @Router /admin/exams/{id}/results/export [get]
func (h *ResultsHandler) ExportResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if archive, _ := strconv.ParseBool(c.Query("archive")); archive {
		h.LogRequest(c, "Archiving exam results", "exam_id", id)

		url, err := h.exportService.ArchiveResults(c.Request.Context(), id)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
		return
	}

	report, err := h.exportService.ExportResults(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Name))
	c.Data(http.StatusOK, report.ContentType, report.Data)
}
