package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/exam-attempt-service/internal/metrics"
	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	examHandler    *ExamHandler
	gradingHandler *GradingHandler
	resultsHandler *ResultsHandler
	authMiddleware *CasdoorAuthMiddleware
	autosaveLimit  *UserRateLimiter
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	authMiddleware *CasdoorAuthMiddleware,
	autosavePerMinute int,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), logger),
		examHandler:    NewExamHandler(serviceManager.Exam(), logger),
		gradingHandler: NewGradingHandler(serviceManager.Grading(), logger),
		resultsHandler: NewResultsHandler(serviceManager.Statistics(), serviceManager.Export(), logger),
		authMiddleware: authMiddleware,
		autosaveLimit:  NewUserRateLimiter(autosavePerMinute),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Exam taking, course exams and standalone exams share handlers
		hm.registerAttemptRoutes(v1.Group("/courses/:course_id/exams/:exam_id"))
		hm.registerAttemptRoutes(v1.Group("/exams/:exam_id"))

		admin := v1.Group("/admin")
		adminOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin)
		resultsReaders := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin)

		exams := admin.Group("/exams")
		{
			exams.GET("", adminOnly, hm.examHandler.ListExams)
			exams.POST("", adminOnly, hm.examHandler.CreateExam)
			exams.GET("/:id", adminOnly, hm.examHandler.GetExam)
			exams.PUT("/:id", adminOnly, hm.examHandler.UpdateExam)
			exams.DELETE("/:id", adminOnly, hm.examHandler.DeleteExam)

			exams.POST("/:id/questions", adminOnly, hm.examHandler.AddQuestion)
			exams.POST("/:id/questions/reorder", adminOnly, hm.examHandler.ReorderQuestions)
			exams.PATCH("/:id/questions/:question_id", adminOnly, hm.examHandler.UpdateQuestion)
			exams.DELETE("/:id/questions/:question_id", adminOnly, hm.examHandler.DeleteQuestion)

			exams.GET("/:id/results", resultsReaders, hm.resultsHandler.GetResults)
			exams.GET("/:id/statistics", resultsReaders, hm.resultsHandler.GetStatistics)
			exams.GET("/:id/results/export", resultsReaders, hm.resultsHandler.ExportResults)
		}

		attempts := admin.Group("/attempts")
		attempts.Use(adminOnly)
		{
			attempts.GET("/:id", hm.gradingHandler.GetAttempt)
			attempts.POST("/:id/grade", hm.gradingHandler.GradeAttempt)
		}
	}

	router.GET("/health", hm.health)
	router.GET("/metrics", metrics.PrometheusHandler())
}

func (hm *HandlerManager) registerAttemptRoutes(group *gin.RouterGroup) {
	group.GET("", hm.attemptHandler.ExamPage)
	group.POST("/start", hm.attemptHandler.StartAttempt)
	group.POST("/autosave", hm.autosaveLimit.Middleware(), hm.attemptHandler.Autosave)
	group.POST("/submit", hm.attemptHandler.SubmitAttempt)
	group.GET("/status", hm.attemptHandler.AttemptStatus)
	group.GET("/results/:attempt_id", hm.attemptHandler.AttemptResult)
}

func (hm *HandlerManager) health(c *gin.Context) {
	body := gin.H{
		"service":   "exam-attempt-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "healthy"
	c.JSON(http.StatusOK, body)
}
