package services

import (
	"context"
	"fmt"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

const (
	DefaultPassMark       = 70.0
	DefaultQuestionPoints = 1.0
	untitledQuestion      = "Untitled question"
)

// applyExamRequest copies authoring fields onto exam. PassMark is only touched when supplied.
func applyExamRequest(exam *models.Exam, req *models.ExamRequest) {
	exam.CourseID = req.CourseID
	exam.Title = req.Title
	exam.Description = req.Description
	exam.DurationMinutes = req.DurationMinutes
	if req.PassMark != nil {
		exam.PassMark = *req.PassMark
	}
	exam.IsRequired = req.IsRequired
	exam.IsActive = boolOr(req.IsActive, true)
	exam.AllowRetakes = boolOr(req.AllowRetakes, true)
	exam.TriggerLessonID = req.TriggerLessonID
	exam.RequiredToCompleteCourse = req.RequiredToCompleteCourse
	exam.Settings = models.ParseExamSettings(datatypes.JSON(req.Settings)).ToJSON()
}

func applyQuestionRequest(q *models.ExamQuestion, req *models.QuestionRequest) {
	q.QuestionType = req.QuestionType
	if q.QuestionType == "" {
		q.QuestionType = models.MultipleChoice
	}
	q.Text = req.Text
	if q.Text == "" {
		q.Text = untitledQuestion
	}
	q.Options = datatypes.JSON(models.RawOr(req.Options, "[]"))
	q.CorrectAnswers = models.AnswerKeyJSON(req.CorrectAnswers)
	q.Points = DefaultQuestionPoints
	if req.Points != nil {
		q.Points = *req.Points
	}
	q.IsRequired = boolOr(req.IsRequired, true)
	q.Config = datatypes.JSON(models.RawOr(req.Config, "{}"))
}

// replaceQuestions syncs the stored question set of exam with reqs. Entries whose id
// belongs to the exam are updated in place, the rest are created, and stored questions
// absent from reqs are deleted. Order indexes follow list position.
func replaceQuestions(ctx context.Context, questions repositories.QuestionRepository, exam *models.Exam, reqs []models.QuestionRequest) error {
	existing := make(map[uint]*models.ExamQuestion, len(exam.Questions))
	for i := range exam.Questions {
		existing[exam.Questions[i].ID] = &exam.Questions[i]
	}

	kept := make(map[uint]bool, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		if req.ID != nil {
			if q, ok := existing[*req.ID]; ok && !kept[q.ID] {
				applyQuestionRequest(q, req)
				q.OrderIndex = i
				if err := questions.Update(ctx, nil, q); err != nil {
					return fmt.Errorf("failed to update question %d: %w", q.ID, err)
				}
				kept[q.ID] = true
				continue
			}
		}

		q := &models.ExamQuestion{ExamID: exam.ID, OrderIndex: i}
		applyQuestionRequest(q, req)
		if err := questions.Create(ctx, nil, q); err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
		kept[q.ID] = true
	}

	for id := range existing {
		if kept[id] {
			continue
		}
		if err := questions.Delete(ctx, nil, id); err != nil && !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to delete question %d: %w", id, err)
		}
	}
	return nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
