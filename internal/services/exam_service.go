package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/exam-attempt-service/internal/validator"
)

type examService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewExamService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) ExamService {
	return &examService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== EXAM CRUD =====

func (s *examService) Create(ctx context.Context, req *models.ExamRequest) (*models.ExamPayload, error) {
	s.logger.Info("Creating exam", "title", req.Title, "course_id", req.CourseID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam := &models.Exam{PassMark: DefaultPassMark}
	applyExamRequest(exam, req)
	for i := range req.Questions {
		q := models.ExamQuestion{}
		applyQuestionRequest(&q, &req.Questions[i])
		q.OrderIndex = i
		exam.Questions = append(exam.Questions, q)
	}

	if err := s.repo.Exam().Create(ctx, s.db, exam); err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	s.logger.Info("Exam created", "exam_id", exam.ID, "questions", len(exam.Questions))
	return s.Get(ctx, exam.ID)
}

// Update rewrites the exam fields. A non-nil question list replaces the question set:
// known ids are updated, new entries created, missing ones deleted, and order follows the list.
func (s *examService) Update(ctx context.Context, id uint, req *models.ExamRequest) (*models.ExamPayload, error) {
	s.logger.Info("Updating exam", "exam_id", id)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	applyExamRequest(exam, req)

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Exam().Update(ctx, nil, exam); err != nil {
			return fmt.Errorf("failed to update exam: %w", err)
		}
		if req.Questions == nil {
			return nil
		}
		return replaceQuestions(ctx, txRepo.Question(), exam, req.Questions)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *examService) Get(ctx context.Context, id uint) (*models.ExamPayload, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return models.NewExamPayload(exam), nil
}

func (s *examService) List(ctx context.Context, filters repositories.ExamFilters) (*ExamListResponse, error) {
	exams, total, err := s.repo.Exam().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	response := &ExamListResponse{
		Exams: make([]*models.ExamPayload, 0, len(exams)),
		Total: total,
		Page:  1,
		Size:  filters.Limit,
	}
	if filters.Limit > 0 {
		response.Page = filters.Offset/filters.Limit + 1
	}
	for _, exam := range exams {
		response.Exams = append(response.Exams, models.NewExamPayload(exam))
	}
	return response, nil
}

func (s *examService) Delete(ctx context.Context, id uint) error {
	s.logger.Info("Deleting exam", "exam_id", id)

	if err := s.repo.Exam().Delete(ctx, s.db, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrExamNotFound
		}
		return fmt.Errorf("failed to delete exam: %w", err)
	}
	return nil
}

// ===== QUESTIONS =====

func (s *examService) AddQuestion(ctx context.Context, examID uint, req *models.QuestionRequest) (*models.QuestionPayload, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}

	question := &models.ExamQuestion{ExamID: examID}
	applyQuestionRequest(question, req)
	if req.OrderIndex != nil {
		question.OrderIndex = *req.OrderIndex
	} else {
		next, err := s.repo.Question().GetNextOrderIndex(ctx, s.db, examID)
		if err != nil {
			return nil, fmt.Errorf("failed to get next order index: %w", err)
		}
		question.OrderIndex = next
	}

	if err := s.repo.Question().Create(ctx, s.db, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("Question added", "exam_id", examID, "question_id", question.ID)
	payload := models.NewQuestionPayload(question)
	return &payload, nil
}

func (s *examService) UpdateQuestion(ctx context.Context, examID, questionID uint, req *models.QuestionRequest) (*models.QuestionPayload, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	question, err := s.examQuestion(ctx, examID, questionID)
	if err != nil {
		return nil, err
	}
	applyQuestionRequest(question, req)
	if req.OrderIndex != nil {
		question.OrderIndex = *req.OrderIndex
	}

	if err := s.repo.Question().Update(ctx, s.db, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	payload := models.NewQuestionPayload(question)
	return &payload, nil
}

// DeleteQuestion removes the question and closes the gap in the order of the rest
func (s *examService) DeleteQuestion(ctx context.Context, examID, questionID uint) error {
	if _, err := s.examQuestion(ctx, examID, questionID); err != nil {
		return err
	}

	return s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Question().Delete(ctx, nil, questionID); err != nil {
			return fmt.Errorf("failed to delete question: %w", err)
		}

		remaining, err := txRepo.Question().GetByExam(ctx, nil, examID)
		if err != nil {
			return fmt.Errorf("failed to list questions: %w", err)
		}
		orders := make([]repositories.QuestionOrder, 0, len(remaining))
		for i, q := range remaining {
			orders = append(orders, repositories.QuestionOrder{QuestionID: q.ID, Order: i})
		}
		if len(orders) == 0 {
			return nil
		}
		return txRepo.Question().UpdateOrder(ctx, nil, examID, orders)
	})
}

// ReorderQuestions assigns each listed id its position in the list. Ids not in the exam are skipped.
func (s *examService) ReorderQuestions(ctx context.Context, examID uint, req *models.QuestionReorderRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if err := s.ensureExam(ctx, examID); err != nil {
		return err
	}

	questions, err := s.repo.Question().GetByExam(ctx, s.db, examID)
	if err != nil {
		return fmt.Errorf("failed to list questions: %w", err)
	}
	known := make(map[uint]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}

	var orders []repositories.QuestionOrder
	for i, id := range req.Order {
		if known[id] {
			orders = append(orders, repositories.QuestionOrder{QuestionID: id, Order: i})
		}
	}
	if len(orders) == 0 {
		return nil
	}

	if err := s.repo.Question().UpdateOrder(ctx, s.db, examID, orders); err != nil {
		return fmt.Errorf("failed to reorder questions: %w", err)
	}
	return nil
}

func (s *examService) ensureExam(ctx context.Context, examID uint) error {
	if _, err := s.repo.Exam().GetByID(ctx, s.db, examID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrExamNotFound
		}
		return fmt.Errorf("failed to get exam: %w", err)
	}
	return nil
}

func (s *examService) examQuestion(ctx context.Context, examID, questionID uint) (*models.ExamQuestion, error) {
	if err := s.ensureExam(ctx, examID); err != nil {
		return nil, err
	}
	question, err := s.repo.Question().GetByID(ctx, s.db, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if question.ExamID != examID {
		return nil, ErrQuestionNotFound
	}
	return question, nil
}
