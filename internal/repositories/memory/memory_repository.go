// Package memory keeps every record in process memory. It backs STORAGE_DRIVER=memory
// for local runs and the service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/repositories"
)

type store struct {
	mu sync.RWMutex
	// txMu serializes WithTransaction callers
	txMu sync.Mutex

	seq         uint
	exams       map[uint]*models.Exam
	questions   map[uint]*models.ExamQuestion
	attempts    map[uint]*models.ExamAttempt
	answers     map[uint]*models.ExamAnswer
	enrollments map[string]bool
	users       map[string]*models.User
}

// Repository is an in-memory repositories.Repository.
type Repository struct {
	s *store
}

func New() *Repository {
	return &Repository{s: &store{
		exams:       map[uint]*models.Exam{},
		questions:   map[uint]*models.ExamQuestion{},
		attempts:    map[uint]*models.ExamAttempt{},
		answers:     map[uint]*models.ExamAnswer{},
		enrollments: map[string]bool{},
		users:       map[string]*models.User{},
	}}
}

func (r *Repository) Exam() repositories.ExamRepository             { return examRepo{r.s} }
func (r *Repository) Question() repositories.QuestionRepository     { return questionRepo{r.s} }
func (r *Repository) Attempt() repositories.AttemptRepository       { return attemptRepo{r.s} }
func (r *Repository) Answer() repositories.AnswerRepository         { return answerRepo{r.s} }
func (r *Repository) Enrollment() repositories.EnrollmentRepository { return enrollmentRepo{r.s} }
func (r *Repository) User() repositories.UserRepository             { return userRepo{r.s} }

// WithTransaction runs fn exclusively. Writes are not rolled back on error.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()
	return fn(r)
}

func (r *Repository) Ping(ctx context.Context) error { return nil }
func (r *Repository) Close() error                   { return nil }

// AddUser registers a user in the built-in directory.
func (r *Repository) AddUser(u *models.User) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *u
	r.s.users[u.ID] = &cp
}

// Enroll grants userID access to courseID.
func (r *Repository) Enroll(userID string, courseID uint) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.enrollments[enrollmentKey(userID, courseID)] = true
}

func enrollmentKey(userID string, courseID uint) string {
	return fmt.Sprintf("%s/%d", userID, courseID)
}

func (s *store) nextID() uint {
	s.seq++
	return s.seq
}

func notFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, id, repositories.ErrNotFound)
}

func cloneJSON(j datatypes.JSON) datatypes.JSON {
	if j == nil {
		return nil
	}
	out := make(datatypes.JSON, len(j))
	copy(out, j)
	return out
}

func cloneQuestion(q *models.ExamQuestion) *models.ExamQuestion {
	cp := *q
	cp.Options = cloneJSON(q.Options)
	cp.CorrectAnswers = cloneJSON(q.CorrectAnswers)
	cp.Config = cloneJSON(q.Config)
	return &cp
}

func cloneAnswer(a *models.ExamAnswer) *models.ExamAnswer {
	cp := *a
	cp.ResponseData = cloneJSON(a.ResponseData)
	if a.IsCorrect != nil {
		v := *a.IsCorrect
		cp.IsCorrect = &v
	}
	return &cp
}

func cloneAttempt(a *models.ExamAttempt) *models.ExamAttempt {
	cp := *a
	cp.AutosavePayload = cloneJSON(a.AutosavePayload)
	cp.Answers = nil
	if a.Passed != nil {
		v := *a.Passed
		cp.Passed = &v
	}
	return &cp
}

// examQuestions returns the exam's questions sorted by (order_index, id). Caller holds mu.
func (s *store) examQuestions(examID uint) []models.ExamQuestion {
	var out []models.ExamQuestion
	for _, q := range s.questions {
		if q.ExamID == examID {
			out = append(out, *cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// attemptAnswers returns the attempt's answers by id. Caller holds mu.
func (s *store) attemptAnswers(attemptID uint) []models.ExamAnswer {
	var out []models.ExamAnswer
	for _, a := range s.answers {
		if a.AttemptID == attemptID {
			out = append(out, *cloneAnswer(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ===== EXAMS =====

type examRepo struct{ s *store }

func (r examRepo) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	exam.ID = r.s.nextID()
	exam.CreatedAt, exam.UpdatedAt = now, now
	for i := range exam.Questions {
		q := &exam.Questions[i]
		q.ID = r.s.nextID()
		q.ExamID = exam.ID
		q.CreatedAt, q.UpdatedAt = now, now
		r.s.questions[q.ID] = cloneQuestion(q)
	}
	stored := *exam
	stored.Settings = cloneJSON(exam.Settings)
	stored.Questions = nil
	r.s.exams[exam.ID] = &stored
	return nil
}

func (r examRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.exams[id]
	if !ok {
		return nil, notFound("exam", id)
	}
	cp := *e
	cp.Settings = cloneJSON(e.Settings)
	return &cp, nil
}

func (r examRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.exams[id]
	if !ok {
		return nil, notFound("exam", id)
	}
	cp := *e
	cp.Settings = cloneJSON(e.Settings)
	cp.Questions = r.s.examQuestions(id)
	return &cp, nil
}

func (r examRepo) Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exams[exam.ID]; !ok {
		return notFound("exam", exam.ID)
	}
	exam.UpdatedAt = time.Now().UTC()
	stored := *exam
	stored.Settings = cloneJSON(exam.Settings)
	stored.Questions = nil
	r.s.exams[exam.ID] = &stored
	return nil
}

func (r examRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exams[id]; !ok {
		return notFound("exam", id)
	}
	for aid, a := range r.s.attempts {
		if a.ExamID != id {
			continue
		}
		for ansID, ans := range r.s.answers {
			if ans.AttemptID == aid {
				delete(r.s.answers, ansID)
			}
		}
		delete(r.s.attempts, aid)
	}
	for qid, q := range r.s.questions {
		if q.ExamID == id {
			delete(r.s.questions, qid)
		}
	}
	delete(r.s.exams, id)
	return nil
}

func (r examRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.Exam
	for _, e := range r.s.exams {
		if filters.CourseID != nil && (e.CourseID == nil || *e.CourseID != *filters.CourseID) {
			continue
		}
		if filters.IsActive != nil && e.IsActive != *filters.IsActive {
			continue
		}
		cp := *e
		cp.Questions = r.s.examQuestions(e.ID)
		out = append(out, &cp)
	}

	asc := filters.SortOrder == "asc" || filters.SortOrder == "ASC"
	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch filters.SortBy {
		case "title":
			less = out[i].Title < out[j].Title
			if out[i].Title == out[j].Title {
				less = out[i].ID < out[j].ID
			}
		default:
			less = out[i].ID < out[j].ID
		}
		if asc {
			return less
		}
		return !less
	})

	total := int64(len(out))
	return paginate(out, filters.Limit, filters.Offset), total, nil
}

func (r examRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Exam, error) {
	active := true
	exams, _, err := r.List(ctx, tx, repositories.ExamFilters{CourseID: &courseID, IsActive: &active, SortOrder: "asc"})
	return exams, err
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ===== QUESTIONS =====

type questionRepo struct{ s *store }

func (r questionRepo) Create(ctx context.Context, tx *gorm.DB, question *models.ExamQuestion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exams[question.ExamID]; !ok {
		return notFound("exam", question.ExamID)
	}
	now := time.Now().UTC()
	question.ID = r.s.nextID()
	question.CreatedAt, question.UpdatedAt = now, now
	r.s.questions[question.ID] = cloneQuestion(question)
	return nil
}

func (r questionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamQuestion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.questions[id]
	if !ok {
		return nil, notFound("question", id)
	}
	return cloneQuestion(q), nil
}

func (r questionRepo) Update(ctx context.Context, tx *gorm.DB, question *models.ExamQuestion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.questions[question.ID]; !ok {
		return notFound("question", question.ID)
	}
	question.UpdatedAt = time.Now().UTC()
	r.s.questions[question.ID] = cloneQuestion(question)
	return nil
}

func (r questionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.questions[id]; !ok {
		return notFound("question", id)
	}
	delete(r.s.questions, id)
	return nil
}

func (r questionRepo) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamQuestion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	qs := r.s.examQuestions(examID)
	out := make([]*models.ExamQuestion, len(qs))
	for i := range qs {
		out[i] = &qs[i]
	}
	return out, nil
}

func (r questionRepo) GetNextOrderIndex(ctx context.Context, tx *gorm.DB, examID uint) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	next, seen := 0, false
	for _, q := range r.s.questions {
		if q.ExamID == examID && (!seen || q.OrderIndex >= next) {
			next, seen = q.OrderIndex+1, true
		}
	}
	return next, nil
}

func (r questionRepo) UpdateOrder(ctx context.Context, tx *gorm.DB, examID uint, orders []repositories.QuestionOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range orders {
		q, ok := r.s.questions[o.QuestionID]
		if !ok || q.ExamID != examID {
			return notFound("question", o.QuestionID)
		}
	}
	for _, o := range orders {
		r.s.questions[o.QuestionID].OrderIndex = o.Order
	}
	return nil
}

// ===== ATTEMPTS =====

type attemptRepo struct{ s *store }

func (r attemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if attempt.Status == "" {
		attempt.Status = models.AttemptInProgress
	}
	if attempt.Status == models.AttemptInProgress {
		for _, a := range r.s.attempts {
			if a.UserID == attempt.UserID && a.ExamID == attempt.ExamID && a.Status == models.AttemptInProgress {
				return fmt.Errorf("attempt for %s on exam %d: %w", attempt.UserID, attempt.ExamID, repositories.ErrDuplicateKey)
			}
		}
	}

	now := time.Now().UTC()
	attempt.ID = r.s.nextID()
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	r.s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (r attemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.attempts[id]
	if !ok {
		return nil, notFound("attempt", id)
	}
	cp := cloneAttempt(a)
	cp.Answers = r.s.attemptAnswers(id)
	return cp, nil
}

func (r attemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.attempts[attempt.ID]; !ok {
		return notFound("attempt", attempt.ID)
	}
	attempt.UpdatedAt = time.Now().UTC()
	r.s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (r attemptRepo) Finalize(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.attempts[attempt.ID]
	if !ok || stored.Status != models.AttemptInProgress {
		return notFound("in-progress attempt", attempt.ID)
	}
	attempt.UpdatedAt = time.Now().UTC()
	r.s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (r attemptRepo) UpdateAutosave(ctx context.Context, tx *gorm.DB, id uint, payload datatypes.JSON) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attempts[id]
	if !ok || a.Status != models.AttemptInProgress {
		return notFound("in-progress attempt", id)
	}
	a.AutosavePayload = cloneJSON(payload)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// pick returns the best matching attempt by less, or ErrNotFound.
func (r attemptRepo) pick(userID string, examID uint, match func(*models.ExamAttempt) bool, less func(a, b *models.ExamAttempt) bool) (*models.ExamAttempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *models.ExamAttempt
	for _, a := range r.s.attempts {
		if a.UserID != userID || a.ExamID != examID || !match(a) {
			continue
		}
		if best == nil || less(best, a) {
			best = a
		}
	}
	if best == nil {
		return nil, notFound("attempt for user", userID)
	}
	return cloneAttempt(best), nil
}

func byID(a, b *models.ExamAttempt) bool { return a.ID < b.ID }

func byStartTime(a, b *models.ExamAttempt) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.ID < b.ID
}

func (r attemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	return r.pick(userID, examID, func(a *models.ExamAttempt) bool { return a.Status == models.AttemptInProgress }, byStartTime)
}

func (r attemptRepo) GetLatestAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	return r.pick(userID, examID, func(*models.ExamAttempt) bool { return true }, byID)
}

func (r attemptRepo) GetLatestFinishedAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	return r.pick(userID, examID, func(a *models.ExamAttempt) bool { return a.Status.IsFinished() }, byID)
}

func (r attemptRepo) CountByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, a := range r.s.attempts {
		if a.UserID == userID && a.ExamID == examID {
			n++
		}
	}
	return n, nil
}

func (r attemptRepo) HasGradedAttempt(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error) {
	_, err := r.pick(userID, examID, func(a *models.ExamAttempt) bool {
		return a.Status == models.AttemptGraded || a.Status == models.AttemptLegacyPassed
	}, byID)
	if repositories.IsNotFoundError(err) {
		return false, nil
	}
	return err == nil, err
}

func (r attemptRepo) filter(examID uint, filters repositories.AttemptFilters) []*models.ExamAttempt {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.ExamAttempt
	for _, a := range r.s.attempts {
		if a.ExamID != examID {
			continue
		}
		if filters.UserID != nil && a.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		if filters.Finished && !a.Status.IsFinished() {
			continue
		}
		cp := cloneAttempt(a)
		cp.Answers = r.s.attemptAnswers(a.ID)
		out = append(out, cp)
	}

	asc := filters.SortOrder == "asc" || filters.SortOrder == "ASC"
	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch filters.SortBy {
		case "score":
			less = out[i].Score < out[j].Score || (out[i].Score == out[j].Score && out[i].ID < out[j].ID)
		case "start_time":
			less = byStartTime(out[i], out[j])
		default:
			less = out[i].ID < out[j].ID
		}
		if asc {
			return less
		}
		return !less
	})
	return out
}

func (r attemptRepo) ListByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint, filters repositories.AttemptFilters) ([]*models.ExamAttempt, error) {
	filters.UserID = &userID
	return paginate(r.filter(examID, filters), filters.Limit, filters.Offset), nil
}

func (r attemptRepo) ListByExam(ctx context.Context, tx *gorm.DB, examID uint, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	all := r.filter(examID, filters)
	return paginate(all, filters.Limit, filters.Offset), int64(len(all)), nil
}

func (r attemptRepo) GetExamAggregates(ctx context.Context, tx *gorm.DB, examID uint) (*repositories.ExamAttemptAggregates, error) {
	finished := r.filter(examID, repositories.AttemptFilters{Finished: true})
	agg := &repositories.ExamAttemptAggregates{AttemptCount: int64(len(finished))}
	if len(finished) == 0 {
		return agg, nil
	}

	var sum, hi, lo, durSum float64
	var durCount int
	for i, a := range finished {
		sum += a.Score
		if i == 0 || a.Score > hi {
			hi = a.Score
		}
		if i == 0 || a.Score < lo {
			lo = a.Score
		}
		if a.DurationSeconds != nil {
			durSum += float64(*a.DurationSeconds)
			durCount++
		}
		if a.Passed != nil && *a.Passed {
			agg.PassedTotal++
		}
	}
	avg := sum / float64(len(finished))
	agg.AverageScore, agg.HighestScore, agg.LowestScore = &avg, &hi, &lo
	if durCount > 0 {
		avgDur := durSum / float64(durCount)
		agg.AverageDuration = &avgDur
	}
	return agg, nil
}

// ===== ANSWERS =====

type answerRepo struct{ s *store }

func (r answerRepo) CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.ExamAnswer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	for _, a := range answers {
		a.ID = r.s.nextID()
		a.CreatedAt, a.UpdatedAt = now, now
		r.s.answers[a.ID] = cloneAnswer(a)
	}
	return nil
}

func (r answerRepo) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, a := range r.s.answers {
		if a.AttemptID == attemptID {
			delete(r.s.answers, id)
		}
	}
	return nil
}

func (r answerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.ExamAnswer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	list := r.s.attemptAnswers(attemptID)
	out := make([]*models.ExamAnswer, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out, nil
}

func (r answerRepo) UpdateGrade(ctx context.Context, tx *gorm.DB, answer *models.ExamAnswer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.answers[answer.ID]
	if !ok || stored.AttemptID != answer.AttemptID {
		return notFound("answer", answer.ID)
	}
	updated := cloneAnswer(answer)
	stored.IsCorrect = updated.IsCorrect
	stored.PointsAwarded = updated.PointsAwarded
	stored.Feedback = updated.Feedback
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r answerRepo) GetQuestionAnswerCounts(ctx context.Context, tx *gorm.DB, examID uint) ([]repositories.QuestionAnswerCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := map[uint]*repositories.QuestionAnswerCount{}
	for _, a := range r.s.answers {
		q, ok := r.s.questions[a.QuestionID]
		if !ok || q.ExamID != examID {
			continue
		}
		c, ok := counts[a.QuestionID]
		if !ok {
			c = &repositories.QuestionAnswerCount{QuestionID: a.QuestionID}
			counts[a.QuestionID] = c
		}
		c.Total++
		if a.IsCorrect != nil && *a.IsCorrect {
			c.Correct++
		}
	}

	out := make([]repositories.QuestionAnswerCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

// ===== DIRECTORY =====

type enrollmentRepo struct{ s *store }

func (r enrollmentRepo) IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.enrollments[enrollmentKey(userID, courseID)], nil
}

type userRepo struct{ s *store }

func (r userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}
