package grading

import (
	"strings"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// Result is the outcome of grading one response.
// IsCorrect is nil when the answer needs a human decision.
type Result struct {
	IsCorrect     *bool
	PointsAwarded float64
	Normalized    interface{} // canonical form persisted as the answer's response_data
}

// Strategy grades a single question type. Response values are the output of encoding/json
// decoding into interface{}: string, float64, bool, nil, []interface{}, map[string]interface{}.
type Strategy interface {
	Grade(q *models.ExamQuestion, response interface{}, autoPassSubjective bool) Result
}

// Engine routes a question to the strategy registered for its type.
type Engine struct {
	strategies map[string]Strategy
}

type Option func(*Engine)

// WithStrategy registers s under every given type name, replacing built-ins.
func WithStrategy(s Strategy, types ...models.QuestionType) Option {
	return func(e *Engine) {
		for _, t := range types {
			e.strategies[normalizeType(t)] = s
		}
	}
}

// NewEngine installs the built-in strategies and their aliases.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{strategies: map[string]Strategy{}}

	single := singleChoiceStrategy{}
	multi := multiSelectStrategy{}
	short := shortAnswerStrategy{}
	free := freeTextStrategy{}

	WithStrategy(single, models.MultipleChoice, models.MCQ, models.Radio)(e)
	WithStrategy(multi, models.Checkbox, models.MultiSelect)(e)
	WithStrategy(short, models.ShortAnswer)(e)
	WithStrategy(free, models.Essay, models.LongAnswer)(e)

	for _, o := range opts {
		o(e)
	}
	return e
}

// Grade is pure: it never touches storage and never fails. Unknown types come back
// indeterminate with the raw response wrapped as {"value": response}.
func (e *Engine) Grade(q *models.ExamQuestion, response interface{}, autoPassSubjective bool) Result {
	s, ok := e.strategies[normalizeType(q.QuestionType)]
	if !ok {
		return Result{Normalized: map[string]interface{}{"value": response}}
	}
	return s.Grade(q, response, autoPassSubjective)
}

// Supports reports whether a strategy is registered for t.
func (e *Engine) Supports(t models.QuestionType) bool {
	_, ok := e.strategies[normalizeType(t)]
	return ok
}

func normalizeType(t models.QuestionType) string {
	return strings.ToLower(strings.TrimSpace(string(t)))
}

var defaultEngine = NewEngine()

// Grade runs the default engine.
func Grade(q *models.ExamQuestion, response interface{}, autoPassSubjective bool) Result {
	return defaultEngine.Grade(q, response, autoPassSubjective)
}
