package grading

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// --- Strategies ---

// singleChoiceStrategy: multiple_choice, mcq, radio.
type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(q *models.ExamQuestion, response interface{}, autoPass bool) Result {
	var selected interface{}
	switch r := response.(type) {
	case string:
		selected = r
	case map[string]interface{}:
		selected = r["selected"]
		if !models.Truthy(selected) {
			selected = r["value"]
		}
	}
	normalized := map[string]interface{}{"selected": selected}

	correct := q.CorrectAnswerList()
	if len(correct) == 0 {
		if autoPass {
			return award(q, true, normalized)
		}
		return Result{Normalized: normalized}
	}

	for _, option := range correct {
		if looseEqual(selected, option) {
			return award(q, true, normalized)
		}
	}
	return award(q, false, normalized)
}

// multiSelectStrategy: checkbox, multi_select. Exact set equality, no partial credit.
type multiSelectStrategy struct{}

func (multiSelectStrategy) Grade(q *models.ExamQuestion, response interface{}, _ bool) Result {
	var raw []interface{}
	switch r := response.(type) {
	case map[string]interface{}:
		v := r["selected"]
		if !models.Truthy(v) {
			v = r["values"]
		}
		raw = asList(v)
	case []interface{}:
		raw = r
	default:
		if models.Truthy(r) {
			raw = []interface{}{r}
		}
	}

	selected := toSet(toStringSlice(raw))
	normalized := map[string]interface{}{"selected": sortedKeys(selected)}

	correct := toSet(toStringSlice(q.CorrectAnswerList()))
	if len(correct) == 0 {
		// No key means nothing to compare against, even in automatic mode.
		return Result{Normalized: normalized}
	}
	return award(q, setEqual(selected, correct), normalized)
}

// shortAnswerStrategy compares trimmed, case-folded text against string keys.
type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Grade(q *models.ExamQuestion, response interface{}, autoPass bool) Result {
	text := strings.TrimSpace(textOf(response))
	normalized := map[string]interface{}{"text": text}

	var expected []string
	for _, answer := range q.CorrectAnswerList() {
		if s, ok := answer.(string); ok {
			expected = append(expected, strings.ToLower(strings.TrimSpace(s)))
		}
	}

	if len(expected) > 0 && text != "" {
		lowered := strings.ToLower(text)
		for _, e := range expected {
			if lowered == e {
				return award(q, true, normalized)
			}
		}
		return award(q, false, normalized)
	}

	if autoPass {
		return award(q, true, normalized)
	}
	return Result{Normalized: normalized}
}

// freeTextStrategy: essay, long_answer. Never judged automatically.
type freeTextStrategy struct{}

func (freeTextStrategy) Grade(q *models.ExamQuestion, response interface{}, autoPass bool) Result {
	normalized := map[string]interface{}{"text": textOf(response)}
	if autoPass {
		return award(q, true, normalized)
	}
	return Result{Normalized: normalized}
}

// --- helpers ---

func award(q *models.ExamQuestion, correct bool, normalized interface{}) Result {
	res := Result{IsCorrect: &correct, Normalized: normalized}
	if correct {
		res.PointsAwarded = q.Points
	}
	return res
}

func textOf(response interface{}) string {
	switch r := response.(type) {
	case string:
		return r
	case map[string]interface{}:
		if s, ok := r["text"].(string); ok {
			return s
		}
	}
	return ""
}

func asList(v interface{}) []interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return val
	default:
		return []interface{}{val}
	}
}

// toStringSlice drops nils and renders scalars the way they were typed by the author
// (1 -> "1", true -> "True") so keys and responses compare on the same footing.
func toStringSlice(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, stringify(item))
	}
	return out
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// looseEqual compares decoded JSON scalars by value; composite values never match an option.
func looseEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}
