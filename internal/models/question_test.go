package models

import (
	"encoding/json"
	"reflect"
	"testing"

	"gorm.io/datatypes"
)

func TestCorrectAnswerList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []interface{}
	}{
		{"empty", "", nil},
		{"null", "null", nil},
		{"invalid", "[B", nil},
		{"empty string", `""`, nil},
		{"array", `["A","C"]`, []interface{}{"A", "C"}},
		{"single string", `"B"`, []interface{}{"B"}},
		{"single number", `2`, []interface{}{float64(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &ExamQuestion{CorrectAnswers: datatypes.JSON(tt.raw)}
			if got := q.CorrectAnswerList(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CorrectAnswerList() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestAnswerKeyJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "[]"},
		{"null", "[]"},
		{` ["A"] `, `["A"]`},
		{`"B"`, `["B"]`},
		{`3`, `[3]`},
		{`{"x":1}`, `[{"x":1}]`},
	}

	for _, tt := range tests {
		if got := AnswerKeyJSON(json.RawMessage(tt.raw)); string(got) != tt.want {
			t.Errorf("AnswerKeyJSON(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
