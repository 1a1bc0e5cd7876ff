package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
)

// Validator wraps go-playground/validator with the exam rules registered.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field failure
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

var questionTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,49}$`)

// New creates a validator with business rules registered
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so messages line up with request bodies
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerBusinessRules()
	return v
}

// Validate returns nil or ValidationErrors
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return v.toValidationErrors(err)
	}
	return nil
}

// ValidateVar checks a single value against a tag such as "attempt_status".
func (v *Validator) ValidateVar(field string, value interface{}, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		errs := v.toValidationErrors(err)
		for i := range errs {
			errs[i].Field = field
		}
		return errs
	}
	return nil
}

func (v *Validator) registerBusinessRules() {
	// Duration in minutes: positive, at most one day
	v.validate.RegisterValidation("exam_duration", func(fl validator.FieldLevel) bool {
		d := fl.Field().Int()
		return d > 0 && d <= 24*60
	})

	// Pass mark percentage (0-100)
	v.validate.RegisterValidation("pass_mark", func(fl validator.FieldLevel) bool {
		var mark float64
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			mark = fl.Field().Float()
		default:
			mark = float64(fl.Field().Int())
		}
		return mark >= 0 && mark <= 100
	})

	// Unknown types are storable (they grade as indeterminate) but must look like an identifier
	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return questionTypePattern.MatchString(fl.Field().String())
	})

	v.validate.RegisterValidation("attempt_status", func(fl validator.FieldLevel) bool {
		return models.AttemptStatus(fl.Field().String()).IsValid()
	})
}

func (v *Validator) toValidationErrors(err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "invalid"}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: v.getErrorMessage(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

// getErrorMessage returns user-friendly error messages
func (v *Validator) getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "exam_duration":
		return "must be between 1 and 1440 minutes"
	case "pass_mark":
		return "must be between 0 and 100"
	case "question_type":
		return "must be a valid question type"
	case "attempt_status":
		return "must be one of in-progress, submitted, graded"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}
