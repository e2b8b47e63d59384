package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Draft is the payload for recording a new activity.
type Draft struct {
	Type              ActivityType `json:"type" validate:"required,activity_type"`
	Duration          float64      `json:"duration" validate:"gte=0"`
	CaloriesBurned    float64      `json:"caloriesBurned" validate:"gte=0"`
	StartTime         *Timestamp   `json:"startTime,omitempty"`
	AdditionalMetrics Metrics      `json:"additionalMetrics,omitempty" validate:"omitempty,metric_values"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("activity_type", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(ActivityType)
		return ok && t.Valid()
	})
	_ = v.RegisterValidation("metric_values", func(fl validator.FieldLevel) bool {
		m, ok := fl.Field().Interface().(Metrics)
		return ok && m.Validate() == nil
	})
	return v
}

// Validate checks the draft before it is sent. Failures are KindValidation errors.
func (d Draft) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &Error{Kind: KindValidation, Op: "validate draft", Err: err}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return &Error{Kind: KindValidation, Op: "validate draft", Detail: strings.Join(msgs, "; ")}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "activity_type":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), joinTypes())
	case "metric_values":
		return fmt.Sprintf("%s values must be numbers or strings", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func joinTypes() string {
	names := make([]string, len(activityTypes))
	for i, t := range activityTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
