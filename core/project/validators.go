package project

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/psms/core"
)

var (
	deadlineTag  = "deadline"
	deadlineText = "deadline must be a date (YYYY-MM-DD) or an RFC3339 timestamp"

	statusTag  = "projectstatus"
	statusText = "status must be one of: pending, approved, rejected, completed, cancelled"

	deadlineLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}
)

// InitValidators registers the project validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(deadlineTag, deadlineValidation)
	core.RegisterCustomTranslation(validate, translator, deadlineTag, deadlineText)

	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

// ParseDeadline parses a date (YYYY-MM-DD) or an RFC3339 timestamp to UTC.
func ParseDeadline(s string) (time.Time, bool) {
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func IsValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func deadlineValidation(fl validator.FieldLevel) bool {
	_, ok := ParseDeadline(fl.Field().String())
	return ok
}

func statusValidation(fl validator.FieldLevel) bool {
	return IsValidStatus(fl.Field().String())
}
