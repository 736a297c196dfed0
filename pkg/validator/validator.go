package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ErrorResponse struct {
	FailedField string
	Tag         string
	Value       string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("Field '%s' failed on tag '%s'", e.FailedField, e.Tag)
}

var (
	validate      = validator.New()
	moduleKeyExpr = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

func init() {
	// Register custom validation for UUID
	validate.RegisterValidation("uuid_required", func(fl validator.FieldLevel) bool {
		if id, ok := fl.Field().Interface().(uuid.UUID); ok {
			return id != uuid.Nil
		}
		return false
	})
	// Module keys are lowercase identifiers, e.g. "driver" or "notice_board"
	validate.RegisterValidation("module_key", func(fl validator.FieldLevel) bool {
		return moduleKeyExpr.MatchString(fl.Field().String())
	})
}

func ValidateStruct(data interface{}) []*ErrorResponse {
	var errors []*ErrorResponse
	err := validate.Struct(data)
	if err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []*ErrorResponse{{FailedField: "", Tag: err.Error()}}
		}
		for _, err := range verrs {
			var element ErrorResponse
			element.FailedField = err.StructNamespace()
			element.Tag = err.Tag()
			element.Value = err.Param()
			errors = append(errors, &element)
		}
	}
	return errors
}

// First returns the first validation failure, or nil
func First(data interface{}) error {
	if errs := ValidateStruct(data); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
