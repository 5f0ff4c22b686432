package validator

import (
	"errors"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// maxEmojiRunes bounds the "emoji" tag. Sequences with skin tone modifiers
// and zero width joiners stay well below it.
const maxEmojiRunes = 16

// Validator validates request bodies and query parameters.
type Validator struct {
	cli *validator.Validate
}

// ValidationError reports one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v *Validator) formatError(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Message: err.Error()}}
	}
	errs := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, ValidationError{
			Field:   fe.Field(),
			Message: message(fe),
		})
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "emoji":
		return "must be a single emoji"
	}
	return fe.Error()
}

// ValidateStruct validates s and returns one error per failed field.
func (v *Validator) ValidateStruct(s any) []ValidationError {
	if err := v.cli.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Validate checks value against tag.
func (v *Validator) Validate(value any, tag string) []ValidationError {
	if err := v.cli.Var(value, tag); err != nil {
		return v.formatError(err)
	}
	return nil
}

// New returns a Validator that reports fields by their JSON names and knows
// the "emoji" tag.
func New() *Validator {
	cli := validator.New(validator.WithRequiredStructEnabled())
	cli.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = cli.RegisterValidation("emoji", func(fl validator.FieldLevel) bool {
		return isEmoji(fl.Field().String())
	})
	return &Validator{cli: cli}
}

// isEmoji accepts a short sequence without letters, digits or spaces.
func isEmoji(s string) bool {
	if s == "" || utf8.RuneCountInString(s) > maxEmojiRunes {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
