package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Rule is a custom validation tag checked against a string field
type Rule struct {
	Tag   string
	Valid func(value string) bool
}

// ValidationError lists readable messages for every failed field
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, "; ")
}

// Validator validates structs with go-playground tags plus caller supplied rules
type Validator struct {
	validate *validator.Validate
	custom   map[string]bool
}

// NewValidator creates a validator with the given custom rules registered
func NewValidator(rules ...Rule) (*Validator, error) {
	v := &Validator{
		validate: validator.New(),
		custom:   make(map[string]bool, len(rules)),
	}
	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})

	for _, r := range rules {
		if r.Valid == nil {
			return nil, fmt.Errorf("validation rule %q has no check", r.Tag)
		}
		valid := r.Valid
		if err := v.validate.RegisterValidation(r.Tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		}); err != nil {
			return nil, fmt.Errorf("register validation rule %q: %w", r.Tag, err)
		}
		v.custom[r.Tag] = true
	}

	return v, nil
}

// Struct validates s. Field failures are returned as *ValidationError.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &ValidationError{Fields: make([]string, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, v.message(fe))
	}
	return out
}

func (v *Validator) message(fe validator.FieldError) string {
	field := fe.Field()
	switch {
	case fe.Tag() == "required":
		return field + " is required"
	case fe.Tag() == "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case v.custom[fe.Tag()]:
		return fmt.Sprintf("%s has unknown %s %q", field, fe.Tag(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
