package http

import (
	"errors"
	"fmt"

	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/pkg/utils"
)

// requestRules are the domain code tags accepted in request structs
var requestRules = []utils.Rule{
	{Tag: "department", Valid: parses(entity.ParseDepartment)},
	{Tag: "decision", Valid: parses(entity.ParseDecision)},
	{Tag: "kind", Valid: parses(entity.ParseKind)},
}

func parses[T any](parse func(string) (T, error)) func(string) bool {
	return func(v string) bool {
		_, err := parse(v)
		return err == nil
	}
}

// newRequestValidator panics on a bad rule table; the table is static
func newRequestValidator() *utils.Validator {
	v, err := utils.NewValidator(requestRules...)
	if err != nil {
		panic(fmt.Sprintf("request validator: %v", err))
	}
	return v
}

// validateRequest maps field failures onto entity.ErrValidation
func (h *Handlers) validateRequest(req interface{}) error {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %s", entity.ErrValidation, ve.Error())
	}
	return fmt.Errorf("%w: %v", entity.ErrValidation, err)
}
