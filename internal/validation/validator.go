// Package validation checks configuration structs with validator/v10 and
// reports failures as CONFIGURATION errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
)

// Validator wraps go-playground/validator.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the harvester's custom tags:
//
//	target  a harvestable "<catalog>-<kind>" pair
//	mode    update or force
func New() *Validator {
	v := validator.New()

	// Report fields by their flag name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("flag"), ",")
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("target", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseTarget(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("mode", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseMode(fl.Field().String())
		return err == nil
	})

	return &Validator{v: v}
}

// Validate validates s. All field problems are reported together, sorted by
// field name.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return herrors.Internal("validate configuration", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		msgs = append(msgs, e.Field()+" "+friendlyMessage(e))
	}
	slices.Sort(msgs)
	return herrors.Configuration("invalid configuration: " + strings.Join(msgs, "; "))
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gtefield":
		return "must not be before " + e.Param()
	case "target":
		return fmt.Sprintf("%q is not a supported target", e.Value())
	case "mode":
		return "must be update or force"
	default:
		return "is invalid"
	}
}
