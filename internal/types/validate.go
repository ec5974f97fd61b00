package types

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// NewValidator returns a validator that understands decimal amounts and the
// marketplace's closed enums. Field names in errors use the JSON tag.
func NewValidator() *validator.Validate {
	v := validator.New()

	// Amounts are validated as floats so the stock gt/gte tags apply.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("job_category", func(fl validator.FieldLevel) bool {
		return slices.Contains(Categories, fl.Field().String())
	})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return v
}

// FirstValidationError renders the first failing field of a validator error as
// "field - tag", or a generic message for any other error.
func FirstValidationError(err error) (field, message string) {
	if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return ve.Field(), fmt.Sprintf("failed %q check", ve.Tag())
	}
	return "(request)", "invalid request"
}
