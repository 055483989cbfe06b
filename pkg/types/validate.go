package types

import (
	"github.com/go-playground/validator/v10"
)

// validate is shared by every type in this package that carries struct tags.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("backend", validateBackend)
}

func validateBackend(fl validator.FieldLevel) bool {
	return Backend(fl.Field().String()).Valid()
}

// Validate checks generation parameters and the backend name.
func (c LoadConfig) Validate() error { return validate.Struct(c) }

// Validate checks a catalog entry.
func (r RemoteModel) Validate() error { return validate.Struct(r) }

// ValidateStruct exposes the package validator to other packages so custom
// validations registered here apply everywhere.
func ValidateStruct(v any) error { return validate.Struct(v) }
