package main

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators wires custom rules into gin's binding validator.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("eventcategory", func(fl validator.FieldLevel) bool {
		return IsValidCategory(fl.Field().String())
	})
}
