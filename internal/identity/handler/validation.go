package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"fleet-management/backend/internal/identity/service"
)

// PasswordTag is the binding tag that applies service.ValidatePassword to a string field.
const PasswordTag = "password"

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules to gin's validator. Safe to call repeatedly.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation(PasswordTag, func(fl validator.FieldLevel) bool {
			return service.ValidatePassword(fl.Field().String()) == nil
		})
	})
}
