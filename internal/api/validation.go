package api

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"tesla-telemetry-backend/internal/parse"
)

var registerOnce sync.Once

// registerValidators adds the "identifier" tag: a local UUID, Fleet API id or VIN.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			_, err := parse.ParseIdentifier(fl.Field().String())
			return err == nil
		})
	})
}
