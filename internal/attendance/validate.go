package attendance

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators: gin の validator に attendance_status タグを登録する
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("attendance: gin validator engine is not go-playground/validator")
	}
	var err error
	registerOnce.Do(func() {
		err = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
			return Status(fl.Field().String()).Valid()
		})
	})
	return err
}
