package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// validationErrorMessage returns a user-friendly validation error message.
func validationErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, ve := range verrs {
			if ve.Tag() != "required" {
				continue
			}
			switch ve.Field() {
			case "Username":
				return "Username is required"
			case "Password":
				return "Password is required"
			}
		}
	}
	return "Invalid request"
}
