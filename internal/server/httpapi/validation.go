package httpapi

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)

// validUsername backs the "username" binding tag.
func validUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

// registerValidators adds the custom tags to gin's validator engine.
func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("username", validUsername)
}

type registerRequest struct {
	GivenName  string `json:"given_name" binding:"required,max=100"`
	FamilyName string `json:"family_name" binding:"max=100"`
	Username   string `json:"username" binding:"required,username"`
	Email      string `json:"email" binding:"required,email,max=254"`
	Password   string `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}
