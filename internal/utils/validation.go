package contextutils

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IsValidEmail checks if an email address is valid using go-playground/validator
func IsValidEmail(email string) bool {
	return validate.Var(email, "email") == nil
}

// IsDurableURL reports whether raw is an absolute http(s) URL. Local references
// such as blob:, data: or file: URLs are rejected.
func IsDurableURL(raw string) bool {
	if validate.Var(raw, "url") != nil {
		return false
	}
	return strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://")
}
