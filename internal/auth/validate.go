package auth

import (
	"strings"

	"github.com/pavelanni/quizclient/internal/i18n"
	"github.com/pavelanni/quizclient/internal/model"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateRegistration checks a registration form.
func ValidateRegistration(tr *i18n.Translator, reg model.Registration) error {
	if strings.TrimSpace(reg.Username) == "" {
		return &ValidationError{Field: "username", Message: tr.T("UsernameRequired")}
	}
	return ValidateNewPassword(tr, reg.Password, reg.ConfirmPassword)
}

// ValidateNewPassword checks that a new password is long enough and was typed
// the same way twice.
func ValidateNewPassword(tr *i18n.Translator, password, confirm string) error {
	if password != confirm {
		return &ValidationError{Field: "confirm_password", Message: tr.T("PasswordsMismatch")}
	}
	return validateLength(tr, password)
}

func validateLength(tr *i18n.Translator, password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Message: tr.Td("PasswordTooShort", map[string]any{"Min": MinPasswordLength}),
		}
	}
	return nil
}
