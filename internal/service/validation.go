package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
)

// validateID rejects identifiers that are not UUIDs.
func validateID(id, what string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validationf("invalid %s id", what)
	}
	return nil
}

// validateLength checks the rune count of an already-trimmed value.
func validateLength(field, value string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(value)
	if n < minLen || n > maxLen {
		return apperr.Validationf("%s must be between %d and %d characters", field, minLen, maxLen)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("invalid email address")
	}
	return email, nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
