package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidatePassword enforces the baseline password policy.
func ValidatePassword(password, username string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be <= %d characters", ErrInvalidInput, maxPasswordLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("%w: password must include at least one letter and one digit", ErrInvalidInput)
	}

	lowered := strings.ToLower(password)
	if username != "" && lowered == strings.ToLower(username) {
		return fmt.Errorf("%w: password must not equal the username", ErrInvalidInput)
	}
	for _, banned := range []string{"password", "qwerty", "123456", "letmein", "admin"} {
		if lowered == banned {
			return fmt.Errorf("%w: password is too common", ErrInvalidInput)
		}
	}

	return nil
}

// NormalizeUsername canonicalizes a username for storage and comparison.
// Usernames are case-insensitive throughout the service.
func NormalizeUsername(username string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(username))
	if trimmed == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(trimmed) < 3 || len(trimmed) > 50 {
		return "", fmt.Errorf("%w: username must be 3-50 characters", ErrInvalidInput)
	}
	if !usernamePattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: username may contain letters, digits, dot, underscore, and hyphen", ErrInvalidInput)
	}
	return trimmed, nil
}
