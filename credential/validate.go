package credential

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MinNameLength and MaxNameLength bound display names, in runes.
	MinNameLength = 2
	MaxNameLength = 50
)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrInvalidEmail     = errors.New("please enter a valid email address")
	ErrPasswordRequired = errors.New("password is required")
	ErrNameRequired     = errors.New("name is required")
)

// ValidateEmail performs a basic syntax check: a non-empty local part, a
// single '@', and a dotted domain without empty labels. It expects a
// sanitized address.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return ErrInvalidEmail
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ErrInvalidEmail
	}
	if !strings.Contains(domain, ".") {
		return ErrInvalidEmail
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return ErrInvalidEmail
		}
	}
	return nil
}

// ValidateName checks that a sanitized display name is within
// [MinNameLength, MaxNameLength] runes.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	n := utf8.RuneCountInString(name)
	if n < MinNameLength || n > MaxNameLength {
		return fmt.Errorf("name must be between %d and %d characters", MinNameLength, MaxNameLength)
	}
	return nil
}
