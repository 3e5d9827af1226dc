package credential

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMinPasswordLength      = 8
	DefaultMaxPasswordLength      = 128
	DefaultLoginMinPasswordLength = 6
)

// Policy is the set of password rules. Every threshold is configurable;
// DefaultPolicy supplies the shipped values.
type Policy struct {
	MinLength     int  `mapstructure:"min_length" yaml:"min_length"`
	MaxLength     int  `mapstructure:"max_length" yaml:"max_length"`
	RequireUpper  bool `mapstructure:"require_upper" yaml:"require_upper"`
	RequireLower  bool `mapstructure:"require_lower" yaml:"require_lower"`
	RequireDigit  bool `mapstructure:"require_digit" yaml:"require_digit"`
	RequireSymbol bool `mapstructure:"require_symbol" yaml:"require_symbol"`
	// LoginMinLength is the only strength rule applied at login, so users
	// created under an older, weaker policy can still sign in.
	LoginMinLength int `mapstructure:"login_min_length" yaml:"login_min_length"`
}

// DefaultPolicy returns the default password policy.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      DefaultMinPasswordLength,
		MaxLength:      DefaultMaxPasswordLength,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSymbol:  true,
		LoginMinLength: DefaultLoginMinPasswordLength,
	}
}

// StrengthResult is the outcome of a password-strength check. Errors holds
// one message per violated rule, in rule order.
type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidatePasswordStrength checks password against the default policy.
func ValidatePasswordStrength(password string) StrengthResult {
	return DefaultPolicy().ValidatePasswordStrength(password)
}

// ValidatePasswordStrength evaluates every rule and reports all violations,
// not just the first.
func (p Policy) ValidatePasswordStrength(password string) StrengthResult {
	var errs []string
	length := utf8.RuneCountInString(password)
	if p.MinLength > 0 && length < p.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		errs = append(errs, fmt.Sprintf("password must be at most %d characters long", p.MaxLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		errs = append(errs, "password must contain a number")
	}
	if p.RequireSymbol && !symbol {
		errs = append(errs, "password must contain a special character")
	}
	return StrengthResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateLoginPassword applies the relaxed login rules: non-empty and at
// least LoginMinLength runes.
func (p Policy) ValidateLoginPassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if p.LoginMinLength > 0 && utf8.RuneCountInString(password) < p.LoginMinLength {
		return fmt.Errorf("password must be at least %d characters long", p.LoginMinLength)
	}
	return nil
}

// Validate rejects policies that no password could satisfy.
func (p Policy) Validate() error {
	if p.MinLength < 0 || p.MaxLength < 0 || p.LoginMinLength < 0 {
		return fmt.Errorf("password length thresholds must not be negative")
	}
	if p.MaxLength > 0 && p.MinLength > p.MaxLength {
		return fmt.Errorf("password min length %d exceeds max length %d", p.MinLength, p.MaxLength)
	}
	return nil
}
