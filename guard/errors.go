package guard

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmcleod/fleetguard/identity"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrValidation        = errors.New("validation failed")
	ErrWeakPassword      = errors.New("weak password")
	ErrUpstreamAuth      = errors.New("authentication provider error")
)

// RateLimitError is returned when the auth limiter rejects an attempt.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExceeded }

// ValidationError carries the human-readable reason an input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// WeakPasswordError lists every password rule that was violated, in rule
// order.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("%s: %s", ErrWeakPassword, strings.Join(e.Violations, "; "))
}

func (e *WeakPasswordError) Is(target error) bool { return target == ErrWeakPassword }

// UpstreamAuthError wraps a failure returned by the identity provider.
type UpstreamAuthError struct {
	Op  string
	Err error
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUpstreamAuth, e.Op, e.Err)
}

func (e *UpstreamAuthError) Is(target error) bool { return target == ErrUpstreamAuth }

func (e *UpstreamAuthError) Unwrap() error { return e.Err }

const (
	msgInvalidCredentials = "invalid email or password"
	msgAccountExists      = "an account with this email already exists"
	msgUpstreamGeneric    = "authentication failed, please try again later"
	msgNotAuthenticated   = "please sign in first"
	msgGeneric            = "something went wrong, please try again"
)

// UserMessage translates err into a short message safe to show an end
// user. Provider errors never leak through verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rateLimitMessage(rl.RetryAfter)
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var wp *WeakPasswordError
	if errors.As(err, &wp) {
		return strings.Join(wp.Violations, "; ")
	}
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return msgInvalidCredentials
	case errors.Is(err, identity.ErrAccountExists):
		return msgAccountExists
	case errors.Is(err, identity.ErrNotAuthenticated):
		return msgNotAuthenticated
	case errors.Is(err, ErrUpstreamAuth):
		return msgUpstreamGeneric
	default:
		return msgGeneric
	}
}

func rateLimitMessage(retryAfter time.Duration) string {
	minutes := int(math.Ceil(retryAfter.Minutes()))
	if minutes <= 1 {
		return "too many attempts, please wait 1 minute"
	}
	return fmt.Sprintf("too many attempts, please wait %d minutes", minutes)
}
