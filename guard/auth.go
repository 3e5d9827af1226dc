package guard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/credential"
	"github.com/jmcleod/fleetguard/identity"
	"github.com/jmcleod/fleetguard/ratelimit"
)

// changeNotifier is implemented by providers that announce identity
// changes themselves, such as identity.Local.
type changeNotifier interface {
	OnChange(identity.ChangeFunc)
}

// AuthFlow puts input sanitization, validation and the auth rate limiter in
// front of an identity provider.
type AuthFlow struct {
	guard    *Guard
	provider identity.Provider
	policy   credential.Policy
	logger   *slog.Logger
	// notify is set when the provider cannot tell the monitor about
	// identity changes on its own.
	notify bool
}

// NewAuthFlow creates a flow that guards provider with g's auth limiter
// and password policy.
func NewAuthFlow(g *Guard, provider identity.Provider) *AuthFlow {
	f := &AuthFlow{
		guard:    g,
		provider: provider,
		policy:   g.cfg.Password,
		logger:   g.logger.With("component", "auth_flow"),
	}
	if n, ok := provider.(changeNotifier); ok {
		n.OnChange(func(identity.Identity, bool) { g.IdentityChanged() })
	} else {
		f.notify = true
	}
	return f
}

// SecureLogin signs a user in. The limiter is consulted before any input
// validation, and a successful login forgives earlier failed attempts.
func (f *AuthFlow) SecureLogin(ctx context.Context, email, password string) (identity.Identity, error) {
	email = credential.NormalizeEmail(email)

	if !f.guard.auth.IsAllowed(email) {
		retry := f.guard.auth.RetryAfter(email)
		f.guard.ReportSecurityEvent(ctx, audit.EventLoginRateLimited, map[string]any{
			"email":               email,
			"retry_after_seconds": ratelimit.CeilSeconds(retry),
		})
		return identity.Identity{}, &RateLimitError{RetryAfter: retry}
	}

	if err := f.validateLogin(email, password); err != nil {
		f.reportValidation(ctx, "login", err)
		return identity.Identity{}, err
	}

	id, err := f.provider.Login(ctx, email, password)
	if err != nil {
		f.logger.Warn("login failed", "email", email, "error", err)
		f.guard.ReportSecurityEvent(ctx, audit.EventLoginFailure, map[string]any{
			"email":  email,
			"reason": failureReason(err),
		})
		return identity.Identity{}, &UpstreamAuthError{Op: "login", Err: err}
	}

	f.guard.auth.Reset(email)
	f.identityChanged()
	f.guard.ReportSecurityEvent(ctx, audit.EventLoginSuccess, map[string]any{"email": email})
	return id, nil
}

func (f *AuthFlow) validateLogin(email, password string) error {
	if email == "" {
		return &ValidationError{Field: "email", Reason: credential.ErrEmailRequired.Error()}
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: credential.ErrPasswordRequired.Error()}
	}
	if err := credential.ValidateEmail(email); err != nil {
		return &ValidationError{Field: "email", Reason: err.Error()}
	}
	if err := f.policy.ValidateLoginPassword(password); err != nil {
		return &ValidationError{Field: "password", Reason: err.Error()}
	}
	return nil
}

// SecureRegister creates an account after checking the name bounds, the
// email syntax and the full password policy.
func (f *AuthFlow) SecureRegister(ctx context.Context, name, email, password string) (identity.Identity, error) {
	name = credential.SanitizeText(name)
	email = credential.NormalizeEmail(email)

	if !f.guard.auth.IsAllowed(email) {
		retry := f.guard.auth.RetryAfter(email)
		f.guard.ReportSecurityEvent(ctx, audit.EventRegisterRateLimited, map[string]any{
			"email":               email,
			"retry_after_seconds": ratelimit.CeilSeconds(retry),
		})
		return identity.Identity{}, &RateLimitError{RetryAfter: retry}
	}

	if err := f.validateRegister(name, email, password); err != nil {
		f.reportValidation(ctx, "register", err)
		return identity.Identity{}, err
	}

	id, err := f.provider.Register(ctx, name, email, password)
	if err != nil {
		f.logger.Warn("registration failed", "email", email, "error", err)
		f.guard.ReportSecurityEvent(ctx, audit.EventRegisterFailure, map[string]any{
			"email":  email,
			"reason": failureReason(err),
		})
		return identity.Identity{}, &UpstreamAuthError{Op: "register", Err: err}
	}

	f.guard.auth.Reset(email)
	f.identityChanged()
	f.guard.ReportSecurityEvent(ctx, audit.EventRegister, map[string]any{"email": email})
	return id, nil
}

func (f *AuthFlow) validateRegister(name, email, password string) error {
	if err := credential.ValidateName(name); err != nil {
		return &ValidationError{Field: "name", Reason: err.Error()}
	}
	if err := credential.ValidateEmail(email); err != nil {
		return &ValidationError{Field: "email", Reason: err.Error()}
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: credential.ErrPasswordRequired.Error()}
	}
	if res := f.policy.ValidatePasswordStrength(password); !res.Valid {
		return &WeakPasswordError{Violations: res.Errors}
	}
	return nil
}

// Authenticated reports whether the provider has a signed-in identity.
func (f *AuthFlow) Authenticated() bool {
	_, ok := f.provider.CurrentIdentity()
	return ok
}

// Logout signs the current identity out.
func (f *AuthFlow) Logout(ctx context.Context) error {
	prev, _ := f.provider.CurrentIdentity()
	if err := f.provider.Logout(ctx); err != nil {
		f.logger.Warn("logout failed", "error", err)
		return &UpstreamAuthError{Op: "logout", Err: err}
	}
	f.identityChanged()
	details := map[string]any{}
	if prev != "" {
		details["identity_id"] = prev
	}
	f.guard.ReportSecurityEvent(ctx, audit.EventLogout, details)
	return nil
}

func (f *AuthFlow) identityChanged() {
	if f.notify {
		f.guard.IdentityChanged()
	}
}

func (f *AuthFlow) reportValidation(ctx context.Context, op string, err error) {
	details := map[string]any{"operation": op}
	var ve *ValidationError
	var wp *WeakPasswordError
	switch {
	case errors.As(err, &ve):
		details["field"] = ve.Field
		details["reason"] = ve.Reason
	case errors.As(err, &wp):
		details["field"] = "password"
		details["violations"] = len(wp.Violations)
	}
	f.guard.ReportSecurityEvent(ctx, audit.EventValidationFailure, details)
}

// failureReason classifies a provider error for audit records without
// copying its text.
func failureReason(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrAccountExists):
		return "account_exists"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "provider_error"
	}
}
