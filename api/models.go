package api

import (
	"time"

	"github.com/jmcleod/fleetguard/audit"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// IdentityResponse is returned after a successful login or registration.
type IdentityResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type StatusResponse struct {
	Status        string     `json:"status"`
	Authenticated bool       `json:"authenticated"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

type ActivityRequest struct {
	Kind string `json:"kind"`
}

type EventRequest struct {
	Event   string         `json:"event"`
	Details map[string]any `json:"details,omitempty"`
}

type AuditListResponse struct {
	Events []audit.Record `json:"events"`
	PaginationMeta
}

type PasswordStrengthRequest struct {
	Password string `json:"password"`
}

type PasswordStrengthResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}
