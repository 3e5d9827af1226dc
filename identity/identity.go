// Package identity defines the identity provider consumed by the guard and
// a local implementation backed by a storage.Repository.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does
	// not match a known account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when registering an email that is
	// already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrNotAuthenticated is returned by operations that need a signed-in
	// identity.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Identity is the authenticated principal.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider authenticates users. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Current returns the signed-in identity, if any.
	Current() (Identity, bool)
	// CurrentIdentity returns the signed-in identity's ID. It satisfies
	// session.IdentitySource.
	CurrentIdentity() (string, bool)
	Login(ctx context.Context, email, password string) (Identity, error)
	Register(ctx context.Context, name, email, password string) (Identity, error)
	Logout(ctx context.Context) error
}

// ChangeFunc is invoked after the signed-in identity changes. ok is false
// after a logout.
type ChangeFunc func(id Identity, ok bool)
