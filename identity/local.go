package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/jmcleod/fleetguard/internal/util"
	"github.com/jmcleod/fleetguard/storage"
)

const (
	accountNamespace  = "__accounts"
	accountRecordType = "ACCOUNT"
	saltSize          = 16
)

// account is the persisted form of a registered user.
type account struct {
	Identity
	Salt         []byte              `json:"salt"`
	PasswordHash []byte              `json:"password_hash"`
	KDFParams    util.Argon2idParams `json:"kdf_params"`
}

// Local is a Provider that keeps accounts in a storage.Repository keyed by
// email. Emails are expected to be normalized by the caller.
type Local struct {
	repo   storage.Repository
	clock  clock.Clock
	logger *slog.Logger
	params util.Argon2idParams

	// dummySalt/dummyHash are compared against on unknown emails so that
	// a miss costs the same as a wrong password.
	dummySalt []byte
	dummyHash []byte

	mu        sync.RWMutex
	current   *Identity
	listeners []ChangeFunc
}

var _ Provider = (*Local)(nil)

// LocalOption configures a Local provider.
type LocalOption func(*Local)

// WithClock sets the time source for account creation timestamps.
func WithClock(c clock.Clock) LocalOption {
	return func(l *Local) {
		l.clock = c
	}
}

// WithLogger sets the provider's logger.
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// WithKDFParams overrides the argon2id cost used for new hashes.
func WithKDFParams(p util.Argon2idParams) LocalOption {
	return func(l *Local) {
		l.params = p
	}
}

// NewLocal creates a provider storing accounts in repo.
func NewLocal(repo storage.Repository, opts ...LocalOption) (*Local, error) {
	l := &Local{
		repo:   repo,
		clock:  clock.New(),
		logger: slog.Default(),
		params: util.DefaultArgon2idParams(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.params.Validate(); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	l.logger = l.logger.With("component", "identity")

	salt, err := util.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	hash, err := util.DeriveArgon2idKey(uuid.NewString(), salt, l.params)
	if err != nil {
		return nil, err
	}
	l.dummySalt, l.dummyHash = salt, hash
	return l, nil
}

// OnChange registers fn to run after every login, registration and
// logout. Listeners run outside the provider's lock.
func (l *Local) OnChange(fn ChangeFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Local) Current() (Identity, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return Identity{}, false
	}
	return *l.current, true
}

func (l *Local) CurrentIdentity() (string, bool) {
	id, ok := l.Current()
	return id.ID, ok
}

// Login verifies password against the stored hash for email and makes the
// account the current identity.
func (l *Local) Login(ctx context.Context, email, password string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	acct, err := l.load(email)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNamespaceNotFound) {
		// Burn the same work as a real comparison.
		_, _ = util.CompareArgon2idKey(password, l.dummySalt, l.params, l.dummyHash)
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, fmt.Errorf("loading account: %w", err)
	}
	ok, err := util.CompareArgon2idKey(password, acct.Salt, acct.KDFParams, acct.PasswordHash)
	if err != nil {
		return Identity{}, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	l.setCurrent(&acct.Identity)
	return acct.Identity, nil
}

// Register creates a new account and signs it in. The write is
// create-only, so two concurrent registrations for one email cannot both
// succeed.
func (l *Local) Register(ctx context.Context, name, email, password string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	salt, err := util.RandomBytes(saltSize)
	if err != nil {
		return Identity{}, err
	}
	hash, err := util.DeriveArgon2idKey(password, salt, l.params)
	if err != nil {
		return Identity{}, fmt.Errorf("hashing password: %w", err)
	}
	acct := account{
		Identity: Identity{
			ID:        uuid.NewString(),
			Name:      name,
			Email:     email,
			CreatedAt: l.clock.Now().UTC(),
		},
		Salt:         salt,
		PasswordHash: hash,
		KDFParams:    l.params,
	}
	rec, err := storage.EncodeJSON(acct, 0)
	if err != nil {
		return Identity{}, err
	}
	if err := l.repo.PutCAS(accountNamespace, accountRecordType, email, 0, rec); err != nil {
		if errors.Is(err, storage.ErrCASFailed) {
			return Identity{}, ErrAccountExists
		}
		return Identity{}, fmt.Errorf("storing account: %w", err)
	}
	l.logger.Info("account registered", "identity_id", acct.ID)
	l.setCurrent(&acct.Identity)
	return acct.Identity, nil
}

// Logout clears the current identity. Logging out while signed out is not
// an error.
func (l *Local) Logout(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.setCurrent(nil)
	return nil
}

func (l *Local) load(email string) (*account, error) {
	rec, err := l.repo.Get(accountNamespace, accountRecordType, email)
	if err != nil {
		return nil, err
	}
	var acct account
	if err := storage.DecodeJSON(rec, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (l *Local) setCurrent(id *Identity) {
	l.mu.Lock()
	if id != nil {
		cp := *id
		l.current = &cp
	} else {
		l.current = nil
	}
	listeners := append([]ChangeFunc(nil), l.listeners...)
	l.mu.Unlock()

	var snapshot Identity
	if id != nil {
		snapshot = *id
	}
	for _, fn := range listeners {
		fn(snapshot, id != nil)
	}
}
