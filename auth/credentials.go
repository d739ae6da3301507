package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jmcleod/liftlog/internal/util"
	"github.com/jmcleod/liftlog/internal/uuid"
	"github.com/jmcleod/liftlog/storage"
)

// CredentialStore creates users and verifies their passwords.
type CredentialStore struct {
	users  storage.UserStore
	hasher *PasswordHasher
	now    func() time.Time

	// dummyHash is verified against when the email is unknown.
	dummyHash string
}

// NewCredentialStore returns a CredentialStore backed by users.
func NewCredentialStore(users storage.UserStore, opts ...Option) (*CredentialStore, error) {
	o := applyOptions(opts)
	hasher, err := NewPasswordHasher(o.passwordParams)
	if err != nil {
		return nil, err
	}
	pw, err := util.RandomToken(saltBytes)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(pw)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{users: users, hasher: hasher, now: o.now, dummyHash: dummy}, nil
}

// CreateUser hashes password and persists a new user under the normalized
// email. A taken email yields ErrDuplicateEmail; uniqueness is enforced by
// the repository rather than a prior lookup.
func (c *CredentialStore) CreateUser(ctx context.Context, email, password string) (*storage.User, error) {
	u, err := c.NewUser(email, password)
	if err != nil {
		return nil, err
	}
	if err := c.users.CreateUser(ctx, u); err != nil {
		return nil, userError(err)
	}
	return u, nil
}

// NewUser builds an unsaved user with a freshly hashed password. Hashing is
// slow, so callers persisting the user inside a transaction call this first.
func (c *CredentialStore) NewUser(email, password string) (*storage.User, error) {
	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	return &storage.User{
		UUID:         uuid.New(),
		Email:        util.NormalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func userError(err error) error {
	if errors.Is(err, storage.ErrDuplicate) {
		return ErrDuplicateEmail
	}
	return dbError("creating user", err)
}

// VerifyCredentials returns the user owning email if password matches.
// Unknown email and wrong password both return ErrInvalidCredentials after
// the same amount of hashing work.
func (c *CredentialStore) VerifyCredentials(ctx context.Context, email, password string) (*storage.User, error) {
	u, err := c.users.UserByEmail(ctx, util.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, dbError("looking up user", err)
		}
		_, _ = c.hasher.Verify(password, c.dummyHash)
		return nil, ErrInvalidCredentials
	}

	ok, err := c.hasher.Verify(password, u.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// User returns the user with the given id.
func (c *CredentialStore) User(ctx context.Context, id int64) (*storage.User, error) {
	u, err := c.users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError("looking up user", err)
	}
	return u, nil
}
