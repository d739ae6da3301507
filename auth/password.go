package auth

import (
	"fmt"

	"github.com/jmcleod/liftlog/internal/util"
)

const saltBytes = 16

// PasswordHasher hashes passwords with argon2id and encodes them as PHC
// strings. A PasswordHasher is safe for concurrent use.
type PasswordHasher struct {
	params PasswordParams
}

// NewPasswordHasher validates params and returns a hasher.
func NewPasswordHasher(params PasswordParams) (*PasswordHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("password params: %w", err)
	}
	return &PasswordHasher{params: params}, nil
}

// Hash derives a key from password with a fresh random salt.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt, err := util.RandomBytes(saltBytes)
	if err != nil {
		return "", err
	}
	key, err := util.DeriveArgon2idKey(password, salt, h.params)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(key)
	return util.EncodeArgon2idPHC(h.params, salt, key), nil
}

// Verify reports whether password matches encoded. The parameters embedded
// in encoded are used, so hashes survive parameter changes.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	params, salt, key, err := util.ParseArgon2idPHC(encoded)
	if err != nil {
		return false, err
	}
	defer util.WipeBytes(key)
	return util.CompareArgon2idKey(password, salt, params, key)
}
