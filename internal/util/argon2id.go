// Package util holds small hashing and byte helpers shared by the identity
// provider.
package util

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

// Argon2idParams are the cost parameters stored next to each password hash
// so they can be raised later without invalidating old hashes.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// Validate rejects parameter sets argon2 would accept but that are
// useless for password storage.
func (p Argon2idParams) Validate() error {
	switch {
	case p.Time == 0:
		return errors.New("argon2id time must be positive")
	case p.MemoryKiB < 8*uint32(p.Parallelism):
		return fmt.Errorf("argon2id memory must be at least %d KiB", 8*uint32(p.Parallelism))
	case p.Parallelism == 0:
		return errors.New("argon2id parallelism must be positive")
	case p.KeyLen < 16:
		return errors.New("argon2id key length must be at least 16 bytes")
	}
	return nil
}

// DeriveArgon2idKey hashes password with salt. The password is copied into
// a locked buffer for the duration of the derivation and wiped afterwards;
// the caller's string is left untouched.
func DeriveArgon2idKey(password string, salt []byte, params Argon2idParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	buf := memguard.NewBufferFromBytes([]byte(password))
	defer buf.Destroy()
	return argon2.IDKey(buf.Bytes(), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}

func CompareArgon2idKey(password string, salt []byte, params Argon2idParams, expectedKey []byte) (bool, error) {
	key, err := DeriveArgon2idKey(password, salt, params)
	if err != nil {
		return false, err
	}
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}
