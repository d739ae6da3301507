package util

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idID = "argon2id"

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

func (p Argon2idParams) Validate() error {
	switch {
	case p.Time < 1:
		return errors.New("argon2id time must be >= 1")
	case p.MemoryKiB < 8*uint32(p.Parallelism):
		return errors.New("argon2id memory must be >= 8*parallelism KiB")
	case p.Parallelism < 1:
		return errors.New("argon2id parallelism must be >= 1")
	case p.KeyLen < 16:
		return errors.New("argon2id key length must be >= 16 bytes")
	}
	return nil
}

func DeriveArgon2idKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	pw := []byte(Normalize(passphrase))
	defer WipeBytes(pw)
	key := argon2.IDKey(pw, salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
	return key, nil
}

func CompareArgon2idKey(passphrase string, salt []byte, params Argon2idParams, expectedKey []byte) (bool, error) {
	key, err := DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		return false, err
	}
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}

// EncodeArgon2idPHC formats a derived key in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
//
// Salt and hash use standard base64.
func EncodeArgon2idPHC(params Argon2idParams, salt, key []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idID, argon2.Version,
		params.MemoryKiB, params.Time, params.Parallelism,
		B64Encode(salt), B64Encode(key))
}

// ParseArgon2idPHC is the inverse of EncodeArgon2idPHC. KeyLen is taken from
// the decoded hash length.
func ParseArgon2idPHC(encoded string) (params Argon2idParams, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return params, nil, nil, errors.New("invalid PHC format")
	}
	if parts[1] != argon2idID {
		return params, nil, nil, fmt.Errorf("unsupported algorithm %q", parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return params, nil, nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}

	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return params, nil, nil, errors.New("invalid parameter entry")
		}
		n, perr := strconv.ParseUint(v, 10, 32)
		if perr != nil {
			return params, nil, nil, fmt.Errorf("invalid %s parameter: %w", k, perr)
		}
		switch k {
		case "m":
			params.MemoryKiB = uint32(n)
		case "t":
			params.Time = uint32(n)
		case "p":
			if n > 255 {
				return params, nil, nil, errors.New("invalid p parameter")
			}
			params.Parallelism = uint8(n)
		default:
			return params, nil, nil, fmt.Errorf("unsupported parameter %q", k)
		}
	}

	if salt, err = B64Decode(parts[4]); err != nil {
		return params, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	if key, err = B64Decode(parts[5]); err != nil {
		return params, nil, nil, fmt.Errorf("decoding hash: %w", err)
	}
	params.KeyLen = uint32(len(key))
	if err := params.Validate(); err != nil {
		return params, nil, nil, err
	}
	return params, salt, key, nil
}
