package auth

import (
	"crypto/subtle"

	"github.com/jmcleod/liftlog/internal/util"
	"github.com/jmcleod/liftlog/internal/uuid"
)

const csrfTokenBytes = 32

// NewSessionID returns a random v4 UUID used as the pre-auth session id and,
// after promotion, as the session token.
func NewSessionID() string {
	return uuid.New()
}

// NewCSRFToken returns 32 random bytes in standard base64.
func NewCSRFToken() (string, error) {
	return util.RandomToken(csrfTokenBytes)
}

// CheckCSRF compares token against the token bound to an authenticated
// session in constant time.
func CheckCSRF(expected, token string) error {
	if token == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return ErrInvalidCSRF
	}
	return nil
}
