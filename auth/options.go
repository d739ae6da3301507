package auth

import (
	"time"

	"github.com/jmcleod/liftlog/internal/util"
)

const (
	DefaultTempSessionTTL = 5 * time.Minute
	DefaultSessionTTL     = 24 * time.Hour
)

// PasswordParams are the argon2id cost parameters.
type PasswordParams = util.Argon2idParams

// DefaultPasswordParams returns the production argon2id parameters.
func DefaultPasswordParams() PasswordParams {
	return util.DefaultArgon2idParams()
}

type options struct {
	now            func() time.Time
	tempSessionTTL time.Duration
	sessionTTL     time.Duration
	passwordParams PasswordParams
}

func defaultOptions() options {
	return options{
		now:            time.Now,
		tempSessionTTL: DefaultTempSessionTTL,
		sessionTTL:     DefaultSessionTTL,
		passwordParams: DefaultPasswordParams(),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures the managers in this package.
type Option func(*options)

// WithClock replaces time.Now. Tests use it to move past TTLs.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTempSessionTTL sets the lifetime of pre-authentication sessions.
func WithTempSessionTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tempSessionTTL = d
		}
	}
}

// WithSessionTTL sets the lifetime of authenticated sessions.
func WithSessionTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sessionTTL = d
		}
	}
}

// WithPasswordParams overrides the argon2id cost parameters.
func WithPasswordParams(p PasswordParams) Option {
	return func(o *options) {
		o.passwordParams = p
	}
}
