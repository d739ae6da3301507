package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jmcleod/liftlog/storage"
)

// SessionManager creates, resolves and removes authenticated sessions.
type SessionManager struct {
	repo storage.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionManager returns a SessionManager backed by repo.
func NewSessionManager(repo storage.Repository, opts ...Option) *SessionManager {
	o := applyOptions(opts)
	return &SessionManager{repo: repo, ttl: o.sessionTTL, now: o.now}
}

// TTL returns the lifetime of new sessions.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// CreateSession promotes the temporary session sessionID: in one
// transaction the temporary record is consumed and a session for userID is
// inserted with token sessionID and the same CSRF token.
func (m *SessionManager) CreateSession(ctx context.Context, userID int64, sessionID, csrfToken string) (*storage.Session, error) {
	s := m.newSession(userID, sessionID, csrfToken)
	err := m.repo.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.ConsumeTempSession(ctx, sessionID, csrfToken, s.CreatedAt); err != nil {
			return err
		}
		return tx.CreateSession(ctx, s)
	})
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, storage.ErrDuplicate), errors.Is(err, storage.ErrNotFound):
		// The pair was already consumed or the user vanished.
		return nil, ErrInvalidSession
	default:
		return nil, dbError("creating session", err)
	}
}

// Register consumes the temporary session, inserts u and promotes the
// session to u in a single transaction. Of several concurrent calls on one
// pair, exactly one succeeds and the others leave no user behind.
func (m *SessionManager) Register(ctx context.Context, u *storage.User, sessionID, csrfToken string) (*storage.Session, error) {
	s := m.newSession(0, sessionID, csrfToken)
	err := m.repo.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.ConsumeTempSession(ctx, sessionID, csrfToken, s.CreatedAt); err != nil {
			return sessionOrDBError(err)
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return userError(err)
		}
		s.UserID = u.ID
		if err := tx.CreateSession(ctx, s); err != nil {
			return sessionOrDBError(err)
		}
		return nil
	})
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, ErrInvalidSession), errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrDatabase):
		return nil, err
	default:
		return nil, dbError("registering user", err)
	}
}

func (m *SessionManager) newSession(userID int64, sessionID, csrfToken string) *storage.Session {
	now := m.now().UTC()
	return &storage.Session{
		UserID:    userID,
		Token:     sessionID,
		CSRFToken: csrfToken,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
}

func sessionOrDBError(err error) error {
	if errors.Is(err, storage.ErrDuplicate) || errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidSession
	}
	return dbError("registering user", err)
}

// Session sweeps expired sessions and returns the live session for token.
func (m *SessionManager) Session(ctx context.Context, token string) (*storage.Session, error) {
	var s *storage.Session
	err := m.repo.Atomic(ctx, func(tx storage.Tx) error {
		var err error
		s, err = m.lookup(ctx, tx, token)
		return err
	})
	if err != nil {
		return nil, m.sessionError("validating session", err)
	}
	return s, nil
}

// ValidateSession returns the id of the user owning token.
func (m *SessionManager) ValidateSession(ctx context.Context, token string) (int64, error) {
	s, err := m.Session(ctx, token)
	if err != nil {
		return 0, err
	}
	return s.UserID, nil
}

// InvalidateSession deletes the session if present. Absent is not an error.
func (m *SessionManager) InvalidateSession(ctx context.Context, token string) error {
	if err := m.repo.DeleteSession(ctx, token); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return dbError("invalidating session", err)
	}
	return nil
}

// DeleteUser resolves the owner of token and deletes that user together
// with every session and resource they own.
func (m *SessionManager) DeleteUser(ctx context.Context, token string) error {
	err := m.repo.Atomic(ctx, func(tx storage.Tx) error {
		s, err := m.lookup(ctx, tx, token)
		if err != nil {
			return err
		}
		return tx.DeleteUser(ctx, s.UserID)
	})
	if err != nil {
		return m.sessionError("deleting user", err)
	}
	return nil
}

// SweepResult counts the records removed by Sweep.
type SweepResult struct {
	TempSessions int64
	Sessions     int64
}

// Sweep deletes every expired temporary and authenticated session.
func (m *SessionManager) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := m.now().UTC()
	var err error
	if res.TempSessions, err = m.repo.DeleteExpiredTempSessions(ctx, now); err != nil {
		return res, dbError("sweeping temp sessions", err)
	}
	if res.Sessions, err = m.repo.DeleteExpiredSessions(ctx, now); err != nil {
		return res, dbError("sweeping sessions", err)
	}
	return res, nil
}

func (m *SessionManager) lookup(ctx context.Context, tx storage.Tx, token string) (*storage.Session, error) {
	now := m.now().UTC()
	if _, err := tx.DeleteExpiredSessions(ctx, now); err != nil {
		return nil, err
	}
	return tx.FindSession(ctx, token, now)
}

func (m *SessionManager) sessionError(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidSession
	}
	return dbError(op, err)
}
