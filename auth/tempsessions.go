package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jmcleod/liftlog/storage"
)

// TempSessionManager issues and validates pre-authentication sessions that
// bind a session id cookie to a CSRF token.
type TempSessionManager struct {
	repo storage.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewTempSessionManager returns a TempSessionManager backed by repo.
func NewTempSessionManager(repo storage.Repository, opts ...Option) *TempSessionManager {
	o := applyOptions(opts)
	return &TempSessionManager{repo: repo, ttl: o.tempSessionTTL, now: o.now}
}

// TTL returns the lifetime of issued temporary sessions.
func (m *TempSessionManager) TTL() time.Duration { return m.ttl }

// CreateTempSession persists a new temporary session carrying csrfToken
// under a freshly generated session id.
func (m *TempSessionManager) CreateTempSession(ctx context.Context, csrfToken string) (*storage.TempSession, error) {
	now := m.now().UTC()
	ts := &storage.TempSession{
		SessionID: NewSessionID(),
		CSRFToken: csrfToken,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.repo.CreateTempSession(ctx, ts); err != nil {
		return nil, dbError("creating temp session", err)
	}
	return ts, nil
}

// ValidateCSRF sweeps expired temporary sessions and then requires a live
// session matching both sessionID and csrfToken. Both steps share one
// transaction so a record cannot expire between them.
func (m *TempSessionManager) ValidateCSRF(ctx context.Context, sessionID, csrfToken string) error {
	now := m.now().UTC()
	err := m.repo.Atomic(ctx, func(tx storage.Tx) error {
		if _, err := tx.DeleteExpiredTempSessions(ctx, now); err != nil {
			return err
		}
		_, err := tx.FindTempSession(ctx, sessionID, csrfToken, now)
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrInvalidSession
	default:
		return dbError("validating csrf token", err)
	}
}
