package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/liftlog/storage"
	"github.com/jmcleod/liftlog/storage/memory"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fastParams() PasswordParams {
	return PasswordParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32}
}

type fixture struct {
	repo  *memory.Repository
	clock *fakeClock
	creds *CredentialStore
	temp  *TempSessionManager
	sess  *SessionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewRepository()
	clock := newFakeClock()
	opts := []Option{WithClock(clock.Now), WithPasswordParams(fastParams())}
	creds, err := NewCredentialStore(repo, opts...)
	require.NoError(t, err)
	return &fixture{
		repo:  repo,
		clock: clock,
		creds: creds,
		temp:  NewTempSessionManager(repo, opts...),
		sess:  NewSessionManager(repo, opts...),
	}
}

// login walks the full flow and returns the promoted session.
func (f *fixture) login(t *testing.T, email string) (*storage.User, *storage.Session) {
	t.Helper()
	ctx := context.Background()
	u, err := f.creds.CreateUser(ctx, email, "pw123456")
	require.NoError(t, err)
	tok, err := NewCSRFToken()
	require.NoError(t, err)
	ts, err := f.temp.CreateTempSession(ctx, tok)
	require.NoError(t, err)
	require.NoError(t, f.temp.ValidateCSRF(ctx, ts.SessionID, tok))
	s, err := f.sess.CreateSession(ctx, u.ID, ts.SessionID, tok)
	require.NoError(t, err)
	return u, s
}

func TestCredentialStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.creds.CreateUser(ctx, "  A@B.com ", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", u.Email)
	assert.NotEmpty(t, u.UUID)
	assert.Contains(t, u.PasswordHash, "$argon2id$v=19$m=1024,t=1,p=1$")

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, err := f.creds.CreateUser(ctx, "a@b.com", "other-password")
		assert.ErrorIs(t, err, ErrDuplicateEmail)
		_, err = f.creds.CreateUser(ctx, "A@B.COM", "other-password")
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("VerifyCorrect", func(t *testing.T) {
		got, err := f.creds.VerifyCredentials(ctx, "a@b.com", "pw123456")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("WrongPasswordAndUnknownEmailLookAlike", func(t *testing.T) {
		_, errWrong := f.creds.VerifyCredentials(ctx, "a@b.com", "wrong")
		_, errUnknown := f.creds.VerifyCredentials(ctx, "nobody@b.com", "pw123456")
		assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
		assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
		assert.Equal(t, errWrong.Error(), errUnknown.Error())
	})

	t.Run("SaltIsFresh", func(t *testing.T) {
		u2, err := f.creds.CreateUser(ctx, "c@d.com", "pw123456")
		require.NoError(t, err)
		assert.NotEqual(t, u.PasswordHash, u2.PasswordHash)
	})

	t.Run("User", func(t *testing.T) {
		got, err := f.creds.User(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.UUID, got.UUID)
		_, err = f.creds.User(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCredentialStoreDatabaseError(t *testing.T) {
	errDown := errors.New("connection refused")
	creds, err := NewCredentialStore(failingUsers{err: errDown}, WithPasswordParams(fastParams()))
	require.NoError(t, err)

	_, err = creds.CreateUser(context.Background(), "a@b.com", "pw123456")
	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, errDown)

	_, err = creds.VerifyCredentials(context.Background(), "a@b.com", "pw123456")
	assert.ErrorIs(t, err, ErrDatabase)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewCredentialStoreRejectsBadParams(t *testing.T) {
	_, err := NewCredentialStore(memory.NewRepository(), WithPasswordParams(PasswordParams{}))
	assert.Error(t, err)
}

func TestTempSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := NewCSRFToken()
	require.NoError(t, err)
	ts, err := f.temp.CreateTempSession(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, tok, ts.CSRFToken)
	assert.Equal(t, DefaultTempSessionTTL, ts.ExpiresAt.Sub(ts.CreatedAt))

	t.Run("ExactPairAccepted", func(t *testing.T) {
		assert.NoError(t, f.temp.ValidateCSRF(ctx, ts.SessionID, tok))
	})

	t.Run("AlteredValuesRejected", func(t *testing.T) {
		assert.ErrorIs(t, f.temp.ValidateCSRF(ctx, ts.SessionID, tok+"x"), ErrInvalidSession)
		assert.ErrorIs(t, f.temp.ValidateCSRF(ctx, NewSessionID(), tok), ErrInvalidSession)
	})

	t.Run("JustBeforeExpiry", func(t *testing.T) {
		f.clock.Advance(DefaultTempSessionTTL - time.Second)
		assert.NoError(t, f.temp.ValidateCSRF(ctx, ts.SessionID, tok))
	})

	t.Run("ExpiredRejectedAndSwept", func(t *testing.T) {
		f.clock.Advance(time.Second)
		assert.ErrorIs(t, f.temp.ValidateCSRF(ctx, ts.SessionID, tok), ErrInvalidSession)

		// The sweep ran inside validation, so the row is gone even for an
		// observer whose clock is behind.
		_, err := f.repo.FindTempSession(ctx, ts.SessionID, tok, ts.CreatedAt)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, s := f.login(t, "a@b.com")

	t.Run("PromotionCarriesOverAndConsumes", func(t *testing.T) {
		assert.Equal(t, u.ID, s.UserID)
		assert.Equal(t, DefaultSessionTTL, s.ExpiresAt.Sub(s.CreatedAt))
		// The temporary session is gone, so its pair no longer passes.
		assert.ErrorIs(t, f.temp.ValidateCSRF(ctx, s.Token, s.CSRFToken), ErrInvalidSession)
	})

	t.Run("Validate", func(t *testing.T) {
		userID, err := f.sess.ValidateSession(ctx, s.Token)
		require.NoError(t, err)
		assert.Equal(t, u.ID, userID)

		got, err := f.sess.Session(ctx, s.Token)
		require.NoError(t, err)
		assert.Equal(t, s.CSRFToken, got.CSRFToken)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		_, err := f.sess.ValidateSession(ctx, "nope")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("PromotingTwiceFails", func(t *testing.T) {
		_, err := f.sess.CreateSession(ctx, u.ID, s.Token, s.CSRFToken)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("Expiry", func(t *testing.T) {
		f.clock.Advance(DefaultSessionTTL - time.Second)
		_, err := f.sess.ValidateSession(ctx, s.Token)
		require.NoError(t, err)

		f.clock.Advance(time.Second)
		_, err = f.sess.ValidateSession(ctx, s.Token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}

// newPair opens a temporary session and returns its id and token.
func (f *fixture) newPair(t *testing.T) (string, string) {
	t.Helper()
	tok, err := NewCSRFToken()
	require.NoError(t, err)
	ts, err := f.temp.CreateTempSession(context.Background(), tok)
	require.NoError(t, err)
	return ts.SessionID, tok
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("CreatesUserAndSession", func(t *testing.T) {
		sid, tok := f.newPair(t)
		u, err := f.creds.NewUser("New@Example.com", "pw123456")
		require.NoError(t, err)

		s, err := f.sess.Register(ctx, u, sid, tok)
		require.NoError(t, err)
		assert.Equal(t, u.ID, s.UserID)
		assert.Equal(t, sid, s.Token)
		assert.Equal(t, tok, s.CSRFToken)
		assert.ErrorIs(t, f.temp.ValidateCSRF(ctx, sid, tok), ErrInvalidSession, "pair is consumed")

		got, err := f.creds.VerifyCredentials(ctx, "new@example.com", "pw123456")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("ConsumedPairLeavesNoUser", func(t *testing.T) {
		sid, tok := f.newPair(t)
		first, err := f.creds.NewUser("first@example.com", "pw123456")
		require.NoError(t, err)
		_, err = f.sess.Register(ctx, first, sid, tok)
		require.NoError(t, err)

		second, err := f.creds.NewUser("second@example.com", "pw123456")
		require.NoError(t, err)
		_, err = f.sess.Register(ctx, second, sid, tok)
		assert.ErrorIs(t, err, ErrInvalidSession)

		_, err = f.repo.UserByEmail(ctx, "second@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DuplicateEmailKeepsPair", func(t *testing.T) {
		sid, tok := f.newPair(t)
		u, err := f.creds.NewUser("new@example.com", "other-password")
		require.NoError(t, err)

		_, err = f.sess.Register(ctx, u, sid, tok)
		assert.ErrorIs(t, err, ErrDuplicateEmail)
		assert.NoError(t, f.temp.ValidateCSRF(ctx, sid, tok), "rolled back consume leaves the pair usable")
	})

	t.Run("ConcurrentOnOnePair", func(t *testing.T) {
		sid, tok := f.newPair(t)
		const n = 10
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			u, err := f.creds.NewUser(fmt.Sprintf("concurrent%d@example.com", i), "pw123456")
			require.NoError(t, err)
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.sess.Register(ctx, u, sid, tok)
			}(i)
		}
		wg.Wait()

		won := 0
		for i, err := range errs {
			if err == nil {
				won++
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidSession)
			_, err = f.repo.UserByEmail(ctx, fmt.Sprintf("concurrent%d@example.com", i))
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}
		assert.Equal(t, 1, won)
	})
}

func TestInvalidateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, s := f.login(t, "a@b.com")

	require.NoError(t, f.sess.InvalidateSession(ctx, s.Token))
	_, err := f.sess.ValidateSession(ctx, s.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	assert.NoError(t, f.sess.InvalidateSession(ctx, s.Token), "absent session is not an error")
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, s := f.login(t, "a@b.com")
	_, other := f.login(t, "c@d.com")

	require.NoError(t, f.sess.DeleteUser(ctx, s.Token))

	_, err := f.creds.User(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.sess.ValidateSession(ctx, s.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = f.sess.ValidateSession(ctx, other.Token)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.sess.DeleteUser(ctx, s.Token), ErrInvalidSession)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, "a@b.com")
	_, err := f.temp.CreateTempSession(ctx, "pending")
	require.NoError(t, err)

	res, err := f.sess.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)

	f.clock.Advance(DefaultSessionTTL)
	res, err = f.sess.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{TempSessions: 1, Sessions: 1}, res)
}

func TestSweeperCloseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sw := StartSweeper(f.sess, time.Millisecond, nil)
	time.Sleep(5 * time.Millisecond)
	sw.Close()
	sw.Close()
}

func TestCheckCSRF(t *testing.T) {
	assert.NoError(t, CheckCSRF("abc", "abc"))
	assert.ErrorIs(t, CheckCSRF("abc", "abd"), ErrInvalidCSRF)
	assert.ErrorIs(t, CheckCSRF("abc", ""), ErrInvalidCSRF)
	assert.ErrorIs(t, CheckCSRF("", ""), ErrInvalidCSRF)
}

func TestCustomTTLs(t *testing.T) {
	repo := memory.NewRepository()
	clock := newFakeClock()
	temp := NewTempSessionManager(repo, WithClock(clock.Now), WithTempSessionTTL(time.Minute))
	ts, err := temp.CreateTempSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ts.ExpiresAt.Sub(ts.CreatedAt))
	assert.Equal(t, time.Minute, temp.TTL())

	sess := NewSessionManager(repo, WithSessionTTL(time.Hour), WithSessionTTL(0))
	assert.Equal(t, time.Hour, sess.TTL(), "non-positive TTL is ignored")
}

// failingUsers is a storage.UserStore whose every call fails.
type failingUsers struct{ err error }

func (f failingUsers) CreateUser(context.Context, *storage.User) error { return f.err }
func (f failingUsers) UserByEmail(context.Context, string) (*storage.User, error) {
	return nil, f.err
}
func (f failingUsers) UserByID(context.Context, int64) (*storage.User, error) { return nil, f.err }
func (f failingUsers) DeleteUser(context.Context, int64) error                { return f.err }
