// Package storagetest provides a conformance suite that every
// storage.Repository implementation must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/liftlog/storage"
)

// Factory returns an empty repository. The suite closes it when done.
type Factory func(t *testing.T) storage.Repository

// Run runs the common suite against the repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()

	t.Run("Users", func(t *testing.T) { testUsers(t, open(t, newRepo)) })
	t.Run("TempSessions", func(t *testing.T) { testTempSessions(t, open(t, newRepo)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t, newRepo)) })
	t.Run("AtomicRollback", func(t *testing.T) { testAtomicRollback(t, open(t, newRepo)) })
	t.Run("AtomicRollbackRestoresExisting", func(t *testing.T) { testAtomicRollbackRestoresExisting(t, open(t, newRepo)) })
	t.Run("DeleteUserCascades", func(t *testing.T) { testDeleteUserCascades(t, open(t, newRepo)) })
	t.Run("Workouts", func(t *testing.T) { testWorkouts(t, open(t, newRepo)) })
	t.Run("Exercises", func(t *testing.T) { testExercises(t, open(t, newRepo)) })
	t.Run("WorkoutExercises", func(t *testing.T) { testWorkoutExercises(t, open(t, newRepo)) })
}

func open(t *testing.T, newRepo Factory) storage.Repository {
	t.Helper()
	repo := newRepo(t)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newUser(t *testing.T, repo storage.Repository, email string) *storage.User {
	t.Helper()
	ts := now()
	u := &storage.User{
		UUID:         uuid.NewString(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func newSession(t *testing.T, repo storage.Repository, userID int64, token string, expiresAt time.Time) *storage.Session {
	t.Helper()
	s := &storage.Session{
		UserID:    userID,
		Token:     token,
		CSRFToken: "csrf-" + token,
		CreatedAt: now(),
		ExpiresAt: expiresAt,
	}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	return s
}

func strPtr(s string) *string { return &s }

func testUsers(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := newUser(t, repo, "alice@example.com")

	t.Run("ByEmail", func(t *testing.T) {
		got, err := repo.UserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.UUID, got.UUID)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
	})

	t.Run("ByID", func(t *testing.T) {
		got, err := repo.UserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup := &storage.User{UUID: uuid.NewString(), Email: "alice@example.com", PasswordHash: "x", CreatedAt: now(), UpdatedAt: now()}
		err := repo.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrDuplicate)

		got, err := repo.UserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID, "duplicate must not replace the original row")
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := repo.UserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.UserByID(ctx, u.ID+1000)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteUser(ctx, u.ID))
		_, err := repo.UserByID(ctx, u.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteUser(ctx, u.ID), storage.ErrNotFound)
	})
}

func testTempSessions(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	ts := now()

	live := &storage.TempSession{SessionID: "sid-live", CSRFToken: "tok-live", CreatedAt: ts, ExpiresAt: ts.Add(5 * time.Minute)}
	require.NoError(t, repo.CreateTempSession(ctx, live))
	expired := &storage.TempSession{SessionID: "sid-old", CSRFToken: "tok-old", CreatedAt: ts.Add(-10 * time.Minute), ExpiresAt: ts.Add(-5 * time.Minute)}
	require.NoError(t, repo.CreateTempSession(ctx, expired))

	t.Run("FindMatching", func(t *testing.T) {
		got, err := repo.FindTempSession(ctx, "sid-live", "tok-live", ts)
		require.NoError(t, err)
		assert.Equal(t, "sid-live", got.SessionID)
		assert.Equal(t, "tok-live", got.CSRFToken)
	})

	t.Run("WrongToken", func(t *testing.T) {
		_, err := repo.FindTempSession(ctx, "sid-live", "tok-other", ts)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("WrongSession", func(t *testing.T) {
		_, err := repo.FindTempSession(ctx, "sid-other", "tok-live", ts)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ExpiredIsAbsent", func(t *testing.T) {
		_, err := repo.FindTempSession(ctx, "sid-old", "tok-old", ts)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.FindTempSession(ctx, "sid-live", "tok-live", ts.Add(5*time.Minute))
		assert.ErrorIs(t, err, storage.ErrNotFound, "expiry boundary is exclusive")
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		n, err := repo.DeleteExpiredTempSessions(ctx, ts)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = repo.DeleteExpiredTempSessions(ctx, ts)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ConsumeOnce", func(t *testing.T) {
		require.NoError(t, repo.CreateTempSession(ctx, &storage.TempSession{SessionID: "sid-consume", CSRFToken: "tok-consume", CreatedAt: ts, ExpiresAt: ts.Add(time.Minute)}))

		assert.ErrorIs(t, repo.ConsumeTempSession(ctx, "sid-consume", "tok-other", ts), storage.ErrNotFound)
		assert.ErrorIs(t, repo.ConsumeTempSession(ctx, "sid-consume", "tok-consume", ts.Add(time.Minute)), storage.ErrNotFound, "expired rows cannot be consumed")

		require.NoError(t, repo.ConsumeTempSession(ctx, "sid-consume", "tok-consume", ts))
		assert.ErrorIs(t, repo.ConsumeTempSession(ctx, "sid-consume", "tok-consume", ts), storage.ErrNotFound, "second consume must fail")
		_, err := repo.FindTempSession(ctx, "sid-consume", "tok-consume", ts)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteTempSession(ctx, "sid-live"))
		_, err := repo.FindTempSession(ctx, "sid-live", "tok-live", ts)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, repo.DeleteTempSession(ctx, "sid-live"), "deleting twice is not an error")
	})
}

func testSessions(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	ts := now()
	u := newUser(t, repo, "bob@example.com")
	s := newSession(t, repo, u.ID, "token-1", ts.Add(24*time.Hour))
	newSession(t, repo, u.ID, "token-old", ts.Add(-time.Second))

	t.Run("Find", func(t *testing.T) {
		got, err := repo.FindSession(ctx, "token-1", ts)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.UserID)
		assert.Equal(t, s.CSRFToken, got.CSRFToken)
		assert.True(t, got.ExpiresAt.Equal(s.ExpiresAt))
	})

	t.Run("DuplicateToken", func(t *testing.T) {
		dup := &storage.Session{UserID: u.ID, Token: "token-1", CSRFToken: "x", CreatedAt: ts, ExpiresAt: ts.Add(time.Hour)}
		assert.ErrorIs(t, repo.CreateSession(ctx, dup), storage.ErrDuplicate)
	})

	t.Run("ExpiredIsAbsent", func(t *testing.T) {
		_, err := repo.FindSession(ctx, "token-old", ts)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		n, err := repo.DeleteExpiredSessions(ctx, ts)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = repo.FindSession(ctx, "token-1", ts)
		assert.NoError(t, err, "live sessions survive the sweep")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteSession(ctx, "token-1"))
		_, err := repo.FindSession(ctx, "token-1", ts)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, repo.DeleteSession(ctx, "token-1"))
	})
}

func testAtomicRollback(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := repo.Atomic(ctx, func(tx storage.Tx) error {
		u := &storage.User{UUID: uuid.NewString(), Email: "rollback@example.com", PasswordHash: "x", CreatedAt: now(), UpdatedAt: now()}
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if _, err := tx.UserByEmail(ctx, "rollback@example.com"); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = repo.UserByEmail(ctx, "rollback@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repo.Atomic(ctx, func(tx storage.Tx) error {
		ts := now()
		if err := tx.CreateTempSession(ctx, &storage.TempSession{SessionID: "sid-atomic", CSRFToken: "tok", CreatedAt: ts, ExpiresAt: ts.Add(time.Minute)}); err != nil {
			return err
		}
		_, err := tx.DeleteExpiredTempSessions(ctx, ts)
		return err
	})
	require.NoError(t, err)
	_, err = repo.FindTempSession(ctx, "sid-atomic", "tok", now())
	assert.NoError(t, err, "committed writes are visible")
}

func testAtomicRollbackRestoresExisting(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	ts := now()
	errBoom := errors.New("boom")
	u := newUser(t, repo, "restore@example.com")
	desc := "before"
	w := &storage.Workout{UUID: uuid.NewString(), UserID: u.ID, Name: "Pull", Description: &desc, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateWorkout(ctx, w))
	require.NoError(t, repo.CreateTempSession(ctx, &storage.TempSession{SessionID: "sid-restore", CSRFToken: "tok", CreatedAt: ts, ExpiresAt: ts.Add(time.Hour)}))
	newSession(t, repo, u.ID, "token-restore", ts.Add(time.Hour))

	err := repo.Atomic(ctx, func(tx storage.Tx) error {
		if err := tx.UpdateWorkout(ctx, &storage.Workout{UUID: w.UUID, UserID: u.ID, Name: "Renamed", UpdatedAt: ts}); err != nil {
			return err
		}
		if err := tx.ConsumeTempSession(ctx, "sid-restore", "tok", ts); err != nil {
			return err
		}
		if err := tx.DeleteSession(ctx, "token-restore"); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := repo.Workout(ctx, u.ID, w.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Pull", got.Name)
	require.NotNil(t, got.Description)
	assert.Equal(t, "before", *got.Description)
	_, err = repo.FindTempSession(ctx, "sid-restore", "tok", ts)
	assert.NoError(t, err, "consumed temp session is restored")
	_, err = repo.FindSession(ctx, "token-restore", ts)
	assert.NoError(t, err, "deleted session is restored")
}

func testDeleteUserCascades(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	ts := now()
	owner := newUser(t, repo, "owner@example.com")
	other := newUser(t, repo, "other@example.com")
	newSession(t, repo, owner.ID, "owner-token", ts.Add(time.Hour))
	newSession(t, repo, other.ID, "other-token", ts.Add(time.Hour))

	w := &storage.Workout{UUID: uuid.NewString(), UserID: owner.ID, Name: "Push", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateWorkout(ctx, w))
	e := &storage.Exercise{UUID: uuid.NewString(), UserID: owner.ID, Name: "Bench", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateExercise(ctx, e))
	require.NoError(t, repo.AddWorkoutExercise(ctx, &storage.WorkoutExercise{WorkoutID: w.ID, ExerciseID: e.ID, UserID: owner.ID, Position: 1}))

	require.NoError(t, repo.DeleteUser(ctx, owner.ID))

	_, err := repo.FindSession(ctx, "owner-token", ts)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.Workout(ctx, owner.ID, w.UUID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.Exercise(ctx, owner.ID, e.UUID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := repo.FindSession(ctx, "other-token", ts)
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.UserID)
}

func testWorkouts(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	ts := now()
	alice := newUser(t, repo, "w-alice@example.com")
	mallory := newUser(t, repo, "w-mallory@example.com")

	w := &storage.Workout{UUID: uuid.NewString(), UserID: alice.ID, Name: "Legs", Description: strPtr("squat day"), CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateWorkout(ctx, w))
	require.NotZero(t, w.ID)
	w2 := &storage.Workout{UUID: uuid.NewString(), UserID: alice.ID, Name: "Pull", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateWorkout(ctx, w2))

	t.Run("Get", func(t *testing.T) {
		got, err := repo.Workout(ctx, alice.ID, w.UUID)
		require.NoError(t, err)
		assert.Equal(t, "Legs", got.Name)
		require.NotNil(t, got.Description)
		assert.Equal(t, "squat day", *got.Description)
	})

	t.Run("NullDescription", func(t *testing.T) {
		got, err := repo.Workout(ctx, alice.ID, w2.UUID)
		require.NoError(t, err)
		assert.Nil(t, got.Description)
	})

	t.Run("OtherUserSeesNotFound", func(t *testing.T) {
		_, err := repo.Workout(ctx, mallory.ID, w.UUID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		list, err := repo.ListWorkouts(ctx, mallory.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.ErrorIs(t, repo.DeleteWorkout(ctx, mallory.ID, w.UUID), storage.ErrNotFound)
		hijack := &storage.Workout{UUID: w.UUID, UserID: mallory.ID, Name: "mine", UpdatedAt: ts}
		assert.ErrorIs(t, repo.UpdateWorkout(ctx, hijack), storage.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		list, err := repo.ListWorkouts(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, w.UUID, list[0].UUID)
		assert.Equal(t, w2.UUID, list[1].UUID)
	})

	t.Run("Update", func(t *testing.T) {
		upd := &storage.Workout{UUID: w.UUID, UserID: alice.ID, Name: "Legs v2", UpdatedAt: ts.Add(time.Minute)}
		require.NoError(t, repo.UpdateWorkout(ctx, upd))
		assert.Equal(t, w.ID, upd.ID)
		got, err := repo.Workout(ctx, alice.ID, w.UUID)
		require.NoError(t, err)
		assert.Equal(t, "Legs v2", got.Name)
		assert.Nil(t, got.Description)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteWorkout(ctx, alice.ID, w2.UUID))
		_, err := repo.Workout(ctx, alice.ID, w2.UUID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteWorkout(ctx, alice.ID, w2.UUID), storage.ErrNotFound)
	})
}

func testExercises(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	ts := now()
	alice := newUser(t, repo, "e-alice@example.com")
	mallory := newUser(t, repo, "e-mallory@example.com")

	e := &storage.Exercise{UUID: uuid.NewString(), UserID: alice.ID, Name: "Deadlift", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateExercise(ctx, e))

	got, err := repo.Exercise(ctx, alice.ID, e.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Deadlift", got.Name)

	_, err = repo.Exercise(ctx, mallory.ID, e.UUID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	upd := &storage.Exercise{UUID: e.UUID, UserID: alice.ID, Name: "Deadlift", Description: strPtr("conventional"), UpdatedAt: ts}
	require.NoError(t, repo.UpdateExercise(ctx, upd))
	got, err = repo.Exercise(ctx, alice.ID, e.UUID)
	require.NoError(t, err)
	require.NotNil(t, got.Description)
	assert.Equal(t, "conventional", *got.Description)

	list, err := repo.ListExercises(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, repo.DeleteExercise(ctx, mallory.ID, e.UUID), storage.ErrNotFound)
	require.NoError(t, repo.DeleteExercise(ctx, alice.ID, e.UUID))
	list, err = repo.ListExercises(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testWorkoutExercises(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	ts := now()
	alice := newUser(t, repo, "we-alice@example.com")
	mallory := newUser(t, repo, "we-mallory@example.com")

	w := &storage.Workout{UUID: uuid.NewString(), UserID: alice.ID, Name: "Full body", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateWorkout(ctx, w))
	squat := &storage.Exercise{UUID: uuid.NewString(), UserID: alice.ID, Name: "Squat", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateExercise(ctx, squat))
	press := &storage.Exercise{UUID: uuid.NewString(), UserID: alice.ID, Name: "Press", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateExercise(ctx, press))
	foreign := &storage.Exercise{UUID: uuid.NewString(), UserID: mallory.ID, Name: "Curl", CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, repo.CreateExercise(ctx, foreign))

	require.NoError(t, repo.AddWorkoutExercise(ctx, &storage.WorkoutExercise{WorkoutID: w.ID, ExerciseID: press.ID, UserID: alice.ID, Position: 2}))
	require.NoError(t, repo.AddWorkoutExercise(ctx, &storage.WorkoutExercise{WorkoutID: w.ID, ExerciseID: squat.ID, UserID: alice.ID, Position: 1}))

	t.Run("ListOrdered", func(t *testing.T) {
		entries, err := repo.ListWorkoutExercises(ctx, alice.ID, w.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "Squat", entries[0].Exercise.Name)
		assert.Equal(t, 1, entries[0].Position)
		assert.Equal(t, "Press", entries[1].Exercise.Name)
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := repo.AddWorkoutExercise(ctx, &storage.WorkoutExercise{WorkoutID: w.ID, ExerciseID: squat.ID, UserID: alice.ID, Position: 3})
		assert.ErrorIs(t, err, storage.ErrDuplicate)
	})

	t.Run("ForeignExercise", func(t *testing.T) {
		err := repo.AddWorkoutExercise(ctx, &storage.WorkoutExercise{WorkoutID: w.ID, ExerciseID: foreign.ID, UserID: alice.ID, Position: 3})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("OtherUserSeesNothing", func(t *testing.T) {
		entries, err := repo.ListWorkoutExercises(ctx, mallory.ID, w.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.ErrorIs(t, repo.RemoveWorkoutExercise(ctx, mallory.ID, w.ID, squat.ID), storage.ErrNotFound)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, repo.RemoveWorkoutExercise(ctx, alice.ID, w.ID, squat.ID))
		assert.ErrorIs(t, repo.RemoveWorkoutExercise(ctx, alice.ID, w.ID, squat.ID), storage.ErrNotFound)
		entries, err := repo.ListWorkoutExercises(ctx, alice.ID, w.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Press", entries[0].Exercise.Name)
	})

	t.Run("DeletingExerciseUnlinks", func(t *testing.T) {
		require.NoError(t, repo.DeleteExercise(ctx, alice.ID, press.UUID))
		entries, err := repo.ListWorkoutExercises(ctx, alice.ID, w.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
