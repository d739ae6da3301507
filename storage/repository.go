// Package storage provides the persistence abstraction for users, sessions
// and the training resources owned by users.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible
	// to the requesting user.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts u, assigning u.ID. It returns ErrDuplicate when the
	// email is already taken.
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	// DeleteUser removes the user together with everything the user owns.
	DeleteUser(ctx context.Context, id int64) error
}

// TempSessionStore persists pre-authentication sessions.
type TempSessionStore interface {
	CreateTempSession(ctx context.Context, ts *TempSession) error
	// FindTempSession returns the session matching both values whose expiry
	// is after now.
	FindTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) (*TempSession, error)
	// ConsumeTempSession deletes the live session matching both values. It
	// returns ErrNotFound when no such row exists, including when another
	// caller consumed it first.
	ConsumeTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) error
	DeleteTempSession(ctx context.Context, sessionID string) error
	DeleteExpiredTempSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore persists authenticated sessions.
type SessionStore interface {
	// CreateSession inserts s, assigning s.ID. It returns ErrDuplicate when
	// the token is already in use.
	CreateSession(ctx context.Context, s *Session) error
	// FindSession returns the session for token whose expiry is after now.
	FindSession(ctx context.Context, token string, now time.Time) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// WorkoutStore persists workouts. Every method is scoped by userID.
type WorkoutStore interface {
	CreateWorkout(ctx context.Context, w *Workout) error
	Workout(ctx context.Context, userID int64, uuid string) (*Workout, error)
	ListWorkouts(ctx context.Context, userID int64) ([]*Workout, error)
	UpdateWorkout(ctx context.Context, w *Workout) error
	DeleteWorkout(ctx context.Context, userID int64, uuid string) error
}

// ExerciseStore persists exercises. Every method is scoped by userID.
type ExerciseStore interface {
	CreateExercise(ctx context.Context, e *Exercise) error
	Exercise(ctx context.Context, userID int64, uuid string) (*Exercise, error)
	ListExercises(ctx context.Context, userID int64) ([]*Exercise, error)
	UpdateExercise(ctx context.Context, e *Exercise) error
	DeleteExercise(ctx context.Context, userID int64, uuid string) error
}

// WorkoutExerciseStore links exercises into workouts.
type WorkoutExerciseStore interface {
	// AddWorkoutExercise returns ErrDuplicate if the exercise is already
	// part of the workout.
	AddWorkoutExercise(ctx context.Context, we *WorkoutExercise) error
	RemoveWorkoutExercise(ctx context.Context, userID, workoutID, exerciseID int64) error
	// ListWorkoutExercises returns the exercises of a workout ordered by
	// position.
	ListWorkoutExercises(ctx context.Context, userID, workoutID int64) ([]*WorkoutExerciseEntry, error)
}

// Tx is the set of operations available inside an atomic unit of work.
type Tx interface {
	UserStore
	TempSessionStore
	SessionStore
	WorkoutStore
	ExerciseStore
	WorkoutExerciseStore
}

// Repository is the full storage backend. Operations called directly on the
// Repository each run in their own transaction; Atomic groups several of
// them so that either all or none take effect and no concurrent caller can
// observe an intermediate state.
type Repository interface {
	Tx
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
