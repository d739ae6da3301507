package storage

import "time"

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TempSession is a short-lived pre-authentication session binding a
// session identifier to a CSRF token.
type TempSession struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (ts *TempSession) Expired(now time.Time) bool {
	return !ts.ExpiresAt.After(now)
}

// Session is an authenticated session owned by a user.
type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	CSRFToken string    `json:"csrf_token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Workout is a named training plan owned by a user.
type Workout struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Exercise is a movement a user can add to workouts.
type Exercise struct {
	ID          int64     `json:"id"`
	UUID        string    `json:"uuid"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkoutExercise places an exercise inside a workout.
type WorkoutExercise struct {
	WorkoutID  int64 `json:"workout_id"`
	ExerciseID int64 `json:"exercise_id"`
	UserID     int64 `json:"user_id"`
	Position   int   `json:"position"`
}

// WorkoutExerciseEntry is an exercise as listed inside a workout.
type WorkoutExerciseEntry struct {
	Exercise *Exercise
	Position int
}

// CloneString returns a copy of p.
func CloneString(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}
