package api

import (
	"encoding/json"
	"time"

	"github.com/jmcleod/liftlog/storage"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CSRFTokenResponse is returned from GET /auth/csrf-token.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned from register and login.
type AuthResponse struct {
	UUID  string `json:"uuid"`
	Email string `json:"email"`
}

// UserResponse is returned from GET /users/me.
type UserResponse struct {
	UUID      string    `json:"uuid"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// CreateResourceRequest is the JSON body for creating a workout or exercise.
type CreateResourceRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UpdateResourceRequest is the JSON body for updating a workout or
// exercise. Absent fields are left unchanged; a null description clears it.
type UpdateResourceRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description OptionalString `json:"description,omitzero"`
}

// OptionalString is a JSON string field that tells an absent key apart from
// an explicit null. Set is false when the key was absent.
type OptionalString struct {
	Set   bool
	Value *string
}

// StringValue returns an OptionalString holding s.
func StringValue(s string) OptionalString {
	return OptionalString{Set: true, Value: &s}
}

// StringNull returns an OptionalString that encodes as null.
func StringNull() OptionalString {
	return OptionalString{Set: true}
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// IsZero reports whether the field was absent, so omitzero drops it.
func (o OptionalString) IsZero() bool { return !o.Set }

// WorkoutResponse describes a workout.
type WorkoutResponse struct {
	UUID        string    `json:"uuid"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExerciseResponse describes an exercise.
type ExerciseResponse struct {
	UUID        string    `json:"uuid"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AddWorkoutExerciseRequest is the JSON body for
// POST /workouts/{workoutID}/exercises.
type AddWorkoutExerciseRequest struct {
	ExerciseUUID string `json:"exercise_uuid"`
	Position     int    `json:"position"`
}

// WorkoutExerciseResponse is an exercise listed inside a workout.
type WorkoutExerciseResponse struct {
	ExerciseResponse
	Position int `json:"position"`
}

func newWorkoutResponse(w *storage.Workout) WorkoutResponse {
	return WorkoutResponse{
		UUID:        w.UUID,
		Name:        w.Name,
		Description: w.Description,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func newExerciseResponse(e *storage.Exercise) ExerciseResponse {
	return ExerciseResponse{
		UUID:        e.UUID,
		Name:        e.Name,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
