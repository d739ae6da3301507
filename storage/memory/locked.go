package memory

import (
	"context"
	"time"

	"github.com/jmcleod/liftlog/storage"
)

func (r *Repository) CreateUser(ctx context.Context, u *storage.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.CreateUser(ctx, u)
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (*storage.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.UserByEmail(ctx, email)
}

func (r *Repository) UserByID(ctx context.Context, id int64) (*storage.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.UserByID(ctx, id)
}

func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.DeleteUser(ctx, id)
}

func (r *Repository) CreateTempSession(ctx context.Context, ts *storage.TempSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.CreateTempSession(ctx, ts)
}

func (r *Repository) FindTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) (*storage.TempSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.FindTempSession(ctx, sessionID, csrfToken, now)
}

func (r *Repository) ConsumeTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.ConsumeTempSession(ctx, sessionID, csrfToken, now)
}

func (r *Repository) DeleteTempSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.DeleteTempSession(ctx, sessionID)
}

func (r *Repository) DeleteExpiredTempSessions(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.DeleteExpiredTempSessions(ctx, now)
}

func (r *Repository) CreateSession(ctx context.Context, s *storage.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.CreateSession(ctx, s)
}

func (r *Repository) FindSession(ctx context.Context, token string, now time.Time) (*storage.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.FindSession(ctx, token, now)
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.DeleteSession(ctx, token)
}

func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.DeleteExpiredSessions(ctx, now)
}

func (r *Repository) CreateWorkout(ctx context.Context, w *storage.Workout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.CreateWorkout(ctx, w)
}

func (r *Repository) Workout(ctx context.Context, userID int64, uuid string) (*storage.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.Workout(ctx, userID, uuid)
}

func (r *Repository) ListWorkouts(ctx context.Context, userID int64) ([]*storage.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.ListWorkouts(ctx, userID)
}

func (r *Repository) UpdateWorkout(ctx context.Context, w *storage.Workout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.UpdateWorkout(ctx, w)
}

func (r *Repository) DeleteWorkout(ctx context.Context, userID int64, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.DeleteWorkout(ctx, userID, uuid)
}

func (r *Repository) CreateExercise(ctx context.Context, e *storage.Exercise) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.CreateExercise(ctx, e)
}

func (r *Repository) Exercise(ctx context.Context, userID int64, uuid string) (*storage.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.Exercise(ctx, userID, uuid)
}

func (r *Repository) ListExercises(ctx context.Context, userID int64) ([]*storage.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.ListExercises(ctx, userID)
}

func (r *Repository) UpdateExercise(ctx context.Context, e *storage.Exercise) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.UpdateExercise(ctx, e)
}

func (r *Repository) DeleteExercise(ctx context.Context, userID int64, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.DeleteExercise(ctx, userID, uuid)
}

func (r *Repository) AddWorkoutExercise(ctx context.Context, we *storage.WorkoutExercise) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.AddWorkoutExercise(ctx, we)
}

func (r *Repository) RemoveWorkoutExercise(ctx context.Context, userID, workoutID, exerciseID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.RemoveWorkoutExercise(ctx, userID, workoutID, exerciseID)
}

func (r *Repository) ListWorkoutExercises(ctx context.Context, userID, workoutID int64) ([]*storage.WorkoutExerciseEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.d.ListWorkoutExercises(ctx, userID, workoutID)
}
