package bbolt

import (
	"context"
	"time"

	"github.com/jmcleod/liftlog/storage"
)

// Each Store method runs in its own bbolt transaction. Use Atomic to group
// several calls.

func (s *Store) CreateUser(ctx context.Context, u *storage.User) error {
	return s.update(func(t *boltTx) error { return t.CreateUser(ctx, u) })
}

func (s *Store) UserByEmail(ctx context.Context, email string) (u *storage.User, err error) {
	err = s.view(func(t *boltTx) error { u, err = t.UserByEmail(ctx, email); return err })
	return u, err
}

func (s *Store) UserByID(ctx context.Context, id int64) (u *storage.User, err error) {
	err = s.view(func(t *boltTx) error { u, err = t.UserByID(ctx, id); return err })
	return u, err
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.update(func(t *boltTx) error { return t.DeleteUser(ctx, id) })
}

func (s *Store) CreateTempSession(ctx context.Context, ts *storage.TempSession) error {
	return s.update(func(t *boltTx) error { return t.CreateTempSession(ctx, ts) })
}

func (s *Store) FindTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) (ts *storage.TempSession, err error) {
	err = s.view(func(t *boltTx) error { ts, err = t.FindTempSession(ctx, sessionID, csrfToken, now); return err })
	return ts, err
}

func (s *Store) ConsumeTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) error {
	return s.update(func(t *boltTx) error { return t.ConsumeTempSession(ctx, sessionID, csrfToken, now) })
}

func (s *Store) DeleteTempSession(ctx context.Context, sessionID string) error {
	return s.update(func(t *boltTx) error { return t.DeleteTempSession(ctx, sessionID) })
}

func (s *Store) DeleteExpiredTempSessions(ctx context.Context, now time.Time) (n int64, err error) {
	err = s.update(func(t *boltTx) error { n, err = t.DeleteExpiredTempSessions(ctx, now); return err })
	return n, err
}

func (s *Store) CreateSession(ctx context.Context, sess *storage.Session) error {
	return s.update(func(t *boltTx) error { return t.CreateSession(ctx, sess) })
}

func (s *Store) FindSession(ctx context.Context, token string, now time.Time) (sess *storage.Session, err error) {
	err = s.view(func(t *boltTx) error { sess, err = t.FindSession(ctx, token, now); return err })
	return sess, err
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	return s.update(func(t *boltTx) error { return t.DeleteSession(ctx, token) })
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (n int64, err error) {
	err = s.update(func(t *boltTx) error { n, err = t.DeleteExpiredSessions(ctx, now); return err })
	return n, err
}

func (s *Store) CreateWorkout(ctx context.Context, w *storage.Workout) error {
	return s.update(func(t *boltTx) error { return t.CreateWorkout(ctx, w) })
}

func (s *Store) Workout(ctx context.Context, userID int64, uuid string) (w *storage.Workout, err error) {
	err = s.view(func(t *boltTx) error { w, err = t.Workout(ctx, userID, uuid); return err })
	return w, err
}

func (s *Store) ListWorkouts(ctx context.Context, userID int64) (ws []*storage.Workout, err error) {
	err = s.view(func(t *boltTx) error { ws, err = t.ListWorkouts(ctx, userID); return err })
	return ws, err
}

func (s *Store) UpdateWorkout(ctx context.Context, w *storage.Workout) error {
	return s.update(func(t *boltTx) error { return t.UpdateWorkout(ctx, w) })
}

func (s *Store) DeleteWorkout(ctx context.Context, userID int64, uuid string) error {
	return s.update(func(t *boltTx) error { return t.DeleteWorkout(ctx, userID, uuid) })
}

func (s *Store) CreateExercise(ctx context.Context, e *storage.Exercise) error {
	return s.update(func(t *boltTx) error { return t.CreateExercise(ctx, e) })
}

func (s *Store) Exercise(ctx context.Context, userID int64, uuid string) (e *storage.Exercise, err error) {
	err = s.view(func(t *boltTx) error { e, err = t.Exercise(ctx, userID, uuid); return err })
	return e, err
}

func (s *Store) ListExercises(ctx context.Context, userID int64) (es []*storage.Exercise, err error) {
	err = s.view(func(t *boltTx) error { es, err = t.ListExercises(ctx, userID); return err })
	return es, err
}

func (s *Store) UpdateExercise(ctx context.Context, e *storage.Exercise) error {
	return s.update(func(t *boltTx) error { return t.UpdateExercise(ctx, e) })
}

func (s *Store) DeleteExercise(ctx context.Context, userID int64, uuid string) error {
	return s.update(func(t *boltTx) error { return t.DeleteExercise(ctx, userID, uuid) })
}

func (s *Store) AddWorkoutExercise(ctx context.Context, we *storage.WorkoutExercise) error {
	return s.update(func(t *boltTx) error { return t.AddWorkoutExercise(ctx, we) })
}

func (s *Store) RemoveWorkoutExercise(ctx context.Context, userID, workoutID, exerciseID int64) error {
	return s.update(func(t *boltTx) error { return t.RemoveWorkoutExercise(ctx, userID, workoutID, exerciseID) })
}

func (s *Store) ListWorkoutExercises(ctx context.Context, userID, workoutID int64) (entries []*storage.WorkoutExerciseEntry, err error) {
	err = s.view(func(t *boltTx) error { entries, err = t.ListWorkoutExercises(ctx, userID, workoutID); return err })
	return entries, err
}
