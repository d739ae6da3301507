package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmcleod/liftlog/storage"
)

// queries implements storage.Tx over either the pool or a transaction.
type queries struct {
	db dbtx
}

var _ storage.Tx = (*queries)(nil)

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = `id, uuid, email, password_hash, created_at, updated_at`

func scanUser(row *sql.Row) (*storage.User, error) {
	var u storage.User
	if err := row.Scan(&u.ID, &u.UUID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) CreateUser(ctx context.Context, u *storage.User) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO users (uuid, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		u.UUID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt).Scan(&u.ID)
	return translate("inserting user", err)
}

func (q *queries) UserByEmail(ctx context.Context, email string) (*storage.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, translate("selecting user by email", err)
	}
	return u, nil
}

func (q *queries) UserByID(ctx context.Context, id int64) (*storage.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate("selecting user by id", err)
	}
	return u, nil
}

// DeleteUser relies on ON DELETE CASCADE for sessions, workouts, exercises
// and workout exercises.
func (q *queries) DeleteUser(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translate("deleting user", err)
	}
	return affected("deleting user", res)
}

// ---------------------------------------------------------------------------
// Temporary sessions
// ---------------------------------------------------------------------------

func (q *queries) CreateTempSession(ctx context.Context, ts *storage.TempSession) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO temp_sessions (session_id, csrf_token, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		ts.SessionID, ts.CSRFToken, ts.CreatedAt, ts.ExpiresAt).Scan(&ts.ID)
	return translate("inserting temp session", err)
}

func (q *queries) FindTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) (*storage.TempSession, error) {
	var ts storage.TempSession
	err := q.db.QueryRowContext(ctx,
		`SELECT id, session_id, csrf_token, created_at, expires_at
		 FROM temp_sessions
		 WHERE session_id = $1 AND csrf_token = $2 AND expires_at > $3`,
		sessionID, csrfToken, now).Scan(&ts.ID, &ts.SessionID, &ts.CSRFToken, &ts.CreatedAt, &ts.ExpiresAt)
	if err != nil {
		return nil, translate("selecting temp session", err)
	}
	return &ts, nil
}

func (q *queries) ConsumeTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM temp_sessions
		 WHERE session_id = $1 AND csrf_token = $2 AND expires_at > $3`,
		sessionID, csrfToken, now)
	if err != nil {
		return translate("consuming temp session", err)
	}
	return affected("consuming temp session", res)
}

func (q *queries) DeleteTempSession(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM temp_sessions WHERE session_id = $1`, sessionID)
	return translate("deleting temp session", err)
}

func (q *queries) DeleteExpiredTempSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM temp_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, translate("sweeping temp sessions", err)
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (q *queries) CreateSession(ctx context.Context, s *storage.Session) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO sessions (user_id, token, csrf_token, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		s.UserID, s.Token, s.CSRFToken, s.CreatedAt, s.ExpiresAt).Scan(&s.ID)
	return translate("inserting session", err)
}

func (q *queries) FindSession(ctx context.Context, token string, now time.Time) (*storage.Session, error) {
	var s storage.Session
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, csrf_token, created_at, expires_at
		 FROM sessions
		 WHERE token = $1 AND expires_at > $2`,
		token, now).Scan(&s.ID, &s.UserID, &s.Token, &s.CSRFToken, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, translate("selecting session", err)
	}
	return &s, nil
}

func (q *queries) DeleteSession(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return translate("deleting session", err)
}

func (q *queries) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, translate("sweeping sessions", err)
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// Workouts
// ---------------------------------------------------------------------------

const resourceColumns = `id, uuid, user_id, name, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row rowScanner) (*storage.Workout, error) {
	var w storage.Workout
	var desc sql.NullString
	if err := row.Scan(&w.ID, &w.UUID, &w.UserID, &w.Name, &desc, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Description = stringPtr(desc)
	return &w, nil
}

func (q *queries) CreateWorkout(ctx context.Context, w *storage.Workout) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO workouts (uuid, user_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		w.UUID, w.UserID, w.Name, nullString(w.Description), w.CreatedAt, w.UpdatedAt).Scan(&w.ID)
	return translate("inserting workout", err)
}

func (q *queries) Workout(ctx context.Context, userID int64, uuid string) (*storage.Workout, error) {
	w, err := scanWorkout(q.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM workouts WHERE uuid = $1 AND user_id = $2`, uuid, userID))
	if err != nil {
		return nil, translate("selecting workout", err)
	}
	return w, nil
}

func (q *queries) ListWorkouts(ctx context.Context, userID int64) ([]*storage.Workout, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM workouts WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, translate("listing workouts", err)
	}
	defer rows.Close()

	out := []*storage.Workout{}
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, translate("scanning workout", err)
		}
		out = append(out, w)
	}
	return out, translate("listing workouts", rows.Err())
}

func (q *queries) UpdateWorkout(ctx context.Context, w *storage.Workout) error {
	err := q.db.QueryRowContext(ctx,
		`UPDATE workouts SET name = $1, description = $2, updated_at = $3
		 WHERE uuid = $4 AND user_id = $5
		 RETURNING id, created_at`,
		w.Name, nullString(w.Description), w.UpdatedAt, w.UUID, w.UserID).Scan(&w.ID, &w.CreatedAt)
	return translate("updating workout", err)
}

func (q *queries) DeleteWorkout(ctx context.Context, userID int64, uuid string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM workouts WHERE uuid = $1 AND user_id = $2`, uuid, userID)
	if err != nil {
		return translate("deleting workout", err)
	}
	return affected("deleting workout", res)
}

// ---------------------------------------------------------------------------
// Exercises
// ---------------------------------------------------------------------------

func scanExercise(row rowScanner) (*storage.Exercise, error) {
	var e storage.Exercise
	var desc sql.NullString
	if err := row.Scan(&e.ID, &e.UUID, &e.UserID, &e.Name, &desc, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Description = stringPtr(desc)
	return &e, nil
}

func (q *queries) CreateExercise(ctx context.Context, e *storage.Exercise) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO exercises (uuid, user_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		e.UUID, e.UserID, e.Name, nullString(e.Description), e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	return translate("inserting exercise", err)
}

func (q *queries) Exercise(ctx context.Context, userID int64, uuid string) (*storage.Exercise, error) {
	e, err := scanExercise(q.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM exercises WHERE uuid = $1 AND user_id = $2`, uuid, userID))
	if err != nil {
		return nil, translate("selecting exercise", err)
	}
	return e, nil
}

func (q *queries) ListExercises(ctx context.Context, userID int64) ([]*storage.Exercise, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM exercises WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, translate("listing exercises", err)
	}
	defer rows.Close()

	out := []*storage.Exercise{}
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, translate("scanning exercise", err)
		}
		out = append(out, e)
	}
	return out, translate("listing exercises", rows.Err())
}

func (q *queries) UpdateExercise(ctx context.Context, e *storage.Exercise) error {
	err := q.db.QueryRowContext(ctx,
		`UPDATE exercises SET name = $1, description = $2, updated_at = $3
		 WHERE uuid = $4 AND user_id = $5
		 RETURNING id, created_at`,
		e.Name, nullString(e.Description), e.UpdatedAt, e.UUID, e.UserID).Scan(&e.ID, &e.CreatedAt)
	return translate("updating exercise", err)
}

func (q *queries) DeleteExercise(ctx context.Context, userID int64, uuid string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM exercises WHERE uuid = $1 AND user_id = $2`, uuid, userID)
	if err != nil {
		return translate("deleting exercise", err)
	}
	return affected("deleting exercise", res)
}

// ---------------------------------------------------------------------------
// Workout exercises
// ---------------------------------------------------------------------------

// AddWorkoutExercise inserts the link only when both sides belong to the user.
func (q *queries) AddWorkoutExercise(ctx context.Context, we *storage.WorkoutExercise) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO workout_exercises (workout_id, exercise_id, user_id, position)
		 SELECT $1::bigint, $2::bigint, $3::bigint, $4::integer
		 WHERE EXISTS (SELECT 1 FROM workouts WHERE id = $1 AND user_id = $3)
		   AND EXISTS (SELECT 1 FROM exercises WHERE id = $2 AND user_id = $3)`,
		we.WorkoutID, we.ExerciseID, we.UserID, we.Position)
	if err != nil {
		return translate("linking exercise", err)
	}
	return affected("linking exercise", res)
}

func (q *queries) RemoveWorkoutExercise(ctx context.Context, userID, workoutID, exerciseID int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM workout_exercises
		 WHERE workout_id = $1 AND exercise_id = $2 AND user_id = $3`,
		workoutID, exerciseID, userID)
	if err != nil {
		return translate("unlinking exercise", err)
	}
	return affected("unlinking exercise", res)
}

func (q *queries) ListWorkoutExercises(ctx context.Context, userID, workoutID int64) ([]*storage.WorkoutExerciseEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT e.id, e.uuid, e.user_id, e.name, e.description, e.created_at, e.updated_at, we.position
		 FROM workout_exercises we
		 JOIN exercises e ON e.id = we.exercise_id
		 WHERE we.workout_id = $1 AND we.user_id = $2
		 ORDER BY we.position, e.id`,
		workoutID, userID)
	if err != nil {
		return nil, translate("listing workout exercises", err)
	}
	defer rows.Close()

	out := []*storage.WorkoutExerciseEntry{}
	for rows.Next() {
		var e storage.Exercise
		var desc sql.NullString
		var pos int
		if err := rows.Scan(&e.ID, &e.UUID, &e.UserID, &e.Name, &desc, &e.CreatedAt, &e.UpdatedAt, &pos); err != nil {
			return nil, translate("scanning workout exercise", err)
		}
		e.Description = stringPtr(desc)
		out = append(out, &storage.WorkoutExerciseEntry{Exercise: &e, Position: pos})
	}
	return out, translate("listing workout exercises", rows.Err())
}
