// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/liftlog/storage"
)

var (
	bucketUsers            = []byte("users")
	bucketUsersByEmail     = []byte("users_by_email")
	bucketTempSessions     = []byte("temp_sessions")
	bucketSessions         = []byte("sessions")
	bucketWorkouts         = []byte("workouts")
	bucketExercises        = []byte("exercises")
	bucketWorkoutExercises = []byte("workout_exercises")

	// Expiry indexes map expiresAt (8 bytes, big endian) + primary key to
	// the primary key, so expired rows are found with a cursor instead of a
	// full scan.
	bucketTempSessionsByExpiry = []byte("temp_sessions_by_expiry")
	bucketSessionsByExpiry     = []byte("sessions_by_expiry")
)

var allBuckets = [][]byte{
	bucketUsers, bucketUsersByEmail, bucketTempSessions, bucketSessions,
	bucketWorkouts, bucketExercises, bucketWorkoutExercises,
}

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database,
// creating any missing buckets.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		if err := ensureExpiryIndex(tx, bucketTempSessionsByExpiry, bucketTempSessions, func(ts *storage.TempSession) time.Time { return ts.ExpiresAt }); err != nil {
			return err
		}
		return ensureExpiryIndex(tx, bucketSessionsByExpiry, bucketSessions, func(s *storage.Session) time.Time { return s.ExpiresAt })
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside a single read-write transaction. Returning an error
// from fn rolls the transaction back.
func (s *Store) Atomic(_ context.Context, fn func(tx storage.Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (s *Store) update(fn func(t *boltTx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error { return fn(&boltTx{tx: tx}) })
}

func (s *Store) view(fn func(t *boltTx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error { return fn(&boltTx{tx: tx}) })
}

// boltTx implements storage.Tx on top of an open bbolt transaction.
type boltTx struct {
	tx *bbolt.Tx
}

var _ storage.Tx = (*boltTx)(nil)

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func linkKey(workoutID, exerciseID int64) []byte {
	return append(itob(workoutID), itob(exerciseID)...)
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func get(b *bbolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func nextID(b *bbolt.Bucket) (int64, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return int64(seq), nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (t *boltTx) CreateUser(_ context.Context, u *storage.User) error {
	idx := t.tx.Bucket(bucketUsersByEmail)
	if idx.Get([]byte(u.Email)) != nil {
		return fmt.Errorf("user %s: %w", u.Email, storage.ErrDuplicate)
	}
	b := t.tx.Bucket(bucketUsers)
	id, err := nextID(b)
	if err != nil {
		return err
	}
	u.ID = id
	if err := put(b, itob(id), u); err != nil {
		return err
	}
	return idx.Put([]byte(u.Email), itob(id))
}

func (t *boltTx) UserByEmail(ctx context.Context, email string) (*storage.User, error) {
	id := t.tx.Bucket(bucketUsersByEmail).Get([]byte(email))
	if id == nil {
		return nil, storage.ErrNotFound
	}
	return t.UserByID(ctx, int64(binary.BigEndian.Uint64(id)))
}

func (t *boltTx) UserByID(_ context.Context, id int64) (*storage.User, error) {
	var u storage.User
	ok, err := get(t.tx.Bucket(bucketUsers), itob(id), &u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (t *boltTx) DeleteUser(ctx context.Context, id int64) error {
	u, err := t.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := t.tx.Bucket(bucketUsers).Delete(itob(id)); err != nil {
		return err
	}
	if err := t.tx.Bucket(bucketUsersByEmail).Delete([]byte(u.Email)); err != nil {
		return err
	}
	if err := t.deleteUserSessions(id); err != nil {
		return err
	}
	if err := deleteWhere(t.tx.Bucket(bucketWorkouts), func(w *storage.Workout) bool { return w.UserID == id }); err != nil {
		return err
	}
	if err := deleteWhere(t.tx.Bucket(bucketExercises), func(e *storage.Exercise) bool { return e.UserID == id }); err != nil {
		return err
	}
	return deleteWhere(t.tx.Bucket(bucketWorkoutExercises), func(l *storage.WorkoutExercise) bool { return l.UserID == id })
}

// deleteWhere removes every value in b that decodes into T and satisfies match.
func deleteWhere[T any](b *bbolt.Bucket, match func(*T) bool) error {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if match(&rec) {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func expiryKey(expiresAt time.Time, key []byte) []byte {
	return append(itob(expiresAt.UnixNano()), key...)
}

// deleteExpired walks idx in expiry order up to now and removes the rows of
// data it points at. Index entries whose row is gone are dropped without
// counting.
func deleteExpired[T any](data, idx *bbolt.Bucket, now time.Time, expired func(*T) bool) (int64, error) {
	limit := now.UnixNano()
	var keys [][]byte
	c := idx.Cursor()
	for k, _ := c.First(); k != nil && len(k) >= 8; k, _ = c.Next() {
		if int64(binary.BigEndian.Uint64(k[:8])) > limit {
			break
		}
		keys = append(keys, append([]byte(nil), k...))
	}

	var n int64
	for _, k := range keys {
		var rec T
		ok, err := get(data, k[8:], &rec)
		if err != nil {
			return 0, err
		}
		if ok && !expired(&rec) {
			continue
		}
		if err := idx.Delete(k); err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if err := data.Delete(k[8:]); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// ensureExpiryIndex creates the index bucket and fills it from data when the
// bucket did not exist yet, as in databases written before the index.
func ensureExpiryIndex[T any](tx *bbolt.Tx, name, data []byte, expiresAt func(*T) time.Time) error {
	if tx.Bucket(name) != nil {
		return nil
	}
	idx, err := tx.CreateBucket(name)
	if err != nil {
		return fmt.Errorf("creating bucket %s: %w", name, err)
	}
	return tx.Bucket(data).ForEach(func(k, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		key := append([]byte(nil), k...)
		return idx.Put(expiryKey(expiresAt(&rec), key), key)
	})
}

// ---------------------------------------------------------------------------
// Temporary sessions
// ---------------------------------------------------------------------------

func (t *boltTx) CreateTempSession(_ context.Context, ts *storage.TempSession) error {
	b := t.tx.Bucket(bucketTempSessions)
	if b.Get([]byte(ts.SessionID)) != nil {
		return storage.ErrDuplicate
	}
	id, err := nextID(b)
	if err != nil {
		return err
	}
	ts.ID = id
	if err := put(b, []byte(ts.SessionID), ts); err != nil {
		return err
	}
	return t.tx.Bucket(bucketTempSessionsByExpiry).Put(expiryKey(ts.ExpiresAt, []byte(ts.SessionID)), []byte(ts.SessionID))
}

func (t *boltTx) FindTempSession(_ context.Context, sessionID, csrfToken string, now time.Time) (*storage.TempSession, error) {
	var ts storage.TempSession
	ok, err := get(t.tx.Bucket(bucketTempSessions), []byte(sessionID), &ts)
	if err != nil {
		return nil, err
	}
	if !ok || ts.CSRFToken != csrfToken || ts.Expired(now) {
		return nil, storage.ErrNotFound
	}
	return &ts, nil
}

func (t *boltTx) ConsumeTempSession(ctx context.Context, sessionID, csrfToken string, now time.Time) error {
	ts, err := t.FindTempSession(ctx, sessionID, csrfToken, now)
	if err != nil {
		return err
	}
	return t.deleteTempSession(ts)
}

func (t *boltTx) DeleteTempSession(_ context.Context, sessionID string) error {
	var ts storage.TempSession
	ok, err := get(t.tx.Bucket(bucketTempSessions), []byte(sessionID), &ts)
	if err != nil || !ok {
		return err
	}
	return t.deleteTempSession(&ts)
}

func (t *boltTx) deleteTempSession(ts *storage.TempSession) error {
	key := []byte(ts.SessionID)
	if err := t.tx.Bucket(bucketTempSessionsByExpiry).Delete(expiryKey(ts.ExpiresAt, key)); err != nil {
		return err
	}
	return t.tx.Bucket(bucketTempSessions).Delete(key)
}

func (t *boltTx) DeleteExpiredTempSessions(_ context.Context, now time.Time) (int64, error) {
	return deleteExpired(t.tx.Bucket(bucketTempSessions), t.tx.Bucket(bucketTempSessionsByExpiry), now,
		func(ts *storage.TempSession) bool { return ts.Expired(now) })
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (t *boltTx) CreateSession(ctx context.Context, s *storage.Session) error {
	b := t.tx.Bucket(bucketSessions)
	if b.Get([]byte(s.Token)) != nil {
		return storage.ErrDuplicate
	}
	if _, err := t.UserByID(ctx, s.UserID); err != nil {
		return err
	}
	id, err := nextID(b)
	if err != nil {
		return err
	}
	s.ID = id
	if err := put(b, []byte(s.Token), s); err != nil {
		return err
	}
	return t.tx.Bucket(bucketSessionsByExpiry).Put(expiryKey(s.ExpiresAt, []byte(s.Token)), []byte(s.Token))
}

func (t *boltTx) FindSession(_ context.Context, token string, now time.Time) (*storage.Session, error) {
	var s storage.Session
	ok, err := get(t.tx.Bucket(bucketSessions), []byte(token), &s)
	if err != nil {
		return nil, err
	}
	if !ok || s.Expired(now) {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

func (t *boltTx) DeleteSession(_ context.Context, token string) error {
	var s storage.Session
	ok, err := get(t.tx.Bucket(bucketSessions), []byte(token), &s)
	if err != nil || !ok {
		return err
	}
	return t.deleteSession(&s)
}

func (t *boltTx) deleteSession(s *storage.Session) error {
	key := []byte(s.Token)
	if err := t.tx.Bucket(bucketSessionsByExpiry).Delete(expiryKey(s.ExpiresAt, key)); err != nil {
		return err
	}
	return t.tx.Bucket(bucketSessions).Delete(key)
}

func (t *boltTx) deleteUserSessions(userID int64) error {
	var owned []*storage.Session
	err := t.tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
		var s storage.Session
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		if s.UserID == userID {
			owned = append(owned, &s)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, s := range owned {
		if err := t.deleteSession(s); err != nil {
			return err
		}
	}
	return nil
}

func (t *boltTx) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	return deleteExpired(t.tx.Bucket(bucketSessions), t.tx.Bucket(bucketSessionsByExpiry), now,
		func(s *storage.Session) bool { return s.Expired(now) })
}

// ---------------------------------------------------------------------------
// Workouts and exercises
// ---------------------------------------------------------------------------

// owned is a record keyed by numeric ID that belongs to a user.
type owned interface {
	storage.Workout | storage.Exercise
}

func ownerOf[T owned](rec *T) (userID int64, uuid string, id int64) {
	switch r := any(rec).(type) {
	case *storage.Workout:
		return r.UserID, r.UUID, r.ID
	case *storage.Exercise:
		return r.UserID, r.UUID, r.ID
	}
	return 0, "", 0
}

func findOwned[T owned](b *bbolt.Bucket, userID int64, uuid string) (*T, error) {
	var found *T
	err := b.ForEach(func(_, v []byte) error {
		if found != nil {
			return nil
		}
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if uid, u, _ := ownerOf(&rec); uid == userID && u == uuid {
			found = &rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func listOwned[T owned](b *bbolt.Bucket, userID int64) ([]*T, error) {
	out := []*T{}
	err := b.ForEach(func(_, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if uid, _, _ := ownerOf(&rec); uid == userID {
			out = append(out, &rec)
		}
		return nil
	})
	// Keys are big-endian IDs so ForEach already yields ID order.
	return out, err
}

func (t *boltTx) CreateWorkout(_ context.Context, w *storage.Workout) error {
	b := t.tx.Bucket(bucketWorkouts)
	id, err := nextID(b)
	if err != nil {
		return err
	}
	w.ID = id
	return put(b, itob(id), w)
}

func (t *boltTx) Workout(_ context.Context, userID int64, uuid string) (*storage.Workout, error) {
	return findOwned[storage.Workout](t.tx.Bucket(bucketWorkouts), userID, uuid)
}

func (t *boltTx) ListWorkouts(_ context.Context, userID int64) ([]*storage.Workout, error) {
	return listOwned[storage.Workout](t.tx.Bucket(bucketWorkouts), userID)
}

func (t *boltTx) UpdateWorkout(_ context.Context, w *storage.Workout) error {
	b := t.tx.Bucket(bucketWorkouts)
	existing, err := findOwned[storage.Workout](b, w.UserID, w.UUID)
	if err != nil {
		return err
	}
	w.ID = existing.ID
	w.CreatedAt = existing.CreatedAt
	return put(b, itob(w.ID), w)
}

func (t *boltTx) DeleteWorkout(_ context.Context, userID int64, uuid string) error {
	b := t.tx.Bucket(bucketWorkouts)
	w, err := findOwned[storage.Workout](b, userID, uuid)
	if err != nil {
		return err
	}
	if err := b.Delete(itob(w.ID)); err != nil {
		return err
	}
	return deleteWhere(t.tx.Bucket(bucketWorkoutExercises), func(l *storage.WorkoutExercise) bool { return l.WorkoutID == w.ID })
}

func (t *boltTx) CreateExercise(_ context.Context, e *storage.Exercise) error {
	b := t.tx.Bucket(bucketExercises)
	id, err := nextID(b)
	if err != nil {
		return err
	}
	e.ID = id
	return put(b, itob(id), e)
}

func (t *boltTx) Exercise(_ context.Context, userID int64, uuid string) (*storage.Exercise, error) {
	return findOwned[storage.Exercise](t.tx.Bucket(bucketExercises), userID, uuid)
}

func (t *boltTx) ListExercises(_ context.Context, userID int64) ([]*storage.Exercise, error) {
	return listOwned[storage.Exercise](t.tx.Bucket(bucketExercises), userID)
}

func (t *boltTx) UpdateExercise(_ context.Context, e *storage.Exercise) error {
	b := t.tx.Bucket(bucketExercises)
	existing, err := findOwned[storage.Exercise](b, e.UserID, e.UUID)
	if err != nil {
		return err
	}
	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt
	return put(b, itob(e.ID), e)
}

func (t *boltTx) DeleteExercise(_ context.Context, userID int64, uuid string) error {
	b := t.tx.Bucket(bucketExercises)
	e, err := findOwned[storage.Exercise](b, userID, uuid)
	if err != nil {
		return err
	}
	if err := b.Delete(itob(e.ID)); err != nil {
		return err
	}
	return deleteWhere(t.tx.Bucket(bucketWorkoutExercises), func(l *storage.WorkoutExercise) bool { return l.ExerciseID == e.ID })
}

// ---------------------------------------------------------------------------
// Workout exercises
// ---------------------------------------------------------------------------

func (t *boltTx) AddWorkoutExercise(_ context.Context, we *storage.WorkoutExercise) error {
	var w storage.Workout
	ok, err := get(t.tx.Bucket(bucketWorkouts), itob(we.WorkoutID), &w)
	if err != nil {
		return err
	}
	if !ok || w.UserID != we.UserID {
		return storage.ErrNotFound
	}
	var e storage.Exercise
	ok, err = get(t.tx.Bucket(bucketExercises), itob(we.ExerciseID), &e)
	if err != nil {
		return err
	}
	if !ok || e.UserID != we.UserID {
		return storage.ErrNotFound
	}
	b := t.tx.Bucket(bucketWorkoutExercises)
	key := linkKey(we.WorkoutID, we.ExerciseID)
	if b.Get(key) != nil {
		return storage.ErrDuplicate
	}
	return put(b, key, we)
}

func (t *boltTx) RemoveWorkoutExercise(_ context.Context, userID, workoutID, exerciseID int64) error {
	b := t.tx.Bucket(bucketWorkoutExercises)
	key := linkKey(workoutID, exerciseID)
	var l storage.WorkoutExercise
	ok, err := get(b, key, &l)
	if err != nil {
		return err
	}
	if !ok || l.UserID != userID {
		return storage.ErrNotFound
	}
	return b.Delete(key)
}

func (t *boltTx) ListWorkoutExercises(_ context.Context, userID, workoutID int64) ([]*storage.WorkoutExerciseEntry, error) {
	exercises := t.tx.Bucket(bucketExercises)
	out := []*storage.WorkoutExerciseEntry{}
	prefix := itob(workoutID)
	c := t.tx.Bucket(bucketWorkoutExercises).Cursor()
	for k, v := c.Seek(prefix); k != nil && len(k) == 16 && string(k[:8]) == string(prefix); k, v = c.Next() {
		var l storage.WorkoutExercise
		if err := json.Unmarshal(v, &l); err != nil {
			return nil, err
		}
		if l.UserID != userID {
			continue
		}
		var e storage.Exercise
		ok, err := get(exercises, itob(l.ExerciseID), &e)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, &storage.WorkoutExerciseEntry{Exercise: &e, Position: l.Position})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Exercise.ID < out[j].Exercise.ID
	})
	return out, nil
}
