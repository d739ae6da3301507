// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmcleod/liftlog/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu sync.RWMutex
	d  *dataset
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{d: newDataset()}
}

// Close is a no-op.
func (r *Repository) Close() error { return nil }

// Atomic runs fn with exclusive access to the data. If fn returns an error
// every write it made is rolled back.
func (r *Repository) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := r.d
	lastID := d.lastID
	d.journal = &journal{}
	defer func() { d.journal = nil }()

	if err := fn(d); err != nil {
		d.journal.rollback()
		d.lastID = lastID
		return err
	}
	return nil
}

// journal records how to undo each map write made inside Atomic, so a
// rollback touches only the rows the transaction changed.
type journal struct {
	undo []func()
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// track saves the current state of m[k] before it is overwritten or
// deleted. Outside Atomic it does nothing.
func track[K comparable, V any](d *dataset, m map[K]V, k K) {
	if d.journal == nil {
		return
	}
	old, existed := m[k]
	d.journal.undo = append(d.journal.undo, func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

type linkKey struct {
	workoutID  int64
	exerciseID int64
}

// dataset holds the tables. Its methods implement storage.Tx and assume the
// caller holds the repository lock.
type dataset struct {
	lastID    int64
	users     map[int64]*storage.User
	temp      map[string]*storage.TempSession
	sessions  map[string]*storage.Session
	workouts  map[int64]*storage.Workout
	exercises map[int64]*storage.Exercise
	links     map[linkKey]*storage.WorkoutExercise

	// journal is non-nil while an Atomic call is running.
	journal *journal
}

var _ storage.Tx = (*dataset)(nil)

func newDataset() *dataset {
	return &dataset{
		users:     make(map[int64]*storage.User),
		temp:      make(map[string]*storage.TempSession),
		sessions:  make(map[string]*storage.Session),
		workouts:  make(map[int64]*storage.Workout),
		exercises: make(map[int64]*storage.Exercise),
		links:     make(map[linkKey]*storage.WorkoutExercise),
	}
}

func (d *dataset) nextID() int64 {
	d.lastID++
	return d.lastID
}

func cloneUser(u *storage.User) *storage.User {
	cp := *u
	return &cp
}

func cloneWorkout(w *storage.Workout) *storage.Workout {
	cp := *w
	cp.Description = storage.CloneString(w.Description)
	return &cp
}

func cloneExercise(e *storage.Exercise) *storage.Exercise {
	cp := *e
	cp.Description = storage.CloneString(e.Description)
	return &cp
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (d *dataset) CreateUser(_ context.Context, u *storage.User) error {
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return storage.ErrDuplicate
		}
	}
	u.ID = d.nextID()
	track(d, d.users, u.ID)
	d.users[u.ID] = cloneUser(u)
	return nil
}

func (d *dataset) UserByEmail(_ context.Context, email string) (*storage.User, error) {
	for _, u := range d.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (d *dataset) UserByID(_ context.Context, id int64) (*storage.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneUser(u), nil
}

func (d *dataset) DeleteUser(_ context.Context, id int64) error {
	if _, ok := d.users[id]; !ok {
		return storage.ErrNotFound
	}
	track(d, d.users, id)
	delete(d.users, id)
	for k, s := range d.sessions {
		if s.UserID == id {
			track(d, d.sessions, k)
			delete(d.sessions, k)
		}
	}
	for k, w := range d.workouts {
		if w.UserID == id {
			track(d, d.workouts, k)
			delete(d.workouts, k)
		}
	}
	for k, e := range d.exercises {
		if e.UserID == id {
			track(d, d.exercises, k)
			delete(d.exercises, k)
		}
	}
	for k, l := range d.links {
		if l.UserID == id {
			track(d, d.links, k)
			delete(d.links, k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Temporary sessions
// ---------------------------------------------------------------------------

func (d *dataset) CreateTempSession(_ context.Context, ts *storage.TempSession) error {
	if _, ok := d.temp[ts.SessionID]; ok {
		return storage.ErrDuplicate
	}
	ts.ID = d.nextID()
	cp := *ts
	track(d, d.temp, ts.SessionID)
	d.temp[ts.SessionID] = &cp
	return nil
}

func (d *dataset) FindTempSession(_ context.Context, sessionID, csrfToken string, now time.Time) (*storage.TempSession, error) {
	ts, ok := d.temp[sessionID]
	if !ok || ts.CSRFToken != csrfToken || ts.Expired(now) {
		return nil, storage.ErrNotFound
	}
	cp := *ts
	return &cp, nil
}

func (d *dataset) ConsumeTempSession(_ context.Context, sessionID, csrfToken string, now time.Time) error {
	ts, ok := d.temp[sessionID]
	if !ok || ts.CSRFToken != csrfToken || ts.Expired(now) {
		return storage.ErrNotFound
	}
	track(d, d.temp, sessionID)
	delete(d.temp, sessionID)
	return nil
}

func (d *dataset) DeleteTempSession(_ context.Context, sessionID string) error {
	track(d, d.temp, sessionID)
	delete(d.temp, sessionID)
	return nil
}

func (d *dataset) DeleteExpiredTempSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, ts := range d.temp {
		if ts.Expired(now) {
			track(d, d.temp, k)
			delete(d.temp, k)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (d *dataset) CreateSession(_ context.Context, s *storage.Session) error {
	if _, ok := d.sessions[s.Token]; ok {
		return storage.ErrDuplicate
	}
	if _, ok := d.users[s.UserID]; !ok {
		return storage.ErrNotFound
	}
	s.ID = d.nextID()
	cp := *s
	track(d, d.sessions, s.Token)
	d.sessions[s.Token] = &cp
	return nil
}

func (d *dataset) FindSession(_ context.Context, token string, now time.Time) (*storage.Session, error) {
	s, ok := d.sessions[token]
	if !ok || s.Expired(now) {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (d *dataset) DeleteSession(_ context.Context, token string) error {
	track(d, d.sessions, token)
	delete(d.sessions, token)
	return nil
}

func (d *dataset) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, s := range d.sessions {
		if s.Expired(now) {
			track(d, d.sessions, k)
			delete(d.sessions, k)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Workouts
// ---------------------------------------------------------------------------

func (d *dataset) CreateWorkout(_ context.Context, w *storage.Workout) error {
	w.ID = d.nextID()
	track(d, d.workouts, w.ID)
	d.workouts[w.ID] = cloneWorkout(w)
	return nil
}

func (d *dataset) findWorkout(userID int64, uuid string) (*storage.Workout, bool) {
	for _, w := range d.workouts {
		if w.UserID == userID && w.UUID == uuid {
			return w, true
		}
	}
	return nil, false
}

func (d *dataset) Workout(_ context.Context, userID int64, uuid string) (*storage.Workout, error) {
	w, ok := d.findWorkout(userID, uuid)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWorkout(w), nil
}

func (d *dataset) ListWorkouts(_ context.Context, userID int64) ([]*storage.Workout, error) {
	out := []*storage.Workout{}
	for _, w := range d.workouts {
		if w.UserID == userID {
			out = append(out, cloneWorkout(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *dataset) UpdateWorkout(_ context.Context, w *storage.Workout) error {
	existing, ok := d.findWorkout(w.UserID, w.UUID)
	if !ok {
		return storage.ErrNotFound
	}
	w.ID = existing.ID
	w.CreatedAt = existing.CreatedAt
	track(d, d.workouts, w.ID)
	d.workouts[w.ID] = cloneWorkout(w)
	return nil
}

func (d *dataset) DeleteWorkout(_ context.Context, userID int64, uuid string) error {
	w, ok := d.findWorkout(userID, uuid)
	if !ok {
		return storage.ErrNotFound
	}
	track(d, d.workouts, w.ID)
	delete(d.workouts, w.ID)
	for k := range d.links {
		if k.workoutID == w.ID {
			track(d, d.links, k)
			delete(d.links, k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Exercises
// ---------------------------------------------------------------------------

func (d *dataset) CreateExercise(_ context.Context, e *storage.Exercise) error {
	e.ID = d.nextID()
	track(d, d.exercises, e.ID)
	d.exercises[e.ID] = cloneExercise(e)
	return nil
}

func (d *dataset) findExercise(userID int64, uuid string) (*storage.Exercise, bool) {
	for _, e := range d.exercises {
		if e.UserID == userID && e.UUID == uuid {
			return e, true
		}
	}
	return nil, false
}

func (d *dataset) Exercise(_ context.Context, userID int64, uuid string) (*storage.Exercise, error) {
	e, ok := d.findExercise(userID, uuid)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneExercise(e), nil
}

func (d *dataset) ListExercises(_ context.Context, userID int64) ([]*storage.Exercise, error) {
	out := []*storage.Exercise{}
	for _, e := range d.exercises {
		if e.UserID == userID {
			out = append(out, cloneExercise(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *dataset) UpdateExercise(_ context.Context, e *storage.Exercise) error {
	existing, ok := d.findExercise(e.UserID, e.UUID)
	if !ok {
		return storage.ErrNotFound
	}
	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt
	track(d, d.exercises, e.ID)
	d.exercises[e.ID] = cloneExercise(e)
	return nil
}

func (d *dataset) DeleteExercise(_ context.Context, userID int64, uuid string) error {
	e, ok := d.findExercise(userID, uuid)
	if !ok {
		return storage.ErrNotFound
	}
	track(d, d.exercises, e.ID)
	delete(d.exercises, e.ID)
	for k := range d.links {
		if k.exerciseID == e.ID {
			track(d, d.links, k)
			delete(d.links, k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Workout exercises
// ---------------------------------------------------------------------------

func (d *dataset) AddWorkoutExercise(_ context.Context, we *storage.WorkoutExercise) error {
	w, ok := d.workouts[we.WorkoutID]
	if !ok || w.UserID != we.UserID {
		return storage.ErrNotFound
	}
	e, ok := d.exercises[we.ExerciseID]
	if !ok || e.UserID != we.UserID {
		return storage.ErrNotFound
	}
	k := linkKey{workoutID: we.WorkoutID, exerciseID: we.ExerciseID}
	if _, ok := d.links[k]; ok {
		return storage.ErrDuplicate
	}
	cp := *we
	track(d, d.links, k)
	d.links[k] = &cp
	return nil
}

func (d *dataset) RemoveWorkoutExercise(_ context.Context, userID, workoutID, exerciseID int64) error {
	k := linkKey{workoutID: workoutID, exerciseID: exerciseID}
	l, ok := d.links[k]
	if !ok || l.UserID != userID {
		return storage.ErrNotFound
	}
	track(d, d.links, k)
	delete(d.links, k)
	return nil
}

func (d *dataset) ListWorkoutExercises(_ context.Context, userID, workoutID int64) ([]*storage.WorkoutExerciseEntry, error) {
	out := []*storage.WorkoutExerciseEntry{}
	for k, l := range d.links {
		if k.workoutID != workoutID || l.UserID != userID {
			continue
		}
		e, ok := d.exercises[k.exerciseID]
		if !ok {
			continue
		}
		out = append(out, &storage.WorkoutExerciseEntry{Exercise: cloneExercise(e), Position: l.Position})
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []*storage.WorkoutExerciseEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Position != entries[j].Position {
			return entries[i].Position < entries[j].Position
		}
		return entries[i].Exercise.ID < entries[j].Exercise.ID
	})
}
