package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/liftlog/internal/uuid"
	"github.com/jmcleod/liftlog/storage"
)

// ListWorkouts handles GET /workouts.
func (a *API) ListWorkouts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	workouts, err := a.repo.ListWorkouts(r.Context(), userID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	out := make([]WorkoutResponse, 0, len(workouts))
	for _, wo := range workouts {
		out = append(out, newWorkoutResponse(wo))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateWorkout handles POST /workouts.
func (a *API) CreateWorkout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateResourceRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	now := a.now().UTC()
	wo := &storage.Workout{
		UUID:        uuid.New(),
		UserID:      userID,
		Name:        name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.repo.CreateWorkout(r.Context(), wo); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newWorkoutResponse(wo))
}

// GetWorkout handles GET /workouts/{workoutID}.
func (a *API) GetWorkout(w http.ResponseWriter, r *http.Request) {
	wo, ok := a.loadWorkout(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newWorkoutResponse(wo))
}

// UpdateWorkout handles PUT /workouts/{workoutID}.
func (a *API) UpdateWorkout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UpdateResourceRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	wo, ok := a.loadWorkout(w, r)
	if !ok {
		return
	}
	if !applyUpdate(w, req, &wo.Name, &wo.Description) {
		return
	}
	wo.UpdatedAt = a.now().UTC()
	if err := a.repo.UpdateWorkout(r.Context(), wo); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWorkoutResponse(wo))
}

// DeleteWorkout handles DELETE /workouts/{workoutID}.
func (a *API) DeleteWorkout(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id := chi.URLParam(r, "workoutID")
	if !uuid.Valid(id) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := a.repo.DeleteWorkout(r.Context(), userID, id); err != nil {
		a.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWorkoutExercises handles GET /workouts/{workoutID}/exercises.
func (a *API) ListWorkoutExercises(w http.ResponseWriter, r *http.Request) {
	wo, ok := a.loadWorkout(w, r)
	if !ok {
		return
	}
	entries, err := a.repo.ListWorkoutExercises(r.Context(), wo.UserID, wo.ID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	out := make([]WorkoutExerciseResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, WorkoutExerciseResponse{
			ExerciseResponse: newExerciseResponse(e.Exercise),
			Position:         e.Position,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// AddWorkoutExercise handles POST /workouts/{workoutID}/exercises.
func (a *API) AddWorkoutExercise(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[AddWorkoutExerciseRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	wo, ok := a.loadWorkout(w, r)
	if !ok {
		return
	}
	if !uuid.Valid(req.ExerciseUUID) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	ex, err := a.repo.Exercise(r.Context(), wo.UserID, req.ExerciseUUID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	link := &storage.WorkoutExercise{
		WorkoutID:  wo.ID,
		ExerciseID: ex.ID,
		UserID:     wo.UserID,
		Position:   req.Position,
	}
	if err := a.repo.AddWorkoutExercise(r.Context(), link); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, WorkoutExerciseResponse{
		ExerciseResponse: newExerciseResponse(ex),
		Position:         link.Position,
	})
}

// RemoveWorkoutExercise handles
// DELETE /workouts/{workoutID}/exercises/{exerciseID}.
func (a *API) RemoveWorkoutExercise(w http.ResponseWriter, r *http.Request) {
	wo, ok := a.loadWorkout(w, r)
	if !ok {
		return
	}
	ex, ok := a.loadExercise(w, r)
	if !ok {
		return
	}
	if err := a.repo.RemoveWorkoutExercise(r.Context(), wo.UserID, wo.ID, ex.ID); err != nil {
		a.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadWorkout resolves the {workoutID} path parameter for the current user.
// Another user's workout is reported as not found.
func (a *API) loadWorkout(w http.ResponseWriter, r *http.Request) (*storage.Workout, bool) {
	userID, _ := UserIDFromContext(r.Context())
	id := chi.URLParam(r, "workoutID")
	if !uuid.Valid(id) {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	wo, err := a.repo.Workout(r.Context(), userID, id)
	if err != nil {
		a.mapError(w, r, err)
		return nil, false
	}
	return wo, true
}

// applyUpdate copies the present fields of req onto name and description.
func applyUpdate(w http.ResponseWriter, req UpdateResourceRequest, name *string, description **string) bool {
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		if n == "" {
			writeError(w, http.StatusBadRequest, "name must not be empty")
			return false
		}
		*name = n
	}
	if req.Description.Set {
		*description = req.Description.Value
	}
	return true
}
