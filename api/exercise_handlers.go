package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/liftlog/internal/uuid"
	"github.com/jmcleod/liftlog/storage"
)

// ListExercises handles GET /exercises.
func (a *API) ListExercises(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	exercises, err := a.repo.ListExercises(r.Context(), userID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	out := make([]ExerciseResponse, 0, len(exercises))
	for _, e := range exercises {
		out = append(out, newExerciseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateExercise handles POST /exercises.
func (a *API) CreateExercise(w http.ResponseWriter, r *http.Request) {
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
	ex := &storage.Exercise{
		UUID:        uuid.New(),
		UserID:      userID,
		Name:        name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.repo.CreateExercise(r.Context(), ex); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExerciseResponse(ex))
}

// GetExercise handles GET /exercises/{exerciseID}.
func (a *API) GetExercise(w http.ResponseWriter, r *http.Request) {
	ex, ok := a.loadExercise(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newExerciseResponse(ex))
}

// UpdateExercise handles PUT /exercises/{exerciseID}.
func (a *API) UpdateExercise(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UpdateResourceRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	ex, ok := a.loadExercise(w, r)
	if !ok {
		return
	}
	if !applyUpdate(w, req, &ex.Name, &ex.Description) {
		return
	}
	ex.UpdatedAt = a.now().UTC()
	if err := a.repo.UpdateExercise(r.Context(), ex); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExerciseResponse(ex))
}

// DeleteExercise handles DELETE /exercises/{exerciseID}. The exercise is
// also removed from every workout that lists it.
func (a *API) DeleteExercise(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id := chi.URLParam(r, "exerciseID")
	if !uuid.Valid(id) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := a.repo.DeleteExercise(r.Context(), userID, id); err != nil {
		a.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) loadExercise(w http.ResponseWriter, r *http.Request) (*storage.Exercise, bool) {
	userID, _ := UserIDFromContext(r.Context())
	id := chi.URLParam(r, "exerciseID")
	if !uuid.Valid(id) {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	ex, err := a.repo.Exercise(r.Context(), userID, id)
	if err != nil {
		a.mapError(w, r, err)
		return nil, false
	}
	return ex, true
}
