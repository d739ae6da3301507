package api

import (
	"net/http"
	"time"
)

// GetCurrentUser handles GET /users/me.
func (a *API) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	user, err := a.creds.User(r.Context(), userID)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{
		UUID:      user.UUID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// DeleteCurrentUser handles DELETE /users/me. The user and everything they
// own is removed, including every session.
func (a *API) DeleteCurrentUser(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err := a.sessions.DeleteUser(r.Context(), session.Token); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.clearSessionCookie(w, r)
	a.audit.log(AuditAccountDeleted, r)
	w.WriteHeader(http.StatusOK)
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: a.now().UTC().Format(time.RFC3339),
	})
}
