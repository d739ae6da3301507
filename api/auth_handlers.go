package api

import (
	"log/slog"
	"net/http"

	"github.com/jmcleod/liftlog/auth"
	"github.com/jmcleod/liftlog/internal/util"
)

// CSRFToken handles GET /auth/csrf-token. It opens a temporary session and
// returns its CSRF token; the session id travels in the session_id cookie.
func (a *API) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := auth.NewCSRFToken()
	if err != nil {
		a.writeInternalError(w, r, "failed to generate csrf token", err)
		return
	}
	ts, err := a.temp.CreateTempSession(r.Context(), token)
	if err != nil {
		a.writeInternalError(w, r, "failed to create temp session", err)
		return
	}

	a.writeSessionCookie(w, r, ts.SessionID, ts.ExpiresAt)
	a.audit.log(AuditCSRFIssued, r)
	writeJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: ts.CSRFToken})
}

// Register handles POST /auth/register. It runs behind CSRFGate.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Missing CSRF token or session")
		return
	}
	user, err := a.creds.NewUser(req.Email, req.Password)
	if err != nil {
		a.writeInternalError(w, r, "failed to hash password", err)
		return
	}
	// The temp session is consumed in the same transaction as the insert, so
	// a replayed pair cannot leave an orphaned account behind.
	session, err := a.sessions.Register(r.Context(), user, cookie.Value, r.Header.Get(csrfHeaderName))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.writeSessionCookie(w, r, session.Token, session.ExpiresAt)

	a.audit.logEvent(AuditRegister, r, user.UUID)
	writeJSON(w, http.StatusCreated, AuthResponse{UUID: user.UUID, Email: user.Email})
}

// Login handles POST /auth/login. It runs behind CSRFGate.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	email := util.NormalizeEmail(req.Email)
	clientIP := a.extractClientIP(r)

	// Check rate limits before the expensive hash: IP first, then account.
	if blocked, retryAfter := a.ipLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.rateLimiter.check(email); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "account rate limited")
		writeRateLimited(w, retryAfter)
		return
	}

	user, err := a.creds.VerifyCredentials(r.Context(), email, req.Password)
	if err != nil {
		if isClientError(err) {
			a.rateLimiter.recordFailure(email)
			a.ipLimiter.recordFailure(clientIP)
			a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
				slog.String("client_ip", clientIP))
		}
		a.mapError(w, r, err)
		return
	}
	// Only the account budget resets. The IP budget keeps counting so a
	// client holding one valid login cannot use it to spray other accounts.
	a.rateLimiter.recordSuccess(email)

	if !a.promote(w, r, user.ID) {
		return
	}

	a.audit.logEvent(AuditLoginSuccess, r, user.UUID)
	writeJSON(w, http.StatusOK, AuthResponse{UUID: user.UUID, Email: user.Email})
}

// promote turns the request's temporary session into an authenticated
// session for userID and refreshes the cookie. The CSRF token carries over.
func (a *API) promote(w http.ResponseWriter, r *http.Request, userID int64) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Missing CSRF token or session")
		return false
	}
	session, err := a.sessions.CreateSession(r.Context(), userID, cookie.Value, r.Header.Get(csrfHeaderName))
	if err != nil {
		a.mapError(w, r, err)
		return false
	}
	a.writeSessionCookie(w, r, session.Token, session.ExpiresAt)
	return true
}

// Logout handles POST /auth/logout. It always succeeds and clears the
// session cookie.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := a.sessions.InvalidateSession(r.Context(), cookie.Value); err != nil {
			a.logger.WarnContext(r.Context(), "logout: invalidating session", "error", err)
		}
	}
	a.clearSessionCookie(w, r)
	a.audit.log(AuditLogout, r)
	w.WriteHeader(http.StatusOK)
}
