package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jmcleod/liftlog/storage"
)

type contextKey int

const (
	userIDKey contextKey = iota
	sessionKey
)

const sessionCookieName = "session_id"

// SessionGate authenticates requests by the session_id cookie. Exempt paths
// are forwarded unconditionally; otherwise the cookie must resolve to a live
// session, whose user id and record are attached to the request context.
func (a *API) SessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.exemptPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := a.startSpan(r.Context(), "liftlog.session_gate")
		// The pattern is only complete once the subrouters below have run.
		defer func() {
			span.SetAttributes(attribute.String("http.route", routePattern(r)))
			span.End()
		}()

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			a.rejectGate(span, gateSession, "missing_session", nil)
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		session, err := a.sessions.Session(ctx, cookie.Value)
		if err != nil {
			a.rejectGate(span, gateSession, "invalid_session", err)
			if !isClientError(err) {
				a.logger.ErrorContext(ctx, "session lookup failed", "error", err)
			}
			a.audit.logFailure(AuditSessionRejected, r, "invalid session")
			writeError(w, http.StatusUnauthorized, "Invalid session")
			return
		}
		passGate(span)

		ctx = context.WithValue(ctx, userIDKey, session.UserID)
		ctx = context.WithValue(ctx, sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user id set by SessionGate.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// SessionFromContext returns the session record set by SessionGate.
func SessionFromContext(ctx context.Context) *storage.Session {
	s, _ := ctx.Value(sessionKey).(*storage.Session)
	return s
}

func (a *API) writeSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie(r),
		SameSite: http.SameSiteStrictMode,
		Expires:  expiresAt,
	})
}

// clearSessionCookie expires the cookie immediately (Max-Age=0).
func (a *API) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie(r),
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func (a *API) secureCookie(r *http.Request) bool {
	return !a.insecureCookies || requestIsSecure(r)
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
