package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jmcleod/liftlog/auth"
)

const csrfHeaderName = "X-CSRF-Token"

// isMutating reports whether method changes server state. Everything other
// than GET, HEAD, OPTIONS and TRACE does.
func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// CSRFGate enforces the double-submit check on pre-authentication mutating
// requests: the session_id cookie and the X-CSRF-Token header must name a
// live temporary session. Safe methods pass through.
func (a *API) CSRFGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := a.startSpan(r.Context(), "liftlog.csrf_gate",
			attribute.String("http.method", r.Method))
		defer span.End()

		cookie, err := r.Cookie(sessionCookieName)
		token := r.Header.Get(csrfHeaderName)
		if err != nil || cookie.Value == "" || token == "" {
			a.rejectGate(span, gateCSRF, "missing", nil)
			a.audit.logFailure(AuditCSRFRejected, r, "missing csrf token or session")
			writeError(w, http.StatusUnauthorized, "Missing CSRF token or session")
			return
		}

		if err := a.temp.ValidateCSRF(ctx, cookie.Value, token); err != nil {
			// Storage failures get the same answer as a bad token.
			if !isClientError(err) {
				a.logger.ErrorContext(ctx, "csrf validation failed", "error", err)
			}
			a.rejectGate(span, gateCSRF, "invalid", err)
			a.audit.logFailure(AuditCSRFRejected, r, "invalid csrf token")
			writeError(w, http.StatusUnauthorized, "Invalid CSRF token")
			return
		}
		passGate(span)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionCSRF requires authenticated mutating requests to echo the CSRF
// token bound to their session. It must run after SessionGate.
func (a *API) SessionCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := SessionFromContext(r.Context())
		if !isMutating(r.Method) || session == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := auth.CheckCSRF(session.CSRFToken, r.Header.Get(csrfHeaderName)); err != nil {
			a.prom.rejected(gateSessionCSRF, "invalid")
			a.audit.logFailure(AuditCSRFRejected, r, "session csrf mismatch")
			writeError(w, http.StatusUnauthorized, "Invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
