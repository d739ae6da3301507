package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditCSRFIssued       AuditEvent = "csrf_issued"
	AuditCSRFRejected     AuditEvent = "csrf_rejected"
	AuditRegister         AuditEvent = "register"
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditAccountDeleted   AuditEvent = "account_deleted"
	AuditSessionRejected  AuditEvent = "session_rejected"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	prom    *promMetrics
	webhook *auditWebhook
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	if al == nil {
		return
	}
	now := time.Now()
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", now.UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	al.metrics.recordEvent(event)
	al.prom.event(event)
	if al.webhook != nil {
		al.webhook.enqueue(auditWebhookEvent(event, r, now, attrs))
	}
}

// logEvent is a convenience for events with a user. userUUID is the public
// identifier, never the email.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, userUUID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_uuid", userUUID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a rejected or failed authentication attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
