package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmcleod/liftlog/auth"
)

const tracerName = "github.com/jmcleod/liftlog/api"

// Gate names used in span attributes and metric labels.
const (
	gateCSRF        = "csrf"
	gateSession     = "session"
	gateSessionCSRF = "session_csrf"
)

func (a *API) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if a.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return a.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// rejectGate records a gate rejection on the span and in metrics. err is
// only attached to the span when it is a storage failure.
func (a *API) rejectGate(span trace.Span, gate, reason string, err error) {
	span.SetAttributes(
		attribute.String("liftlog.gate", gate),
		attribute.String("liftlog.gate.outcome", "reject"),
		attribute.String("liftlog.gate.reason", reason),
	)
	if err != nil && !isClientError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failure")
	}
	a.prom.rejected(gate, reason)
}

func passGate(span trace.Span) {
	span.SetAttributes(attribute.String("liftlog.gate.outcome", "pass"))
	span.SetStatus(codes.Ok, "")
}

// isClientError reports whether err is an expected authentication outcome
// rather than an infrastructure failure.
func isClientError(err error) bool {
	return !errors.Is(err, auth.ErrDatabase)
}

// routePattern returns the matched chi pattern, e.g. /workouts/{workoutID},
// so span and metric labels stay low cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
