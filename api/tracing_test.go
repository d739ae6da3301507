package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jmcleod/liftlog/storage/memory"
)

// recordingSpan keeps the attributes set on it.
type recordingSpan struct {
	noop.Span
	name string

	mu    sync.Mutex
	attrs map[attribute.Key]attribute.Value
	ended bool
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attr := range kv {
		s.attrs[attr.Key] = attr.Value
	}
}

func (s *recordingSpan) End(...trace.SpanEndOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

func (s *recordingSpan) attr(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[attribute.Key(key)]
	return v.Emit(), ok
}

type recordingTracer struct {
	noop.Tracer

	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordingSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	cfg := trace.NewSpanStartConfig(opts...)
	span.SetAttributes(cfg.Attributes()...)
	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

func (t *recordingTracer) named(name string) []*recordingSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*recordingSpan
	for _, s := range t.spans {
		if s.name == name {
			out = append(out, s)
		}
	}
	return out
}

type recordingProvider struct {
	noop.TracerProvider
	tracer *recordingTracer
}

func (p recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer { return p.tracer }

func TestSessionGateSpanUsesRoutePattern(t *testing.T) {
	repo := memory.NewRepository()
	a, _ := newGateAPI(t, repo)
	tracer := &recordingTracer{}
	WithTracerProvider(recordingProvider{tracer: tracer})(a)
	ctx := context.Background()

	user, err := a.creds.CreateUser(ctx, "trace@example.com", "pw123456")
	require.NoError(t, err)
	ts, err := a.temp.CreateTempSession(ctx, "csrf")
	require.NoError(t, err)
	_, err = a.sessions.CreateSession(ctx, user.ID, ts.SessionID, "csrf")
	require.NoError(t, err)

	router := a.Router()
	ids := []string{uuid.NewString(), uuid.NewString()}
	for _, id := range ids {
		req := httptest.NewRequest(http.MethodGet, "/workouts/"+id, nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: ts.SessionID})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	// Rejected requests are labeled too.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workouts/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	spans := tracer.named("liftlog.session_gate")
	require.Len(t, spans, 3)
	for i, span := range spans {
		route, ok := span.attr("http.route")
		require.True(t, ok, "span %d has no http.route", i)
		assert.Contains(t, route, "/workouts/{workoutID}")
		for _, id := range ids {
			assert.NotContains(t, route, id)
		}
		assert.True(t, span.ended)
	}
}

func TestRoutePatternUnmatched(t *testing.T) {
	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)))
}
