package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmcleod/liftlog/auth"
	"github.com/jmcleod/liftlog/storage"
)

// DefaultExemptPaths are the request paths the Session Gate lets through
// without a session.
var DefaultExemptPaths = []string{"/health", "/api/v1/health"}

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo     storage.Repository
	creds    *auth.CredentialStore
	temp     *auth.TempSessionManager
	sessions *auth.SessionManager

	rateLimiter    *loginRateLimiter
	ipLimiter      *ipRateLimiter
	trustedProxies []netip.Prefix

	logger  *slog.Logger
	audit   *auditLogger
	alertFn AlertFunc

	webhookURL    string
	webhookHeader string
	webhook       *auditWebhook

	registry *prometheus.Registry
	prom     *promMetrics
	tracer   trace.Tracer

	exemptPaths     map[string]struct{}
	insecureCookies bool
	now             func() time.Time
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request errors and audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithExemptPaths replaces the paths the Session Gate forwards without a
// session. Matching is exact.
func WithExemptPaths(paths ...string) Option {
	return func(a *API) {
		a.exemptPaths = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			a.exemptPaths[p] = struct{}{}
		}
	}
}

// WithInsecureCookies drops the Secure attribute from the session cookie on
// plain HTTP requests. Only meant for local development and tests.
func WithInsecureCookies(insecure bool) Option {
	return func(a *API) {
		a.insecureCookies = insecure
	}
}

// WithMetricsRegistry registers the API's Prometheus collectors on reg
// instead of a private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(a *API) {
		a.registry = reg
	}
}

// WithAlertFunc sets a callback that is invoked when login failures spike.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithSecurityWebhook forwards audit events and spike alerts to url as JSON.
// authHeader, if set, is a "Name: value" header added to every request.
// Call Close to flush pending events.
func WithSecurityWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookHeader = authHeader
	}
}

// WithTracerProvider sets the provider for gate spans. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *API) {
		a.tracer = tp.Tracer(tracerName)
	}
}

// WithTrustedProxies sets the CIDR ranges whose forwarding headers are
// honored when rate limiting by client IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithClock replaces time.Now for resource timestamps and health checks.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates a new API instance. repo backs the training resources; the
// auth components own users and sessions.
func New(repo storage.Repository, creds *auth.CredentialStore, temp *auth.TempSessionManager, sessions *auth.SessionManager, opts ...Option) *API {
	a := &API{
		repo:        repo,
		creds:       creds,
		temp:        temp,
		sessions:    sessions,
		rateLimiter: newLoginRateLimiter(),
		ipLimiter:   newIPRateLimiter(),
		now:         time.Now,
	}
	WithExemptPaths(DefaultExemptPaths...)(a)
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(tracerName)
	}
	a.prom = newPromMetrics(a.registry)
	a.audit = newAuditLogger(a.logger)
	a.audit.prom = a.prom
	alertFn := a.alertFn
	if a.webhookURL != "" {
		wh := newAuditWebhook(a.webhookURL, a.webhookHeader, a.logger)
		a.webhook = wh
		a.audit.webhook = wh
		alertFn = func(e AlertEvent) {
			wh.enqueue(alertWebhookEvent(e))
			if a.alertFn != nil {
				a.alertFn(e)
			}
		}
	}
	a.audit.metrics = newMetricsCollector(alertFn)
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(a.prom.instrument)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/auth/csrf-token", a.CSRFToken)
	r.With(a.CSRFGate).Post("/auth/register", a.Register)
	r.With(a.CSRFGate).Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)

	// Everything below requires a session, except the exempt paths.
	r.Group(func(r chi.Router) {
		r.Use(a.SessionGate)
		r.Use(a.SessionCSRF)

		r.Get("/health", a.Health)

		r.Get("/users/me", a.GetCurrentUser)
		r.Delete("/users/me", a.DeleteCurrentUser)

		r.Get("/workouts", a.ListWorkouts)
		r.Post("/workouts", a.CreateWorkout)
		r.Route("/workouts/{workoutID}", func(r chi.Router) {
			r.Get("/", a.GetWorkout)
			r.Put("/", a.UpdateWorkout)
			r.Delete("/", a.DeleteWorkout)
			r.Get("/exercises", a.ListWorkoutExercises)
			r.Post("/exercises", a.AddWorkoutExercise)
			r.Delete("/exercises/{exerciseID}", a.RemoveWorkoutExercise)
		})

		r.Get("/exercises", a.ListExercises)
		r.Post("/exercises", a.CreateExercise)
		r.Route("/exercises/{exerciseID}", func(r chi.Router) {
			r.Get("/", a.GetExercise)
			r.Put("/", a.UpdateExercise)
			r.Delete("/", a.DeleteExercise)
		})
	})

	return r
}

// MetricsHandler serves the API's Prometheus registry.
func (a *API) MetricsHandler() http.Handler {
	return metricsHandler(a.registry)
}

// Close flushes the security webhook, if one is configured.
func (a *API) Close() {
	a.webhook.close()
}

// PruneRateLimiters drops stale login rate-limit records. Call periodically.
func (a *API) PruneRateLimiters() {
	a.rateLimiter.sweep()
	a.ipLimiter.sweep()
}
