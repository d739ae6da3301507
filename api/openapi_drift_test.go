package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// openAPIDoc is the minimal structure we need from openapi.yaml.
type openAPIDoc struct {
	Servers []struct {
		URL string `yaml:"url"`
	} `yaml:"servers"`
	Paths map[string]map[string]any `yaml:"paths"`
}

func loadOpenAPIDoc(t *testing.T) openAPIDoc {
	t.Helper()
	var doc openAPIDoc
	require.NoError(t, yaml.Unmarshal(openapiSpec, &doc), "failed to parse openapi.yaml")
	return doc
}

// documentedRoutes returns {METHOD PATH} pairs from the OpenAPI document.
func documentedRoutes(doc openAPIDoc) map[string]bool {
	routes := make(map[string]bool)
	for path, methods := range doc.Paths {
		for method := range methods {
			method = strings.ToUpper(method)
			// Skip OpenAPI extension keys (x-...) and shared parameters.
			if strings.HasPrefix(method, "X-") || method == "PARAMETERS" {
				continue
			}
			routes[method+" "+path] = true
		}
	}
	return routes
}

// registeredRoutes walks the router of a zero-value API. Router() only
// registers routes and never invokes handlers, so nil dependencies are fine.
func registeredRoutes(t *testing.T) map[string]bool {
	t.Helper()
	routes := make(map[string]bool)
	err := chi.Walk((&API{}).Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
		// Documentation routes are not part of the API contract.
		if route == "/openapi.yaml" ||
			strings.HasPrefix(route, "/docs") ||
			strings.HasPrefix(route, "/redoc") {
			return nil
		}
		routes[method+" "+route] = true
		return nil
	})
	require.NoError(t, err, "chi.Walk failed")
	return routes
}

// TestOpenAPIDrift fails if any route is undocumented or if the document
// lists paths the router no longer serves.
func TestOpenAPIDrift(t *testing.T) {
	documented := documentedRoutes(loadOpenAPIDoc(t))
	registered := registeredRoutes(t)

	var undocumented, stale []string
	for route := range registered {
		if !documented[route] {
			undocumented = append(undocumented, route)
		}
	}
	for route := range documented {
		if !registered[route] {
			stale = append(stale, route)
		}
	}
	sort.Strings(undocumented)
	sort.Strings(stale)

	if len(undocumented) > 0 {
		t.Errorf("routes registered in Router() but missing from openapi.yaml:\n%s",
			formatRouteList(undocumented))
	}
	if len(stale) > 0 {
		t.Errorf("routes in openapi.yaml but not registered in Router():\n%s",
			formatRouteList(stale))
	}
}

func TestOpenAPIServerMatchesMount(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "/api/v1", doc.Servers[0].URL)
}

func TestOpenAPIServedFromRouter(t *testing.T) {
	rec := httptest.NewRecorder()
	(&API{}).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, openapiSpec, rec.Body.Bytes())
}

func formatRouteList(routes []string) string {
	var b strings.Builder
	for _, r := range routes {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	return b.String()
}
