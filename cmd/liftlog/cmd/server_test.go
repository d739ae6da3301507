package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/liftlog/config"
	"github.com/jmcleod/liftlog/storage/memory"
)

func newTestApp(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.StorageDriver = config.DriverMemory
	cfg.InsecureCookies = true

	ap, err := newApp(cfg, memory.NewRepository(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv := httptest.NewServer(ap.handler)
	t.Cleanup(func() {
		srv.Close()
		ap.Close()
	})
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestAppHealthIsPublic(t *testing.T) {
	srv := newTestApp(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		resp, body := get(t, srv.URL+path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, body, `"status":"healthy"`, path)
	}
}

func TestAppProtectsAPI(t *testing.T) {
	srv := newTestApp(t)
	resp, body := get(t, srv.URL+"/api/v1/workouts")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Authentication required"}`, body)
}

func TestAppMetricsIncludeRuntimeCollectors(t *testing.T) {
	srv := newTestApp(t)
	get(t, srv.URL+"/api/v1/auth/csrf-token")

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "liftlog_http_requests_total")
	assert.Contains(t, body, "liftlog_auth_audit_events_total")
}

func parseServerFlags(t *testing.T, args ...string) (*serverOptions, *pflag.FlagSet) {
	t.Helper()
	var o serverOptions
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	o.bind(fs)
	require.NoError(t, fs.Parse(args))
	return &o, fs
}

func TestServerFlagsOverrideConfig(t *testing.T) {
	o, fs := parseServerFlags(t, "--addr", ":9999", "--storage", "Memory", "--insecure-cookies")

	cfg := config.Default()
	cfg.DataDir = "/var/lib/liftlog"
	require.NoError(t, o.apply(fs, cfg))
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, config.DriverMemory, cfg.StorageDriver)
	assert.True(t, cfg.InsecureCookies)
	assert.Equal(t, "/var/lib/liftlog", cfg.DataDir, "unset flags keep loaded values")
}

func TestServerFlagsRevalidate(t *testing.T) {
	o, fs := parseServerFlags(t, "--storage", "postgres")
	err := o.apply(fs, config.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "liftlog "+Version+"\n", out.String())
}

func TestOpenRepositoryBBolt(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested")

	repo, err := openRepository(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	assert.FileExists(t, filepath.Join(cfg.DataDir, boltFileName))
}
