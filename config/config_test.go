package config

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, DriverBBolt, c.StorageDriver)
	assert.Equal(t, 5*time.Minute, c.TempSessionTTL)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.Equal(t, []string{"/health", "/api/v1/health"}, c.ExemptPaths)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("LIFTLOG_ADDR", "127.0.0.1:9000")
	t.Setenv("LIFTLOG_STORAGE", "Postgres")
	t.Setenv("LIFTLOG_DATABASE_URL", "postgres://localhost/liftlog")
	t.Setenv("LIFTLOG_TEMP_SESSION_TTL", "90s")
	t.Setenv("LIFTLOG_SESSION_TTL", "2h")
	t.Setenv("LIFTLOG_INSECURE_COOKIES", "true")
	t.Setenv("LIFTLOG_EXEMPT_PATHS", "/health, /ready,,")
	t.Setenv("LIFTLOG_LOG_FORMAT", "JSON")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", c.Addr)
	assert.Equal(t, DriverPostgres, c.StorageDriver)
	assert.Equal(t, 90*time.Second, c.TempSessionTTL)
	assert.Equal(t, 2*time.Hour, c.SessionTTL)
	assert.True(t, c.InsecureCookies)
	assert.Equal(t, []string{"/health", "/ready"}, c.ExemptPaths)
	assert.Equal(t, "json", c.LogFormat)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIFTLOG_ADDR=:7000\nLIFTLOG_STORAGE=memory\n"), 0o600))
	t.Setenv("LIFTLOG_STORAGE", "bbolt")
	// godotenv.Load sets variables for the whole process.
	t.Cleanup(func() { os.Unsetenv("LIFTLOG_ADDR") })

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", c.Addr)
	assert.Equal(t, DriverBBolt, c.StorageDriver, "environment wins over .env")
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("LIFTLOG_SESSION_TTL", "forever")
	t.Setenv("LIFTLOG_INSECURE_COOKIES", "maybe")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIFTLOG_SESSION_TTL")
	assert.Contains(t, err.Error(), "LIFTLOG_INSECURE_COOKIES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown driver", func(c *Config) { c.StorageDriver = "redis" }, "unknown storage driver"},
		{"postgres without dsn", func(c *Config) { c.StorageDriver = DriverPostgres }, "DATABASE_URL"},
		{"zero temp ttl", func(c *Config) { c.TempSessionTTL = 0 }, "temp session TTL"},
		{"negative session ttl", func(c *Config) { c.SessionTTL = -time.Second }, "session TTL"},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }, "sweep interval"},
		{"cert without key", func(c *Config) { c.TLSCert = "cert.pem" }, "TLS"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log format"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"malformed webhook header", func(c *Config) { c.WebhookHeader = "Bearer x" }, "webhook header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestParsePrefixes(t *testing.T) {
	got, err := ParsePrefixes("10.0.0.0/8, 192.168.1.7 ,,2001:db8::1/64")
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("2001:db8::/64"),
	}, got)

	_, err = ParsePrefixes("10.0.0.0/33")
	assert.Error(t, err)
	_, err = ParsePrefixes("proxy.internal")
	assert.Error(t, err)
}

func TestLoadTrustedProxiesAndWebhook(t *testing.T) {
	t.Setenv("LIFTLOG_TRUSTED_PROXIES", "127.0.0.1")
	t.Setenv("LIFTLOG_WEBHOOK_URL", "https://hooks.example.com/liftlog")
	t.Setenv("LIFTLOG_WEBHOOK_HEADER", "Authorization: Bearer abc")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("127.0.0.1/32")}, c.TrustedProxies)
	assert.Equal(t, "https://hooks.example.com/liftlog", c.WebhookURL)
	assert.Equal(t, "Authorization: Bearer abc", c.WebhookHeader)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	c := Default()
	c.LogFormat = "json"
	c.LogLevel = "warn"
	logger := c.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
