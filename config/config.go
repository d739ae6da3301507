// Package config loads liftlog settings from defaults, an optional .env file
// and LIFTLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "LIFTLOG_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverBBolt    = "bbolt"
	DriverPostgres = "postgres"
)

// Config holds process-wide settings.
type Config struct {
	// Server
	Addr            string
	TLSCert         string
	TLSKey          string
	InsecureCookies bool // omit the Secure cookie attribute (plain HTTP development only)
	TrustedProxies  []netip.Prefix

	// Storage
	StorageDriver string
	DataDir       string
	DatabaseDSN   string

	// Sessions
	TempSessionTTL time.Duration
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	ExemptPaths    []string

	// Security events
	WebhookURL    string
	WebhookHeader string // "Name: value"

	// Logging
	LogLevel  string
	LogFormat string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		StorageDriver:  DriverBBolt,
		DataDir:        "./data",
		TempSessionTTL: 5 * time.Minute,
		SessionTTL:     24 * time.Hour,
		SweepInterval:  time.Minute,
		ExemptPaths:    []string{"/health", "/api/v1/health"},
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load returns the defaults overridden by the given .env files (".env" when
// none are named; missing files are skipped) and then by the process
// environment. Variables already set in the environment win over .env
// values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	c := Default()
	var errs []error
	c.Addr = getEnv("ADDR", c.Addr)
	c.TLSCert = getEnv("TLS_CERT", c.TLSCert)
	c.TLSKey = getEnv("TLS_KEY", c.TLSKey)
	c.InsecureCookies = getEnvAsBool("INSECURE_COOKIES", c.InsecureCookies, &errs)
	c.TrustedProxies = getEnvAsPrefixes("TRUSTED_PROXIES", c.TrustedProxies, &errs)
	c.StorageDriver = strings.ToLower(getEnv("STORAGE", c.StorageDriver))
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.DatabaseDSN = getEnv("DATABASE_URL", c.DatabaseDSN)
	c.TempSessionTTL = getEnvAsDuration("TEMP_SESSION_TTL", c.TempSessionTTL, &errs)
	c.SessionTTL = getEnvAsDuration("SESSION_TTL", c.SessionTTL, &errs)
	c.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", c.SweepInterval, &errs)
	c.ExemptPaths = getEnvAsList("EXEMPT_PATHS", c.ExemptPaths)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.WebhookHeader = getEnv("WEBHOOK_HEADER", c.WebhookHeader)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverBBolt:
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%sDATABASE_URL is required for the postgres driver", envPrefix)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.TempSessionTTL <= 0 {
		return errors.New("temp session TTL must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.WebhookHeader != "" && !strings.Contains(c.WebhookHeader, ":") {
		return errors.New("webhook header must have the form \"Name: value\"")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("TLS certificate and key must be set together")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return v
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return v
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParsePrefixes parses a comma separated list of CIDR ranges. A bare address
// is treated as a single-host prefix.
func ParsePrefixes(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			addr, err := netip.ParseAddr(p)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy address %q: %w", p, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy range %q: %w", p, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func getEnvAsPrefixes(key string, defaultValue []netip.Prefix, errs *[]error) []netip.Prefix {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return defaultValue
	}
	v, err := ParsePrefixes(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return defaultValue
	}
	return v
}
