package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmcleod/liftlog/api"
	"github.com/jmcleod/liftlog/auth"
	"github.com/jmcleod/liftlog/config"
	"github.com/jmcleod/liftlog/storage"
)

// rateLimitPruneInterval is how often stale login rate-limit records are
// dropped.
const rateLimitPruneInterval = 5 * time.Minute

// serverOptions holds the server flags that override the loaded config.
type serverOptions struct {
	addr            string
	storage         string
	dataDir         string
	dsn             string
	tlsCert         string
	tlsKey          string
	insecureCookies bool
}

var serverFlags serverOptions

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the LiftLog API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := serverFlags.apply(cmd.Flags(), cfg); err != nil {
			return err
		}
		logger := cfg.NewLogger(os.Stderr)
		slog.SetDefault(logger)

		repo, err := openRepository(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		app, err := newApp(cfg, repo, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           app.handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		}
		if cfg.TLSCert != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if server.TLSConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		logger.Info("starting server",
			"addr", cfg.Addr,
			"storage", cfg.StorageDriver,
			"tls", server.TLSConfig != nil,
		)
		if cfg.InsecureCookies {
			logger.Warn("session cookies may be sent without the Secure attribute")
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverFlags.bind(serverCmd.Flags())
}

func (o *serverOptions) bind(f *pflag.FlagSet) {
	f.StringVarP(&o.addr, "addr", "a", "", "Address to listen on (default from LIFTLOG_ADDR or :8080)")
	f.StringVar(&o.storage, "storage", "", "Storage driver: memory, bbolt or postgres")
	f.StringVar(&o.dataDir, "data-dir", "", "Directory for the bbolt database")
	f.StringVar(&o.dsn, "dsn", "", "Postgres DSN")
	f.StringVar(&o.tlsCert, "tls-cert", "", "Path to TLS certificate file")
	f.StringVar(&o.tlsKey, "tls-key", "", "Path to TLS key file")
	f.BoolVar(&o.insecureCookies, "insecure-cookies", false, "Allow session cookies over plain HTTP (development only)")
}

// apply copies the explicitly set flags over cfg and revalidates it.
func (o *serverOptions) apply(f *pflag.FlagSet, cfg *config.Config) error {
	if f.Changed("addr") {
		cfg.Addr = o.addr
	}
	if f.Changed("storage") {
		cfg.StorageDriver = strings.ToLower(o.storage)
	}
	if f.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if f.Changed("dsn") {
		cfg.DatabaseDSN = o.dsn
	}
	if f.Changed("tls-cert") {
		cfg.TLSCert = o.tlsCert
	}
	if f.Changed("tls-key") {
		cfg.TLSKey = o.tlsKey
	}
	if f.Changed("insecure-cookies") {
		cfg.InsecureCookies = o.insecureCookies
	}
	return cfg.Validate()
}

// app is the wired HTTP handler plus the background workers it owns.
type app struct {
	handler http.Handler
	api     *api.API
	sweeper *auth.Sweeper
	stop    chan struct{}
	pruned  chan struct{}
}

func newApp(cfg *config.Config, repo storage.Repository, logger *slog.Logger) (*app, error) {
	authOpts := []auth.Option{
		auth.WithTempSessionTTL(cfg.TempSessionTTL),
		auth.WithSessionTTL(cfg.SessionTTL),
	}
	creds, err := auth.NewCredentialStore(repo, authOpts...)
	if err != nil {
		return nil, err
	}
	temp := auth.NewTempSessionManager(repo, authOpts...)
	sessions := auth.NewSessionManager(repo, authOpts...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := api.New(repo, creds, temp, sessions,
		api.WithLogger(logger),
		api.WithExemptPaths(cfg.ExemptPaths...),
		api.WithInsecureCookies(cfg.InsecureCookies),
		api.WithMetricsRegistry(registry),
		api.WithTrustedProxies(cfg.TrustedProxies),
		api.WithSecurityWebhook(cfg.WebhookURL, cfg.WebhookHeader),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("security alert",
				"type", string(e.Type),
				"count", e.Count,
				"threshold", e.Threshold,
				"message", e.Message,
			)
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.With(api.SecurityHeaders, a.SessionGate).Get("/health", a.Health)
	r.Handle("/metrics", a.MetricsHandler())
	r.Mount("/api/v1", a.Router())

	ap := &app{
		handler: r,
		api:     a,
		sweeper: auth.StartSweeper(sessions, cfg.SweepInterval, logger),
		stop:    make(chan struct{}),
		pruned:  make(chan struct{}),
	}
	go ap.pruneLoop(rateLimitPruneInterval)
	return ap, nil
}

func (ap *app) pruneLoop(interval time.Duration) {
	defer close(ap.pruned)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ap.stop:
			return
		case <-ticker.C:
			ap.api.PruneRateLimiters()
		}
	}
}

// Close stops the background workers and flushes pending security events.
func (ap *app) Close() {
	close(ap.stop)
	<-ap.pruned
	ap.sweeper.Close()
	ap.api.Close()
}
