// Package app wires the OAuth client, token stores and refresh session
// into an HTTP host: login/callback/logout/profile handlers plus a metrics
// server.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VectorInstitute/aieng-auth/internal/auth"
	"github.com/VectorInstitute/aieng-auth/internal/config"
	"github.com/VectorInstitute/aieng-auth/internal/session"
	"github.com/VectorInstitute/aieng-auth/internal/store"
)

// webSessionTTL bounds how long a browser session cookie stays usable.
const webSessionTTL = 24 * time.Hour

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	Client        *auth.Client
	Manager       *auth.Manager
	Session       *session.Session
	HTTPServer    *http.Server
	MetricsServer *http.Server

	medium *store.SQLiteMedium

	mu          sync.Mutex
	webSessions map[string]time.Time
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config) (*Application, error) {
	logger := log.New(os.Stdout, "aieng-auth: ", log.LstdFlags)

	// Setup: durable token storage
	medium, err := store.NewSQLiteMedium(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening token storage: %w", err)
	}

	storeOpts := []store.KVOption{store.WithLogger(logger)}
	if cfg.Auth.StorageKey != "" {
		storeOpts = append(storeOpts, store.WithKey(cfg.Auth.StorageKey))
	}
	tokenStore, err := store.NewKVStore(medium, storeOpts...)
	if err != nil {
		medium.Close()
		return nil, fmt.Errorf("creating token store: %w", err)
	}

	// Setup: OAuth client and token manager
	transient := auth.NewInMemoryTransientStore()
	client, err := auth.NewClient(cfg.Auth, transient, auth.WithLogger(logger))
	if err != nil {
		medium.Close()
		return nil, fmt.Errorf("creating OAuth client: %w", err)
	}
	manager := auth.NewManager(tokenStore)

	// Setup: refresh session
	sess := session.New(client, manager,
		session.WithRefreshBuffer(cfg.Auth.RefreshBuffer.Duration),
		session.WithLogger(logger),
		session.OnError(func(err error) {
			logger.Printf("session refresh error: %v", err)
		}),
	)

	app := &Application{
		Config:      cfg,
		Logger:      logger,
		Client:      client,
		Manager:     manager,
		Session:     sess,
		medium:      medium,
		webSessions: make(map[string]time.Time),
	}

	// Setup: main HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/login", app.handleLogin)
	mux.HandleFunc("/auth/callback", app.handleAuthCallback)
	mux.HandleFunc("/logout", app.handleLogout)
	mux.Handle("/profile", app.requireAuth(http.HandlerFunc(app.handleProfile)))
	mux.HandleFunc("/", app.handleIndex)
	app.HTTPServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}

	// Setup: metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	app.MetricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	return app, nil
}

// Start begins serving HTTP and metrics traffic. It blocks until ctx is
// cancelled or a server fails.
func (a *Application) Start(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.Logger.Printf("HTTP server listening on %s", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		a.Logger.Printf("metrics server listening on %s", a.MetricsServer.Addr)
		if err := a.MetricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop shuts the servers down and releases the session timer and storage.
func (a *Application) Stop(ctx context.Context) error {
	a.Session.Close()

	var firstErr error
	if err := a.HTTPServer.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.MetricsServer.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.medium.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
