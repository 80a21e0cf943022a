// Package web serves the ingest, schema, query and question endpoints as a
// JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/assistant"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/ingest"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

// ServerConfig holds the collaborators of the web server
type ServerConfig struct {
	Registry  *store.Registry
	Catalog   *catalog.Catalog
	Ingestor  *ingest.Ingestor
	Assistant *assistant.Service // nil when no API key is configured
	History   HistoryReader      // nil when the metastore is unavailable

	QueryRowLimit      int
	CORSAllowedOrigins []string
	RateLimit          RateLimitConfig
	Logger             *slog.Logger
}

// NewRouter builds the HTTP handler for cfg.
func NewRouter(cfg ServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	h := &APIHandler{
		registry:  cfg.Registry,
		catalog:   cfg.Catalog,
		ingestor:  cfg.Ingestor,
		assistant: cfg.Assistant,
		history:   cfg.History,
		rowLimit:  cfg.QueryRowLimit,
		logger:    logger,
	}

	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", h.Ingest)
		r.Get("/schema", h.Schema)
		r.Get("/schema/{table}", h.DescribeTable)
		r.Post("/query", h.Query)
		r.Get("/history", h.History)

		// Endpoints that call the language model
		r.Group(func(r chi.Router) {
			if cfg.RateLimit.RequestsPerSecond > 0 {
				r.Use(RateLimiter(cfg.RateLimit))
			}
			r.Post("/sql", h.SQL)
			r.Post("/ask", h.Ask)
		})
	})

	return r
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
