// Package server wires the local forum API: services, handlers, middleware
// and routes.
//
// WHY A LOCAL SERVER IN A CLIENT REPO?
// The client's guarantees (eviction on 401, vote echo, view refresh after a
// mutation) are only meaningful against a backend with the real HTTP shape.
// This package serves that shape from a SQLite database (":memory:" unless
// configured otherwise) so the client can be run and tested end to end:
//
//	srv, _ := server.New(cfg, logger)
//	ts := httptest.NewServer(srv.Handler())   // tests
//	srv.Start()                                // cmd/stubserver
//	defer srv.Close()
//
// COMPOSITION ROOT:
// Everything is built in New. Handlers get services, services get the
// repositories and the auth utilities; nothing reaches across layers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/auth"
	"github.com/sakif/campus-client/internal/handler"
	"github.com/sakif/campus-client/internal/metrics"
	"github.com/sakif/campus-client/internal/middleware"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/repository/sqlite"
	"github.com/sakif/campus-client/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port       int
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
	// DBPath is the forum database; empty means ":memory:".
	DBPath string
}

// Server is the forum API and the state behind it.
//
// Auth, Forum and Faults are exported so tests and the demo seeder can
// arrange state directly instead of going through HTTP.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqlite.DB

	Tokens *auth.TokenService
	Auth   *service.AuthService
	Forum  *service.ForumService
	Faults *middleware.Faults
}

// New builds the dependency graph and the routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening forum database: %w", err)
	}

	authSvc := service.NewAuthService(db, tokens, auth.NewPasswordService(cfg.BcryptCost), logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		Tokens: tokens,
		Auth:   authSvc,
		Forum:  service.NewForumService(db, authSvc, logger),
		Faults: middleware.NewFaults(),
	}
	s.setupRoutes()
	return s, nil
}

// Close releases the forum database. With ":memory:" the data goes with it.
func (s *Server) Close() error {
	return s.db.Close()
}

// Handler returns the root handler, for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts /metrics and every API route under /api.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP  request metadata
//  2. Logger             one line per request, faults included
//  3. Recoverer          a panic becomes a 500
//  4. Faults             injected failures win over real handlers
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(s.Faults.Middleware)

	authH := handler.NewAuthHandler(s.Auth, s.logger)
	forumH := handler.NewForumHandler(s.Forum, s.logger)
	requireAuth := auth.RequireAuth(s.Tokens)

	// Process and Go runtime metrics from the default registry.
	s.router.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authH.HandleRegister)
		r.Post("/auth/login", authH.HandleLogin)

		// Public reads.
		r.Get("/questions", forumH.HandleList)
		r.Get("/questions/{id}", forumH.HandleGet)
		r.Get("/answers/question/{id}", forumH.HandleAnswers)
		r.Get("/users/{id}", authH.HandleUser)
		r.Get("/users/{id}/questions", forumH.HandleUserQuestions)

		// Everything else needs a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/users/me", authH.HandleMe)
			r.Put("/users/update", authH.HandleUpdateProfile)

			r.Post("/questions/ask", forumH.HandleAsk)
			r.Put("/questions/{id}/edit", forumH.HandleEdit)
			r.Delete("/questions/{id}", forumH.HandleDelete)
			r.Post("/questions/{id}/vote", forumH.HandleVote(model.TargetQuestion))

			r.Post("/answers/post", forumH.HandlePostAnswer)
			r.Put("/answers/{id}/edit", forumH.HandleEditAnswer)
			r.Delete("/answers/{id}", forumH.HandleDeleteAnswer)
			r.Post("/answers/{id}/vote", forumH.HandleVote(model.TargetAnswer))
		})
	})
}

// ErrDemoSeeded is returned by SeedDemo when the database already holds the
// demo account, as it does on a restart against the same --db file.
var ErrDemoSeeded = errors.New("server: demo data already present")

// SeedDemo registers a demo account and a handful of questions so a fresh
// server has something to list. It returns the demo user.
func (s *Server) SeedDemo(ctx context.Context) (model.User, error) {
	u, err := s.Auth.Register(ctx, "Demo User", "demo@campus.local", "demo")
	if errors.Is(err, apperror.ErrConflict) {
		return model.User{}, ErrDemoSeeded
	}
	if err != nil {
		return model.User{}, fmt.Errorf("seeding demo user: %w", err)
	}

	demo := []model.NewQuestion{
		{Title: "How do I reset my campus Wi-Fi password?", Body: "The self-service portal keeps timing out."},
		{Title: "Is the library open during reading week?", Body: "Looking for the weekend hours in particular."},
		{Title: "Best way to learn Go for the systems course?", Body: "Any book or course recommendations?"},
	}
	for _, nq := range demo {
		if _, err := s.Forum.Ask(ctx, u.ID, nq); err != nil {
			return model.User{}, fmt.Errorf("seeding demo question: %w", err)
		}
	}
	return u, nil
}

// Start listens on the configured port until SIGINT/SIGTERM, then drains
// in-flight requests for up to 30 seconds.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("forum API starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d/api", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
