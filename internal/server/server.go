// Package server wires handlers, middleware, and routes into an HTTP server.
//
// This is the composition root: the two storage drivers, the dual-store
// repository, the services, and the handlers are all constructed here and
// nowhere else. Which backend is primary is decided ONCE, from config, when
// the server is built — it never changes while the process runs.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rahat/vulnarena/internal/auth"
	"github.com/rahat/vulnarena/internal/config"
	"github.com/rahat/vulnarena/internal/handler"
	"github.com/rahat/vulnarena/internal/middleware"
	"github.com/rahat/vulnarena/internal/repository"
	"github.com/rahat/vulnarena/internal/repository/dualstore"
	mongoRepo "github.com/rahat/vulnarena/internal/repository/mongo"
	sqliteRepo "github.com/rahat/vulnarena/internal/repository/sqlite"
	"github.com/rahat/vulnarena/internal/service"
)

// Server owns the router and every resource that must be released on
// shutdown: both storage drivers are created here and closed when Start
// returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	mongo  *mongoRepo.Driver
	sqlite *sqliteRepo.Driver
	repo   *dualstore.Repository
	users  *service.UserService
}

// New assembles the full dependency chain:
//
//	mongo.Driver + sqlite.Driver → dualstore.Repository → UserService → handlers
//
// The drivers are ordered by cfg.PrimaryBackend before the dual-store
// repository ever sees them, so the coordinator itself stays backend-agnostic.
// Connections are NOT opened here — that happens in Start via Initialize, so
// a server can be constructed (and its routes tested) without live backends.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("configuring token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		mongo:  mongoRepo.New(cfg.MongoURI, cfg.MongoDB, logger),
		sqlite: sqliteRepo.New(cfg.SQLitePath, logger),
	}

	var primary, secondary repository.Driver = s.mongo, s.sqlite
	if cfg.PrimaryBackend == config.BackendRelational {
		primary, secondary = s.sqlite, s.mongo
	}

	s.repo = dualstore.New(primary, secondary, logger)
	s.users = service.NewUserService(s.repo, tokens, auth.NewPasswordService(), logger)

	s.setupRoutes(tokens)
	return s, nil
}

// setupRoutes configures middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz               → liveness probe (no auth)
//	POST /api/auth/register     → create account + session
//	POST /api/auth/login        → start session
//	POST /api/auth/logout       → end session            (auth)
//	GET  /api/me                → caller's account       (auth)
//	POST /api/flags             → submit a captured flag (auth)
//	GET  /api/users/search      → search accounts        (admin)
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	authHandler := handler.NewAuthHandler(s.users, s.logger)
	userHandler := handler.NewUserHandler(s.users, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/auth/logout", authHandler.HandleLogout)
			r.Get("/me", authHandler.HandleMe)
			r.Post("/flags", userHandler.HandleCompleteFlag)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(tokens))
			r.Get("/users/search", userHandler.HandleSearch)
		})
	})
}

// Start connects the backends, seeds the admin account, serves HTTP, and
// shuts everything down gracefully on SIGINT/SIGTERM.
//
// Initialize is best-effort by design: the server comes up as long as ONE
// backend is reachable. Only when neither can be reached does startup fail.
func (s *Server) Start() error {
	defer s.closeBackends()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.repo.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing backends: %w", err)
	}

	if s.config.AdminPassword != "" {
		if err := s.users.EnsureAdmin(ctx, s.config.AdminPassword); err != nil {
			// Retried on next start; a degraded backend at boot should not
			// keep the whole server down.
			s.logger.Warn("admin seeding failed", slog.String("error", err.Error()))
		}
	}

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
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("primaryBackend", s.config.PrimaryBackend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// closeBackends releases both storage connections. Failures are logged, not
// returned — by this point the server is going down either way.
func (s *Server) closeBackends() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.mongo.Close(ctx); err != nil {
		s.logger.Warn("closing document backend", slog.String("error", err.Error()))
	}
	if err := s.sqlite.Close(); err != nil {
		s.logger.Warn("closing relational backend", slog.String("error", err.Error()))
	}
}
