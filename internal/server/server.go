package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/retentionapp/retention/internal/config"
)

// Server is the HTTP front end over Store: the REST API the sync engine
// talks to, plus a websocket endpoint for live change notifications.
type Server struct {
	cfg    config.ServerConfig
	store  *Store
	hub    *Hub
	logger *log.Logger
	http   *http.Server
}

// New creates a server over an open store. A nil logger logs to stderr.
func New(cfg config.ServerConfig, store *Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	s := &Server{
		cfg:    cfg,
		store:  store,
		hub:    NewHub(logger),
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/time", s.handleTime)
		r.Post("/users/register", s.handleRegister)
		r.Get("/topics", s.handleListTopics)
		r.Post("/topics", s.handleCreateTopic)
		r.Put("/topics/{id}", s.handleUpdateTopic)
		r.Delete("/topics/{id}", s.handleDeleteTopic)
		r.Post("/topics/{id}/review", s.handleCompleteReview)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/calendar", s.handleCalendar)
	})
	r.Get("/ws", s.hub.ServeHTTP)
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens on the configured address and serves until Shutdown.
// It blocks; http.ErrServerClosed is swallowed.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.logger.Printf("listening on http://%s", ln.Addr())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, disconnects websocket clients,
// and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return s.store.Close()
}
