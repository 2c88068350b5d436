package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pritam/bingocraft/internal/adapter"
	"github.com/pritam/bingocraft/internal/config"
	"github.com/pritam/bingocraft/internal/engine"
	"github.com/pritam/bingocraft/internal/notify"
	"github.com/pritam/bingocraft/internal/store"
)

// Server exposes the administrative surface: instance lifecycle
// management, host-event injection, diagnostics, and the websocket
// notification stream.
type Server struct {
	cfg     config.ServerConfig
	gameCfg config.GameConfig
	engine  *engine.Engine
	adapter *adapter.Adapter
	store   *store.SQLiteStore
	hub     *notify.Hub
	logger  *zap.Logger

	adminPasswordHash string
	httpServer        *http.Server
}

// New creates the admin server.
func New(
	cfg config.ServerConfig,
	adminCfg config.AdminConfig,
	gameCfg config.GameConfig,
	eng *engine.Engine,
	adp *adapter.Adapter,
	st *store.SQLiteStore,
	hub *notify.Hub,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:               cfg,
		gameCfg:           gameCfg,
		engine:            eng,
		adapter:           adp,
		store:             st,
		hub:               hub,
		logger:            logger,
		adminPasswordHash: adminCfg.PasswordHash,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/instances", s.handleListInstances)
		r.Get("/instances/{id}", s.handleGetInstance)
		r.Get("/diagnostics", s.handleDiagnostics)

		r.Group(func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)
			r.Post("/instances", s.handleCreateInstance)
			r.Post("/instances/{id}/activate", s.handleActivateInstance)
			r.Post("/instances/{id}/abort", s.handleAbortInstance)
			r.Post("/events", s.handleHostEvent)
		})
	})

	return r
}

// Start runs the HTTP server until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting admin server", zap.String("address", s.cfg.Address))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
