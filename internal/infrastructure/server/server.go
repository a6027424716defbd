// Package server wires the backend together: config, logging, metrics,
// session manager, poller, providers, REST routes and the stream endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/vterm/vterm/backend/internal/api/http"
	"github.com/vterm/vterm/backend/internal/api/middleware"
	"github.com/vterm/vterm/backend/internal/api/ws"
	"github.com/vterm/vterm/backend/internal/infrastructure/config"
	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
	"github.com/vterm/vterm/backend/internal/infrastructure/monitoring"
	"github.com/vterm/vterm/backend/internal/providers/dialog"
	"github.com/vterm/vterm/backend/internal/providers/notify"
	"github.com/vterm/vterm/backend/internal/providers/store"
	"github.com/vterm/vterm/backend/internal/session"
)

const closeAllTimeout = 5 * time.Second

// Server owns the HTTP listener and every long-lived component behind it.
type Server struct {
	httpServer *http.Server
	manager    *session.Manager
	poller     *session.Poller
	wsHandler  *ws.Handler
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer builds a fully wired server from config.
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.NewWithLevel(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing vtermd",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Storage.Dir),
	)

	metrics := monitoring.NewMetrics()

	hub := session.NewHub()
	manager := session.NewManager(cfg.Session, hub, logger).WithMetrics(metrics)
	poller := session.NewPoller(manager, cfg.Session.PollInterval, logger)

	dlg := dialog.New(logger)
	notifier := notify.New(logger)
	docStore := store.New(cfg.Storage.Dir, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(manager, docStore)
	wsHandler := ws.NewHandler(manager, dlg, notifier, docStore, logger).WithMetrics(metrics)

	router.GET("/health", handlers.Health)

	router.GET("/sessions", handlers.ListSessions)
	router.POST("/sessions", handlers.CreateSession)
	router.DELETE("/sessions/:id", handlers.KillSession)
	router.POST("/sessions/:id/resize", handlers.ResizeSession)

	router.POST("/projects/detect", handlers.DetectProject)

	router.GET("/documents/:name", handlers.LoadDocument)
	router.PUT("/documents/:name", handlers.SaveDocument)

	router.GET("/stream", wsHandler.HandleConnection)

	router.GET("/metrics", metrics.Handler())

	poller.Start()

	logger.Info("Server initialized")

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
		manager:   manager,
		poller:    poller,
		wsHandler: wsHandler,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// StreamHandler exposes the ws handler so an external update checker can
// publish update events to connected clients.
func (s *Server) StreamHandler() *ws.Handler {
	return s.wsHandler
}

// Run serves until the listener closes.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close drains the listener and tears everything down. Every live session
// is killed and waited for so no shell outlives the backend.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down")

	err := s.httpServer.Shutdown(ctx)

	s.poller.Stop()
	s.wsHandler.Shutdown()
	s.manager.CloseAll(closeAllTimeout)

	s.logger.Sync()
	return err
}
