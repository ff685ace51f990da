package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"NewsRadar/internal/config"
	"NewsRadar/internal/coordination"
	"NewsRadar/internal/domain"
	"NewsRadar/internal/usecase"
)

// WorkerControl reads worker status and issues commands across processes.
type WorkerControl interface {
	Status(ctx context.Context, name string) (coordination.Status, error)
	Issue(ctx context.Context, name string, action domain.WorkerAction) (domain.WorkerCommand, error)
}

// FetchTrigger starts a one-off fetch of a single source.
type FetchTrigger interface {
	TriggerFetch(ctx context.Context, sourceID string) error
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps wires the collaborators served over HTTP.
type Deps struct {
	Control WorkerControl
	Fetcher FetchTrigger
	Checks  map[string]HealthCheck
	Metrics gin.HandlerFunc
	// Middleware runs before every route, e.g. request metrics.
	Middleware []gin.HandlerFunc
	Logger     *slog.Logger
}

// Server is the operational HTTP surface.
type Server struct {
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
	http   *http.Server
}

// New builds the router. Call ListenAndServe to accept connections.
func New(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{deps: deps, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.engine.Use(deps.Middleware...)
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", s.deps.Metrics)
	}

	admin := s.engine.Group("/admin")
	admin.GET("/workers/:name", s.workerStatus)
	admin.POST("/workers/:name/:action", s.workerCommand)
	admin.POST("/sources/:id/fetch", s.fetchSource)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server stops; ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	checks := make(gin.H, len(s.deps.Checks))
	status := http.StatusOK
	for name, check := range s.deps.Checks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}

func (s *Server) workerStatus(c *gin.Context) {
	if s.deps.Control == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "worker control not configured"})
		return
	}

	status, err := s.deps.Control.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.logger.Error("read worker status", "worker", c.Param("name"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read worker status"})
		return
	}

	body := gin.H{
		"name":        status.Name,
		"known":       status.Known,
		"state":       status.State,
		"observed_at": status.ObservedAt,
	}
	if status.Stats != nil {
		body["stats"] = status.Stats
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) workerCommand(c *gin.Context) {
	if s.deps.Control == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "worker control not configured"})
		return
	}

	action := domain.WorkerAction(c.Param("action"))
	if !action.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action %q", action)})
		return
	}

	cmd, err := s.deps.Control.Issue(c.Request.Context(), c.Param("name"), action)
	if err != nil {
		s.logger.Error("issue worker command", "worker", c.Param("name"), "action", action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue command"})
		return
	}

	// Accepted only: the owning process executes it on its next poll.
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "command": cmd})
}

func (s *Server) fetchSource(c *gin.Context) {
	if s.deps.Fetcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not configured"})
		return
	}

	id := c.Param("id")
	err := s.deps.Fetcher.TriggerFetch(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "source": id})
	case usecase.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
	case errors.Is(err, usecase.ErrSourceDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": "source is disabled"})
	case errors.Is(err, usecase.ErrSchedulerStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is shutting down"})
	default:
		s.logger.Error("trigger fetch", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger fetch"})
	}
}
