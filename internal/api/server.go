package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slidecast/internal/registry"
	"slidecast/internal/session"
)

// HealthChecker is the slice of the database manager the API needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server exposes the read-only HTTP surface: health, per-game stats, and
// process-wide stats. Session mutation happens only through the websocket
// protocol.
type Server struct {
	store    *session.Store
	registry *registry.Registry
	health   HealthChecker
	log      *zap.Logger
}

// NewServer creates the API server.
func NewServer(store *session.Store, reg *registry.Registry, health HealthChecker, log *zap.Logger) *Server {
	return &Server{store: store, registry: reg, health: health, log: log}
}

// Register attaches the API routes to a gin engine.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	r.GET("/api/stats", s.handleStats)
	r.GET("/api/games/:id/stats", s.handleGameStats)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.registry.Stats()
	stats["live_sessions"] = s.store.Len()
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGameStats(c *gin.Context) {
	gameID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	sess, ok := s.store.Get(gameID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session for game"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gameId": gameID,
		"stats":  sess.Stats(),
	})
}
