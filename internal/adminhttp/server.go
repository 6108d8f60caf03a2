// Package adminhttp serves the gateway's operational surface: liveness and
// readiness probes and a Prometheus scrape endpoint. It never carries IRC
// or backend protocol traffic, which stays on the raw TCP listener.
//
// Adapted from the teacher's health.Handler: the same liveness/readiness
// probe split and JSON response shape, with the gRPC SFU health check
// dropped (this gateway has no SFU dependency) and the Redis check
// repurposed to the fleet heartbeat's Redis connection.
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ircbridge/gateway/internal/logging"
)

// SessionCounter reports the current number of active bridge sessions.
type SessionCounter interface {
	ActiveSessions() int
}

// Server is the admin HTTP surface's gin engine plus its dependencies.
type Server struct {
	engine  *gin.Engine
	redis   *redis.Client
	counter SessionCounter
}

// LivenessResponse mirrors the shape liveness probes expect.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse reports the status of every checked dependency.
type ReadinessResponse struct {
	Status         string            `json:"status"`
	Checks         map[string]string `json:"checks"`
	ActiveSessions int               `json:"active_sessions"`
	Timestamp      string            `json:"timestamp"`
}

// New builds the admin HTTP server. redisClient may be nil when fleet
// heartbeating is disabled; the readiness check then reports redis as
// healthy without pinging anything.
func New(redisClient *redis.Client, counter SessionCounter) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.Correlation())

	s := &Server{engine: engine, redis: redisClient, counter: counter}

	engine.GET("/healthz", s.liveness)
	engine.GET("/readyz", s.readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// ListenAndServe starts the admin HTTP server on addr, blocking until ctx
// is cancelled or the server errors.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"redis": s.checkRedis(ctx)}

	status := "ready"
	statusCode := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	active := 0
	if s.counter != nil {
		active = s.counter.ActiveSessions()
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:         status,
		Checks:         checks,
		ActiveSessions: active,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) checkRedis(ctx context.Context) string {
	if s.redis == nil {
		return "healthy"
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		logging.Error(ctx, "admin readiness: redis ping failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
