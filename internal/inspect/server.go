// Package inspect serves the session state and metrics over HTTP for
// debugging a live client. Everything is read-only.
package inspect

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voco/internal/logging"
	"voco/internal/timeline"
)

// Snapshotter provides the session to serve. *timeline.Store satisfies it.
type Snapshotter interface {
	Snapshot() *timeline.Session
}

// Server exposes /api/health, /api/session and /metrics.
type Server struct {
	httpSrv *http.Server
	log     *logging.Logger
}

// New builds the server. gatherer may be nil when metrics are not wired.
func New(port int, source Snapshotter, gatherer promclient.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	started := time.Now()
	router.GET("/api/health", func(c *gin.Context) {
		snap := source.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"conn_state": snap.ConnState,
			"uptime":     time.Since(started).Round(time.Second).String(),
		})
	})
	router.GET("/api/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, source.Snapshot())
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{
		httpSrv: &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", port),
			Handler: router,
		},
		log: logging.ForComponent("inspect"),
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Start serves until Shutdown. It returns when the listener closes.
func (s *Server) Start() error {
	s.log.Info("inspection server on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("inspection server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
