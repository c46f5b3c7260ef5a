// Package gateway is the shim's public HTTP surface: the platform
// health-check responder, a small admin/status API, Prometheus metrics, and
// the catch-all reverse-proxy forwarder to the backend.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/captainplanet9000/Agent9001/internal/metrics"
	"github.com/captainplanet9000/Agent9001/internal/supervisor"
	"github.com/gin-gonic/gin"
)

const serviceName = "Agent9001"

// Config for the public listener.
type Config struct {
	ListenAddr string
	HealthPath string
	BackendURL string
}

// StateSource is the read side of the shared lifecycle state. The
// supervisor's Tracker satisfies it; tests inject a stub.
type StateSource interface {
	State() supervisor.State
	Snapshot() supervisor.View
}

// Gateway dispatches inbound requests by path: the health path and admin
// paths are answered locally, everything else is forwarded to the backend.
type Gateway struct {
	cfg     Config
	tracker StateSource
	fwd     *Forwarder
	server  *http.Server
}

func New(cfg Config, tracker StateSource) (*Gateway, error) {
	fwd, err := NewForwarder(cfg.BackendURL, tracker)
	if err != nil {
		return nil, err
	}
	g := &Gateway{cfg: cfg, tracker: tracker, fwd: fwd}
	g.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout stays 0: the backend streams long-lived responses
		// (SSE, large downloads) through the forwarder.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return g, nil
}

// Handler returns the gin-powered http.Handler so it can be mounted in tests
// or an external server.
func (g *Gateway) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(g.cfg.HealthPath, g.handleHealth)
	if g.cfg.HealthPath != "/api/health" {
		r.GET("/api/health", g.handleHealth)
	}
	r.GET("/api/status", g.handleStatus)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.NoRoute(g.fwd.Handle)
	return r
}

// ListenAndServe blocks until the server stops.
func (g *Gateway) ListenAndServe() error {
	return g.server.ListenAndServe()
}

// Shutdown stops accepting new connections and lets in-flight requests drain
// until ctx expires.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// handleHealth always answers 200 while this process is alive, independent
// of backend state. The platform's health window is shorter than the
// backend's cold start; coupling the two would get the deployment killed
// mid-initialization.
func (g *Gateway) handleHealth(c *gin.Context) {
	metrics.IncHealthRequest()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   serviceName,
		"timestamp": time.Now().Unix(),
		"message":   "Health check passed",
	})
}

func (g *Gateway) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, g.tracker.Snapshot())
}
