// Package ops provides the optional operational HTTP listener: a health
// endpoint and Prometheus metrics. It runs beside the stdio MCP loop and is
// disabled unless an address is configured — the bridge itself never serves
// MCP over HTTP.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthInfo is the static status reported by /healthz.
type HealthInfo struct {
	Version  string `json:"version"`
	AuthMode string `json:"auth_mode"`
	BaseURL  string `json:"base_url"`
}

// Server is the ops HTTP listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New builds an ops Server listening on addr.
func New(addr string, corsOrigins []string, info HealthInfo, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if len(corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{http.MethodGet},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"version":   info.Version,
			"auth_mode": info.AuthMode,
			"base_url":  info.BaseURL,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown is called. It blocks; run it in a goroutine.
func (s *Server) Start() {
	s.logger.Info("ops listener started", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("ops listener failed", zap.Error(err))
	}
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
