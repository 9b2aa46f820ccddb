package apiserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/querywarden/querywarden/pkg/admission"
	"github.com/querywarden/querywarden/pkg/apiserver/handlers"
	"github.com/querywarden/querywarden/pkg/apiserver/middleware"
	"github.com/querywarden/querywarden/pkg/config"
	"github.com/querywarden/querywarden/pkg/resource"
	"github.com/querywarden/querywarden/pkg/stats"
	"github.com/querywarden/querywarden/pkg/tracker"
)

// Server is the node's monitoring surface: group stats snapshots, prometheus
// metrics and a thin admission-check binding. It owns no governance logic.
type Server struct {
	router     *gin.Engine
	cfg        *config.Config
	logger     *zap.Logger
	registry   *stats.Registry
	tracker    *tracker.Tracker
	catalog    *resource.Catalog
	controller *admission.Controller
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	registry *stats.Registry,
	tr *tracker.Tracker,
	catalog *resource.Catalog,
	controller *admission.Controller,
) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		tracker:    tr,
		catalog:    catalog,
		controller: controller,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		statsHandler := handlers.NewStatsHandler(s.registry, s.tracker, s.catalog, s.logger)
		api.GET("/stats", statsHandler.List)
		api.GET("/stats/:group", statsHandler.Get)

		admissionHandler := handlers.NewAdmissionHandler(s.controller, s.logger)
		api.POST("/admission/check", admissionHandler.Check)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: s.cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}
