package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/handler"
)

// Handlers bundles the HTTP handlers the server mounts.
type Handlers struct {
	Lifecycle    *handler.LifecycleHandler
	Rules        *handler.RulesHandler
	Intervention *handler.InterventionHandler
	Experiment   *handler.ExperimentHandler
	Analytics    *handler.AnalyticsHandler
}

// HTTPServer manages the REST API server lifecycle.
type HTTPServer struct {
	echo     *echo.Echo
	port     int
	handlers Handlers
}

// NewHTTPServer creates a new HTTP server instance.
func NewHTTPServer(port int, handlers Handlers) *HTTPServer {
	return &HTTPServer{
		port:     port,
		handlers: handlers,
	}
}

// Setup configures middleware and routes.
func (s *HTTPServer) Setup() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/v1")
	handler.SetupUserRoutes(api, s.handlers.Lifecycle, s.handlers.Intervention, s.handlers.Experiment, s.handlers.Rules)
	handler.SetupRuleRoutes(api, s.handlers.Rules)
	handler.SetupExperimentRoutes(api, s.handlers.Experiment)
	handler.SetupConversionRoutes(api, s.handlers.Intervention)
	handler.SetupAnalyticsRoutes(api, s.handlers.Analytics)

	s.echo = e
	return nil
}

// Start begins serving requests on the configured port.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		addr := fmt.Sprintf(":%d", s.port)
		logrus.Infof("HTTP server listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server...")
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("HTTP server stopped")
	return nil
}
