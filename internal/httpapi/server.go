// Package httpapi serves the simulation session over HTTP and a websocket
// state feed.
package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/observability"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/internal/storage"
)

// Config holds HTTP server settings.
type Config struct {
	Addr        string
	ActionRate  float64
	ActionBurst int
}

// Dependencies are the collaborators the handlers use. Collector and Store
// may be nil.
type Dependencies struct {
	Session   *sim.Session
	Collector *observability.APICollector
	Store     *storage.SnapshotStore
}

// NewServer returns an http.Server for the API.
func NewServer(cfg Config, log logging.Logger, deps Dependencies) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, log, deps),
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		MaxHeaderBytes:    1 << 14,
	}
}

// NewHandler builds the echo router. It is separate from NewServer so tests
// can drive it with httptest.
func NewHandler(cfg Config, log logging.Logger, deps Dependencies) *echo.Echo {
	if log == nil {
		log = logging.Noop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(middleware.Recover())
	e.Use(requestLogger(log, deps.Session.ID()))
	if deps.Collector != nil {
		e.Use(deps.Collector.EchoMiddleware())
	}

	registerRoutes(e, cfg, log, deps)
	return e
}
