package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/signalsfoundry/mto-simulator/internal/logging"
)

func registerRoutes(e *echo.Echo, cfg Config, log logging.Logger, deps Dependencies) {
	s := deps.Session
	feed := newFeed(s, deps.Collector, log)

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if deps.Collector != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Collector.Handler()))
	}

	api := e.Group("/api")
	api.GET("/state", handleGetState(s))
	api.GET("/decisions", handleGetDecisions(s))
	api.GET("/orders/:id", handleGetOrder(s))
	api.POST("/actions", handleApplyAction(s), actionLimiter(cfg.ActionRate, cfg.ActionBurst))

	api.POST("/undo", handleUndo(s))
	api.POST("/redo", handleRedo(s))
	api.POST("/history/clear", handleClearHistory(s))

	control := api.Group("/control")
	control.POST("/pause", handlePause(s))
	control.POST("/resume", handleResume(s))
	control.POST("/reset", handleReset(s))
	control.POST("/step", handleStep(s))
	control.PUT("/speed", handleSetSpeed(s))

	if deps.Store != nil {
		api.POST("/snapshot", handleSaveSnapshot(s, deps.Store))
		api.POST("/snapshot/restore", handleRestoreSnapshot(s, deps.Store))
	}

	api.GET("/ws", feed.handle)
}
