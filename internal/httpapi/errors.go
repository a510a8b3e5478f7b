package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/internal/storage"
	"github.com/signalsfoundry/mto-simulator/kb"
)

// errInvalidBody is returned when a request body cannot be bound.
var errInvalidBody = errors.New("invalid request body")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps simulator errors onto HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrOrderNotFound),
		errors.Is(err, core.ErrDepartmentNotFound),
		errors.Is(err, kb.ErrDepartmentNotFound),
		errors.Is(err, storage.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrSnapshotStale):
		return http.StatusGone
	case errors.Is(err, errInvalidBody),
		errors.Is(err, core.ErrInvalidAction),
		errors.Is(err, core.ErrInvalidRoute),
		errors.Is(err, core.ErrRouting):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSequencing),
		errors.Is(err, core.ErrCapacity),
		errors.Is(err, core.ErrDepartmentBusy),
		errors.Is(err, core.ErrDepartmentIdle),
		errors.Is(err, core.ErrMaintenance),
		errors.Is(err, core.ErrSessionNotRunning),
		errors.Is(err, core.ErrAdvancedRoutingDisabled),
		errors.Is(err, core.ErrNothingToRebalance),
		errors.Is(err, sim.ErrNothingToUndo),
		errors.Is(err, sim.ErrNothingToRedo):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(log logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := statusFor(err)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(he.Code)
			}
		}
		ctx := c.Request().Context()
		if code >= http.StatusInternalServerError {
			loggerFrom(c, log).Error(ctx, "request failed", logging.Err(err))
		}
		resp := errorResponse{Error: msg, RequestID: logging.RequestIDFromContext(ctx)}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, resp)
	}
}
