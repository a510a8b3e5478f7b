package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/signalsfoundry/mto-simulator/core"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/internal/storage"
	"github.com/signalsfoundry/mto-simulator/model"
)

type decisionResponse struct {
	Decision model.Decision `json:"decision"`
	State    *core.State    `json:"state"`
}

type decisionsResponse struct {
	Decisions []model.Decision `json:"decisions"`
	Cursor    int              `json:"cursor"`
}

type orderResponse struct {
	Order        *model.Order `json:"order"`
	Location     string       `json:"location"`
	DepartmentID int          `json:"department_id,omitempty"`
}

type stepRequest struct {
	DeltaMillis model.Millis `json:"delta_ms"`
}

type speedRequest struct {
	Speed int `json:"speed"`
}

type restoreRequest struct {
	SessionID string `json:"session_id"`
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func handleGetState(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.View())
	}
}

func handleGetDecisions(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		decisions, cursor := s.Decisions()
		return c.JSON(http.StatusOK, decisionsResponse{Decisions: decisions, Cursor: cursor})
	}
}

func handleGetOrder(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		o, loc := s.Snapshot().Locate(id)
		if o == nil {
			return fmt.Errorf("%w: %s", core.ErrOrderNotFound, id)
		}
		return c.JSON(http.StatusOK, orderResponse{Order: o, Location: loc.Kind.String(), DepartmentID: loc.DepartmentID})
	}
}

func handleApplyAction(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sim.ActionRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		action, err := req.ToAction()
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		d, err := s.Apply(ctx, action)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, decisionResponse{Decision: d, State: s.Snapshot()})
	}
}

func handleUndo(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		d, err := s.Undo(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, decisionResponse{Decision: d, State: s.Snapshot()})
	}
}

func handleRedo(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		d, err := s.Redo(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, decisionResponse{Decision: d, State: s.Snapshot()})
	}
}

func handleClearHistory(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.ClearHistory(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	}
}

func handlePause(s *sim.Session) echo.HandlerFunc {
	return stateHandler(s.Pause)
}

func handleResume(s *sim.Session) echo.HandlerFunc {
	return stateHandler(s.Resume)
}

func handleReset(s *sim.Session) echo.HandlerFunc {
	return stateHandler(s.Reset)
}

func stateHandler(fn func(ctx context.Context) (*core.State, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := fn(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, st)
	}
}

func handleStep(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req stepRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		if req.DeltaMillis <= 0 {
			return fmt.Errorf("%w: delta_ms must be positive", errInvalidBody)
		}
		st, err := s.Step(c.Request().Context(), req.DeltaMillis)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, st)
	}
}

func handleSetSpeed(s *sim.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req speedRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		st, err := s.SetSpeed(c.Request().Context(), req.Speed)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, st)
	}
}

func handleSaveSnapshot(s *sim.Session, store *storage.SnapshotStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := store.Save(c.Request().Context(), s.ID(), s.Snapshot())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, snap)
	}
}

func handleRestoreSnapshot(s *sim.Session, store *storage.SnapshotStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req restoreRequest
		if c.Request().ContentLength > 0 {
			if err := bind(c, &req); err != nil {
				return err
			}
		}
		if req.SessionID == "" {
			req.SessionID = s.ID()
		}
		ctx := c.Request().Context()
		st, err := store.Load(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if err := s.Restore(ctx, st); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s.View())
	}
}
