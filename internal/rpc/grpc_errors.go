package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/mto-simulator/core"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/kb"
)

// ErrInvalidRequest is used when a request payload cannot be decoded.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, core.ErrOrderNotFound),
		errors.Is(err, core.ErrDepartmentNotFound),
		errors.Is(err, kb.ErrDepartmentNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidAction),
		errors.Is(err, core.ErrInvalidRoute),
		errors.Is(err, core.ErrRouting):
		return status.Error(codes.InvalidArgument, err.Error())

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
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
