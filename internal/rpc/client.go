package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/mto-simulator/core"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/model"
)

// SimulationServiceClient is a typed client for the simulation service.
type SimulationServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSimulationServiceClient wraps a client connection.
func NewSimulationServiceClient(cc grpc.ClientConnInterface) *SimulationServiceClient {
	return &SimulationServiceClient{cc: cc}
}

func (c *SimulationServiceClient) invoke(ctx context.Context, method string, in any, out any, opts ...grpc.CallOption) error {
	var req any = &emptypb.Empty{}
	if in != nil {
		st, err := Encode(in)
		if err != nil {
			return err
		}
		req = st
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, fullMethod(method), req, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return Decode(resp, out)
}

func (c *SimulationServiceClient) state(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*core.State, error) {
	st := &core.State{}
	if err := c.invoke(ctx, method, in, st, opts...); err != nil {
		return nil, err
	}
	return st, nil
}

// GetSnapshot returns the session view.
func (c *SimulationServiceClient) GetSnapshot(ctx context.Context, opts ...grpc.CallOption) (sim.View, error) {
	var v sim.View
	err := c.invoke(ctx, "GetSnapshot", nil, &v, opts...)
	return v, err
}

// Step advances a running session.
func (c *SimulationServiceClient) Step(ctx context.Context, delta model.Millis, opts ...grpc.CallOption) (*core.State, error) {
	return c.state(ctx, "Step", StepRequest{DeltaMillis: delta}, opts...)
}

// ApplyAction submits a player decision.
func (c *SimulationServiceClient) ApplyAction(ctx context.Context, req sim.ActionRequest, opts ...grpc.CallOption) (DecisionResult, error) {
	var res DecisionResult
	err := c.invoke(ctx, "ApplyAction", req, &res, opts...)
	return res, err
}

// Undo reverts the latest decision.
func (c *SimulationServiceClient) Undo(ctx context.Context, opts ...grpc.CallOption) (DecisionResult, error) {
	var res DecisionResult
	err := c.invoke(ctx, "Undo", nil, &res, opts...)
	return res, err
}

// Redo reapplies the latest undone decision.
func (c *SimulationServiceClient) Redo(ctx context.Context, opts ...grpc.CallOption) (DecisionResult, error) {
	var res DecisionResult
	err := c.invoke(ctx, "Redo", nil, &res, opts...)
	return res, err
}

// ClearHistory drops the decision log.
func (c *SimulationServiceClient) ClearHistory(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("ClearHistory"), &emptypb.Empty{}, &emptypb.Empty{}, opts...)
}

// Pause stops the session clock.
func (c *SimulationServiceClient) Pause(ctx context.Context, opts ...grpc.CallOption) (*core.State, error) {
	return c.state(ctx, "Pause", nil, opts...)
}

// Resume starts or resumes the session clock.
func (c *SimulationServiceClient) Resume(ctx context.Context, opts ...grpc.CallOption) (*core.State, error) {
	return c.state(ctx, "Resume", nil, opts...)
}

// Reset rebuilds the session.
func (c *SimulationServiceClient) Reset(ctx context.Context, opts ...grpc.CallOption) (*core.State, error) {
	return c.state(ctx, "Reset", nil, opts...)
}

// SetSpeed changes the speed multiplier.
func (c *SimulationServiceClient) SetSpeed(ctx context.Context, speed int, opts ...grpc.CallOption) (*core.State, error) {
	return c.state(ctx, "SetSpeed", SpeedRequest{Speed: speed}, opts...)
}

// StateWatcher receives WatchState messages.
type StateWatcher struct {
	stream grpc.ClientStream
}

// Recv blocks for the next update.
func (w *StateWatcher) Recv() (StateUpdate, error) {
	msg := &structpb.Struct{}
	if err := w.stream.RecvMsg(msg); err != nil {
		return StateUpdate{}, err
	}
	var u StateUpdate
	if err := Decode(msg, &u); err != nil {
		return StateUpdate{}, err
	}
	return u, nil
}

// WatchState opens the update stream. The first message is the current
// snapshot. Cancel ctx to close it.
func (c *SimulationServiceClient) WatchState(ctx context.Context, opts ...grpc.CallOption) (*StateWatcher, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("WatchState"), opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, fmt.Errorf("WatchState: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("WatchState: %w", err)
	}
	return &StateWatcher{stream: stream}, nil
}
