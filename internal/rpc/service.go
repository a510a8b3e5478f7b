// Package rpc exposes a simulation session over gRPC. Messages are protobuf
// well-known types carrying the JSON shape of the engine types, so no
// generated code is needed.
package rpc

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "mto.v1.SimulationService"

// watchBuffer bounds the per-stream backlog; a slower client misses
// intermediate updates but always receives later ones.
const watchBuffer = 32

// SimulationServiceServer is the server API for the simulation service.
type SimulationServiceServer interface {
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Undo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Redo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ClearHistory(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Pause(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Resume(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetSpeed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchState(*emptypb.Empty, WatchStateServer) error
}

// WatchStateServer is the server side of the WatchState stream.
type WatchStateServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchStateServer struct {
	grpc.ServerStream
}

func (s *watchStateServer) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req proto.Message](name string, newReq func() Req, call func(SimulationServiceServer, context.Context, Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(SimulationServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(Req))
			})
		},
	}
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// ServiceDesc describes the simulation service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetSnapshot", newEmpty, func(s SimulationServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetSnapshot(ctx, in)
		}),
		unary("Step", newStruct, func(s SimulationServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Step(ctx, in)
		}),
		unary("ApplyAction", newStruct, func(s SimulationServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.ApplyAction(ctx, in)
		}),
		unary("Undo", newEmpty, func(s SimulationServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Undo(ctx, in)
		}),
		unary("Redo", newEmpty, func(s SimulationServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Redo(ctx, in)
		}),
		unary("ClearHistory", newEmpty, func(s SimulationServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ClearHistory(ctx, in)
		}),
		unary("Pause", newEmpty, func(s SimulationServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Pause(ctx, in)
		}),
		unary("Resume", newEmpty, func(s SimulationServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Resume(ctx, in)
		}),
		unary("Reset", newEmpty, func(s SimulationServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Reset(ctx, in)
		}),
		unary("SetSpeed", newStruct, func(s SimulationServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.SetSpeed(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchState",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(SimulationServiceServer).WatchState(in, &watchStateServer{stream})
			},
		},
	},
	Metadata: "mto/v1/simulation.proto",
}

// RegisterSimulationServiceServer registers srv with the registrar.
func RegisterSimulationServiceServer(r grpc.ServiceRegistrar, srv SimulationServiceServer) {
	r.RegisterService(&ServiceDesc, srv)
}

// SimulationService implements SimulationServiceServer on top of a session.
type SimulationService struct {
	session *sim.Session
	log     logging.Logger
}

// NewSimulationService binds the service to a session.
func NewSimulationService(session *sim.Session, log logging.Logger) *SimulationService {
	if log == nil {
		log = logging.Noop()
	}
	return &SimulationService{session: session, log: log}
}

func (s *SimulationService) ensureReady() error {
	if s == nil || s.session == nil {
		return ToStatusError(fmt.Errorf("%w: simulation session not initialised", core.ErrSessionNotRunning))
	}
	return nil
}

func (s *SimulationService) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func encodeOrStatus(v any) (*structpb.Struct, error) {
	out, err := Encode(v)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// GetSnapshot returns the current state and decision log.
func (s *SimulationService) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return encodeOrStatus(s.session.View())
}

// Step advances a running session by delta_ms.
func (s *SimulationService) Step(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req StepRequest
	if err := Decode(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if req.DeltaMillis <= 0 {
		return nil, ToStatusError(fmt.Errorf("%w: delta_ms must be positive", ErrInvalidRequest))
	}

	ctx, span := StartChildSpan(ctx, "engine.Step", "session", s.session.ID(),
		attribute.Int64("mto.delta_ms", int64(req.DeltaMillis)))
	defer span.End()

	st, err := s.session.Step(ctx, req.DeltaMillis)
	if err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(st)
}

// ApplyAction decodes an action request and applies it as a decision.
func (s *SimulationService) ApplyAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req sim.ActionRequest
	if err := Decode(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	action, err := req.ToAction()
	if err != nil {
		return nil, ToStatusError(err)
	}

	annotateDecision(ctx, action.Kind(), action.Target())
	ctx, span := StartChildSpan(ctx, "engine.Apply", "order", action.Target(),
		attrDecisionType.String(string(action.Kind())))
	defer span.End()

	dec, err := s.session.Apply(ctx, action)
	if err != nil {
		span.RecordError(err)
		s.logger(ctx).Debug(ctx, "ApplyAction rejected",
			logging.String("type", string(req.Type)),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(DecisionResult{Decision: dec, State: s.session.Snapshot()})
}

// Undo reverts the latest decision.
func (s *SimulationService) Undo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	dec, err := s.session.Undo(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(DecisionResult{Decision: dec, State: s.session.Snapshot()})
}

// Redo reapplies the latest undone decision.
func (s *SimulationService) Redo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	dec, err := s.session.Redo(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(DecisionResult{Decision: dec, State: s.session.Snapshot()})
}

// ClearHistory drops the decision log.
func (s *SimulationService) ClearHistory(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	s.session.ClearHistory(ctx)
	return &emptypb.Empty{}, nil
}

// Pause stops the session clock.
func (s *SimulationService) Pause(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	st, err := s.session.Pause(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(st)
}

// Resume starts or resumes the session clock.
func (s *SimulationService) Resume(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	st, err := s.session.Resume(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(st)
}

// Reset rebuilds the session from its configuration.
func (s *SimulationService) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	st, err := s.session.Reset(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(st)
}

// SetSpeed changes the speed multiplier.
func (s *SimulationService) SetSpeed(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req SpeedRequest
	if err := Decode(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	st, err := s.session.SetSpeed(ctx, req.Speed)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return encodeOrStatus(st)
}

// WatchState streams the current state followed by every later update
// until the client goes away.
func (s *SimulationService) WatchState(_ *emptypb.Empty, stream WatchStateServer) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx := stream.Context()

	updates := make(chan sim.Update, watchBuffer)
	unsubscribe := s.session.Subscribe(func(u sim.Update) {
		select {
		case updates <- u:
		default:
		}
	})
	defer unsubscribe()

	first, err := Encode(StateUpdate{Reason: "snapshot", State: s.session.Snapshot()})
	if err != nil {
		return ToStatusError(err)
	}
	if err := stream.Send(first); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			msg, err := Encode(updateFromSession(u))
			if err != nil {
				return ToStatusError(err)
			}
			if err := stream.Send(msg); err != nil {
				s.logger(ctx).Debug(ctx, "WatchState send failed", logging.Err(err))
				return err
			}
		}
	}
}
