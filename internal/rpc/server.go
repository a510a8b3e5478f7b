package rpc

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/observability"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
)

// NewServer builds a grpc.Server with request-id, tracing and metrics
// interceptors and registers the simulation service for session.
// collector may be nil.
func NewServer(session *sim.Session, log logging.Logger, collector *observability.APICollector, opts ...grpc.ServerOption) *grpc.Server {
	if log == nil {
		log = logging.Noop()
	}
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log, session.ID()),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}, opts...)

	server := grpc.NewServer(opts...)
	RegisterSimulationServiceServer(server, NewSimulationService(session, log))
	return server
}
