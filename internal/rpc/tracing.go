package rpc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/observability"
	"github.com/signalsfoundry/mto-simulator/model"
)

const tracerName = "github.com/signalsfoundry/mto-simulator/internal/rpc"

// Span attribute keys.
const (
	attrRequestID    = attribute.Key("mto.request_id")
	attrSessionID    = attribute.Key("mto.session_id")
	attrDecisionType = attribute.Key("mto.decision.type")
	attrOrderID      = attribute.Key("mto.order_id")
	attrGRPCCode     = attribute.Key("rpc.grpc.status_code")
)

// TracingUnaryServerInterceptor names the RPC span after the simulation
// method, tags it with the request and session ids and records the gRPC
// outcome. A server span is started when the otelgrpc handler is absent.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := "MTO/" + service + "/" + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(name)
		}

		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attrRequestID.String(id))
		}
		if id := logging.SessionIDFromContext(ctx); id != "" {
			span.SetAttributes(attrSessionID.String(id))
		}

		resp, err := handler(ctx, req)
		code := status.Code(err)
		span.SetAttributes(attrGRPCCode.Int(int(code)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, code.String())
		}
		return resp, err
	}
}

// annotateDecision tags the RPC span carried by ctx with the decision being
// applied, so rejected actions can be found by type.
func annotateDecision(ctx context.Context, kind model.DecisionType, orderID string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrDecisionType.String(string(kind)))
	if orderID != "" {
		span.SetAttributes(attrOrderID.String(orderID))
	}
}

// StartChildSpan starts a child span for engine work inside handlers.
// entityType and entityID are optional.
func StartChildSpan(ctx context.Context, name, entityType, entityID string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	if entityType != "" {
		attrs = append(attrs, attribute.String("mto.entity_type", entityType))
	}
	if entityID != "" {
		attrs = append(attrs, attribute.String("mto.entity_id", entityID))
	}
	attrs = append(attrs, extra...)
	return observability.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
