package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/model"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/mto.v1.SimulationService/Step"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationService", "Step", "OK")); got != 1 {
		t.Fatalf("mto_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "mto_rpc_request_duration_seconds", map[string]string{
		"service": "SimulationService",
		"method":  "Step",
	}); count != 1 {
		t.Fatalf("mto_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/mto.v1.SimulationService/ApplyAction"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.FailedPrecondition, "capacity")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationService", "ApplyAction", "FailedPrecondition")); got != 1 {
		t.Fatalf("mto_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestEchoMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	e := echo.New()
	e.Use(collector.EchoMiddleware())
	e.GET("/orders/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "missing")
	})

	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ORD-0001", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues(http.MethodGet, "/orders/:id", "404")); got != 1 {
		t.Fatalf("mto_http_requests_total = %v, want 1", got)
	}
}

func TestEngineCollectorObservesState(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	st := &core.State{
		Clock:   model.Clock{Elapsed: 90 * model.Second},
		Pending: []*model.Order{{ID: "A"}, {ID: "B"}},
		Departments: []*model.Department{
			{ID: 1, Queue: []*model.Order{{ID: "C"}}, InProcess: &model.Order{ID: "D"}},
		},
		Performance: model.Performance{
			OnTimeRate:  0.75,
			Departments: []model.DepartmentLoad{{DepartmentID: 1, WIP: 2, Utilization: 0.5}},
		},
	}
	collector.ObserveStep(st, 2*time.Millisecond)
	collector.ObserveEvents([]model.GameEvent{{Type: model.EventRushOrder}, {Type: model.EventRushOrder}})
	collector.ObserveDecision(model.DecisionAssign)
	collector.ObserveHistory("undo")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"elapsed", testutil.ToFloat64(collector.Elapsed), 90},
		{"pending", testutil.ToFloat64(collector.Orders.WithLabelValues("pending")), 2},
		{"queued", testutil.ToFloat64(collector.Orders.WithLabelValues("queued")), 1},
		{"processing", testutil.ToFloat64(collector.Orders.WithLabelValues("processing")), 1},
		{"on time", testutil.ToFloat64(collector.OnTimeRate), 0.75},
		{"utilization", testutil.ToFloat64(collector.DeptUtilization.WithLabelValues("1")), 0.5},
		{"wip", testutil.ToFloat64(collector.DeptWIP.WithLabelValues("1")), 2},
		{"rush events", testutil.ToFloat64(collector.Events.WithLabelValues(string(model.EventRushOrder))), 2},
		{"decisions", testutil.ToFloat64(collector.Decisions.WithLabelValues(string(model.DecisionAssign))), 1},
		{"undo", testutil.ToFloat64(collector.History.WithLabelValues("undo")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestCollectorsReuseRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}
	first.ObserveDecision(model.DecisionCancel)
	if got := testutil.ToFloat64(second.Decisions.WithLabelValues(string(model.DecisionCancel))); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesAPIAndEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	if _, err := NewEngineCollector(reg); err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.SetFeedSubscribers(3)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"mto_rpc_requests_total",
		"mto_rpc_request_duration_seconds",
		"mto_feed_subscribers 3",
		"mto_on_time_rate",
		"mto_sim_elapsed_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	tests := map[string][2]string{
		"/mto.v1.SimulationService/Undo": {"SimulationService", "Undo"},
		"":                               {"unknown", "unknown"},
		"noslash":                        {"unknown", "unknown"},
	}
	for in, want := range tests {
		svc, m := SplitMethod(in)
		if svc != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", in, svc, m, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
