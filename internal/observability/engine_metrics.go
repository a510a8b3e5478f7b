package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/model"
)

// EngineCollector exposes simulation metrics. It satisfies the session's
// MetricsRecorder so the session drives it after every change.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	StepDuration    prometheus.Histogram
	Elapsed         prometheus.Gauge
	Orders          *prometheus.GaugeVec
	OnTimeRate      prometheus.Gauge
	AverageLead     prometheus.Gauge
	DeptUtilization *prometheus.GaugeVec
	DeptWIP         *prometheus.GaugeVec
	Events          *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	History         *prometheus.CounterVec
}

// NewEngineCollector registers engine metrics against the provided registerer.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stepHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mto_step_duration_seconds",
		Help:    "Wall time spent computing one simulation step.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}), "mto_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	elapsed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mto_sim_elapsed_seconds",
		Help: "Simulated time elapsed in the current session.",
	}), "mto_sim_elapsed_seconds")
	if err != nil {
		return nil, err
	}

	orders, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mto_orders",
		Help: "Orders by location: scheduled, pending, queued, processing, completed, cancelled.",
	}, []string{"location"}), "mto_orders")
	if err != nil {
		return nil, err
	}

	onTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mto_on_time_rate",
		Help: "Share of completed orders that finished by their due time.",
	}), "mto_on_time_rate")
	if err != nil {
		return nil, err
	}

	lead, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mto_average_lead_seconds",
		Help: "Mean simulated lead time of completed orders.",
	}), "mto_average_lead_seconds")
	if err != nil {
		return nil, err
	}

	utilization, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mto_department_utilization",
		Help: "Busy time over elapsed time per department.",
	}, []string{"department"}), "mto_department_utilization")
	if err != nil {
		return nil, err
	}

	wip, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mto_department_wip",
		Help: "Orders queued or in process per department.",
	}, []string{"department"}), "mto_department_wip")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mto_events_total",
		Help: "Game events emitted, labeled by type.",
	}, []string{"type"}), "mto_events_total")
	if err != nil {
		return nil, err
	}

	decisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mto_decisions_total",
		Help: "Player decisions applied, labeled by type.",
	}, []string{"type"}), "mto_decisions_total")
	if err != nil {
		return nil, err
	}

	history, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mto_history_operations_total",
		Help: "Undo, redo and clear operations on the decision history.",
	}, []string{"op"}), "mto_history_operations_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:        gatherer,
		StepDuration:    stepHistogram,
		Elapsed:         elapsed,
		Orders:          orders,
		OnTimeRate:      onTime,
		AverageLead:     lead,
		DeptUtilization: utilization,
		DeptWIP:         wip,
		Events:          events,
		Decisions:       decisions,
		History:         history,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveStep records the step duration and refreshes the state gauges.
func (c *EngineCollector) ObserveStep(s *core.State, took time.Duration) {
	if c == nil || s == nil {
		return
	}
	c.StepDuration.Observe(took.Seconds())
	c.Elapsed.Set(s.Clock.Elapsed.Seconds())
	c.OnTimeRate.Set(s.Performance.OnTimeRate)
	c.AverageLead.Set(s.Performance.AverageLead.Seconds())

	queued, processing := 0, 0
	for _, d := range s.Departments {
		queued += len(d.Queue)
		if d.InProcess != nil {
			processing++
		}
	}
	c.Orders.WithLabelValues("scheduled").Set(float64(len(s.Scheduled)))
	c.Orders.WithLabelValues("pending").Set(float64(len(s.Pending)))
	c.Orders.WithLabelValues("queued").Set(float64(queued))
	c.Orders.WithLabelValues("processing").Set(float64(processing))
	c.Orders.WithLabelValues("completed").Set(float64(len(s.Completed)))
	c.Orders.WithLabelValues("cancelled").Set(float64(len(s.Cancelled)))

	for _, load := range s.Performance.Departments {
		id := strconv.Itoa(load.DepartmentID)
		c.DeptUtilization.WithLabelValues(id).Set(load.Utilization)
		c.DeptWIP.WithLabelValues(id).Set(float64(load.WIP))
	}
}

// ObserveEvents counts newly emitted events by type.
func (c *EngineCollector) ObserveEvents(events []model.GameEvent) {
	if c == nil {
		return
	}
	for _, ev := range events {
		c.Events.WithLabelValues(string(ev.Type)).Inc()
	}
}

// ObserveDecision counts an applied decision.
func (c *EngineCollector) ObserveDecision(kind model.DecisionType) {
	if c == nil {
		return
	}
	c.Decisions.WithLabelValues(string(kind)).Inc()
}

// ObserveHistory counts an undo, redo or clear.
func (c *EngineCollector) ObserveHistory(op string) {
	if c == nil {
		return
	}
	c.History.WithLabelValues(op).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
