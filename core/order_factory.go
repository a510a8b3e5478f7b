package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/mto-simulator/model"
)

const (
	baseValuePerStep   = 1000.0
	engineeringChance  = 0.25
	halfOrderChance    = 0.20
	fallbackCustomerID = "C-000"
)

// HalfOrderReasons are the fixed reasons attached to reduced orders.
var HalfOrderReasons = []string{
	"customer reduced quantity",
	"partial material availability",
	"split delivery requested",
	"prototype batch",
}

// GenerationProbability returns the per-second arrival probability.
func GenerationProbability(rate model.GenerationRate) float64 {
	switch rate {
	case model.RateLow:
		return 0.02
	case model.RateHigh:
		return 0.10
	default:
		return 0.05
	}
}

// RouteLength bounds route lengths by complexity.
func RouteLength(c model.Complexity) (min, max int) {
	switch c {
	case model.ComplexityIntermediate:
		return 3, 4
	case model.ComplexityAdvanced:
		return 4, 6
	default:
		return 2, 3
	}
}

// DueOffsetMinutes is the due-time allowance per priority.
func DueOffsetMinutes(p model.Priority) float64 {
	switch p {
	case model.PriorityUrgent:
		return 4
	case model.PriorityHigh:
		return 6
	case model.PriorityLow:
		return 10
	default:
		return 8
	}
}

type priorityWeight struct {
	priority model.Priority
	weight   float64
}

func tierWeights(t model.CustomerTier) []priorityWeight {
	switch t {
	case model.TierKey:
		return []priorityWeight{{model.PriorityLow, 0.05}, {model.PriorityNormal, 0.35}, {model.PriorityHigh, 0.35}, {model.PriorityUrgent, 0.25}}
	case model.TierPreferred:
		return []priorityWeight{{model.PriorityLow, 0.15}, {model.PriorityNormal, 0.45}, {model.PriorityHigh, 0.30}, {model.PriorityUrgent, 0.10}}
	default:
		return []priorityWeight{{model.PriorityLow, 0.30}, {model.PriorityNormal, 0.50}, {model.PriorityHigh, 0.15}, {model.PriorityUrgent, 0.05}}
	}
}

func tierValueMultiplier(t model.CustomerTier) float64 {
	switch t {
	case model.TierKey:
		return 1.5
	case model.TierPreferred:
		return 1.2
	default:
		return 1.0
	}
}

func drawPriority(r *Rand, t model.CustomerTier) model.Priority {
	x := r.Next()
	weights := tierWeights(t)
	for _, w := range weights {
		if x < w.weight {
			return w.priority
		}
		x -= w.weight
	}
	return weights[len(weights)-1].priority
}

// MaybeGenerateOrder runs one Bernoulli trial scaled by delta and, on
// success, adds a new order to the pending pool.
func MaybeGenerateOrder(s *State, r *Rand, delta model.Millis) *model.Order {
	p := math.Min(1, GenerationProbability(s.Config.GenerationRate)*delta.Seconds())
	if !r.Chance(p) {
		return nil
	}
	o := NewOrder(s, r, "")
	admitPending(s, o)
	return o
}

// NewOrder builds a random order stamped at the current elapsed time. A
// non-empty priority overrides the drawn one.
func NewOrder(s *State, r *Rand, force model.Priority) *model.Order {
	cust := model.Customer{ID: fallbackCustomerID, Name: "Walk-in", Tier: model.TierStandard}
	if len(s.Customers) > 0 {
		cust = Choice(r, s.Customers)
	}
	prio := drawPriority(r, cust.Tier)
	if force != "" {
		prio = force
	}

	route := generateRoute(s, r)

	o := &model.Order{
		ID:               s.nextOrderID(),
		CustomerID:       cust.ID,
		CustomerName:     cust.Name,
		Priority:         prio,
		Route:            route,
		CurrentStepIndex: -1,
		Status:           model.OrderPending,
		CreatedAt:        s.Clock.Elapsed,
		SLAStatus:        model.SLAOnTrack,
	}
	o.Value = baseValuePerStep * float64(len(route)) * tierValueMultiplier(cust.Tier) * r.Between(0.8, 1.2)

	if r.Chance(halfOrderChance) {
		o.HalfOrder = &model.HalfOrder{
			Reason:     Choice(r, HalfOrderReasons),
			Multiplier: r.Between(0.3, 0.7),
		}
		o.Value *= o.HalfOrder.Multiplier
	}

	due := math.Min(s.Clock.Duration.Minutes(), s.Clock.Elapsed.Minutes()+DueOffsetMinutes(prio))
	o.DueGameMinutes = &due
	return o
}

func generateRoute(s *State, r *Rand) []int {
	var pool []int
	for _, d := range s.Departments {
		if d.ID != s.EngineeringID {
			pool = append(pool, d.ID)
		}
	}
	min, max := RouteLength(s.Config.Complexity)
	n := r.IntBetween(min, max)
	if n > len(pool) {
		n = len(pool)
	}
	Shuffle(r, pool)
	route := append([]int(nil), pool[:n]...)

	if s.EngineeringID != 0 && r.Chance(engineeringChance) {
		if _, err := s.Department(s.EngineeringID); err == nil {
			route = append([]int{s.EngineeringID}, route...)
		}
	}
	return route
}

// admitPending appends o to the pending pool.
func admitPending(s *State, o *model.Order) {
	o.Status = model.OrderPending
	s.Pending = append(s.Pending, o)
	s.emit(model.GameEvent{
		Type:     model.EventOrderGenerated,
		Severity: model.SeverityInfo,
		Message:  fmt.Sprintf("New %s order %s from %s", o.Priority, o.ID, o.CustomerName),
		OrderID:  o.ID,
	})
}
