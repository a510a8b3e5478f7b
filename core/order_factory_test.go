package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/mto-simulator/model"
)

func TestNewOrderInvariants(t *testing.T) {
	for _, complexity := range []model.Complexity{model.ComplexityBeginner, model.ComplexityIntermediate, model.ComplexityAdvanced} {
		t.Run(string(complexity), func(t *testing.T) {
			cfg := testConfig()
			cfg.Complexity = complexity
			s := mustState(t, cfg)
			s.Clock.Elapsed = 9 * model.Minute
			r := NewRand("factory")

			lo, hi := RouteLength(complexity)
			engineered, halves := 0, 0
			for i := 0; i < 300; i++ {
				o := NewOrder(s, r, "")
				if err := ValidateRoute(s, o.Route); err != nil {
					t.Fatalf("generated route %v invalid: %v", o.Route, err)
				}
				steps := len(o.Route)
				if o.Route[0] == s.EngineeringID {
					engineered++
					steps--
				}
				if steps < lo || steps > hi {
					t.Fatalf("route %v has %d production steps, want [%d,%d]", o.Route, steps, lo, hi)
				}
				if !o.Priority.Valid() {
					t.Fatalf("invalid priority %q", o.Priority)
				}
				want := math.Min(15, 9+DueOffsetMinutes(o.Priority))
				if o.DueGameMinutes == nil || *o.DueGameMinutes != want {
					t.Fatalf("due = %v, want %v for %s", o.DueGameMinutes, want, o.Priority)
				}
				if o.HalfOrder != nil {
					halves++
					if m := o.HalfOrder.Multiplier; m < 0.3 || m >= 0.7 {
						t.Fatalf("half multiplier %v out of range", m)
					}
				}
				if o.Value <= 0 || o.CurrentStepIndex != -1 || o.Status != model.OrderPending {
					t.Fatalf("unexpected order %+v", o)
				}
			}
			if engineered == 0 || halves == 0 {
				t.Fatalf("engineered=%d halves=%d, want both > 0 over 300 orders", engineered, halves)
			}
		})
	}
}

func TestNewOrderForcedPriority(t *testing.T) {
	s := mustState(t, testConfig())
	o := NewOrder(s, NewRand("force"), model.PriorityUrgent)
	if o.Priority != model.PriorityUrgent {
		t.Fatalf("priority = %s, want urgent", o.Priority)
	}
	if o.ID != "ORD-0001" {
		t.Fatalf("id = %s, want ORD-0001", o.ID)
	}
}

func TestMaybeGenerateOrderScalesWithDelta(t *testing.T) {
	cfg := testConfig()
	cfg.GenerationRate = model.RateHigh
	s := mustState(t, cfg)
	r := NewRand("gen")

	if o := MaybeGenerateOrder(s, r, 0); o != nil {
		t.Fatalf("zero delta generated %s", o.ID)
	}
	// 0.10/s over 10s saturates the probability.
	for i := 0; i < 5; i++ {
		if o := MaybeGenerateOrder(s, r, 10*model.Second); o == nil {
			t.Fatalf("trial %d: expected an order at probability 1", i)
		}
	}
	if len(s.Pending) != 5 {
		t.Fatalf("pending = %d, want 5", len(s.Pending))
	}
	if len(s.Events) != 5 || s.Events[0].Type != model.EventOrderGenerated {
		t.Fatalf("events = %+v, want 5 order-generated", s.Events)
	}
}
