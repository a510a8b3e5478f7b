package core

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
)

func testConfig() model.SessionConfig {
	cfg := model.DefaultSessionConfig()
	cfg.Seed = "test-1"
	cfg.EventsEnabled = false
	return cfg
}

func mustState(t *testing.T, cfg model.SessionConfig) *State {
	t.Helper()
	s, err := NewState(cfg, kb.DefaultCatalog())
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	return s
}

func mustStart(t *testing.T, s *State) *State {
	t.Helper()
	next, err := Start(s)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return next
}

func mustStep(t *testing.T, s *State, delta model.Millis) *State {
	t.Helper()
	next, err := Step(s, delta)
	if err != nil {
		t.Fatalf("Step(%d) error = %v", delta, err)
	}
	return next
}

func mustApply(t *testing.T, s *State, a Action) *State {
	t.Helper()
	next, err := Apply(s, a)
	if err != nil {
		t.Fatalf("Apply(%s) error = %v", a.Describe(), err)
	}
	return next
}

// levelState returns a running state with one level order per route, all
// released into the pending pool (manual mode) or admitted (automatic).
func levelState(t *testing.T, manual bool, routes ...[]int) *State {
	t.Helper()
	cfg := testConfig()
	cfg.ManualMode = manual
	cfg.AdvancedRouting = true
	lvl := &Level{Name: "fixture"}
	for i, r := range routes {
		due := 12.0
		lvl.Orders = append(lvl.Orders, LevelOrder{
			Order: &model.Order{
				ID:       fmt.Sprintf("O%d", i+1),
				Priority: model.PriorityNormal,
				Route:    r,
			},
		})
		lvl.Orders[i].Order.DueGameMinutes = &due
	}
	s, err := ApplyLevel(mustState(t, cfg), lvl)
	if err != nil {
		t.Fatalf("ApplyLevel() error = %v", err)
	}
	return mustStep(t, mustStart(t, s), 1)
}

func stateJSON(t *testing.T, s *State) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal(state) error = %v", err)
	}
	return string(b)
}

// checkMembership verifies every order is held in exactly one place and
// departments respect their capacity.
func checkMembership(t *testing.T, s *State) {
	t.Helper()
	seen := make(map[string]string)
	add := func(id, where string) {
		if prev, ok := seen[id]; ok {
			t.Fatalf("order %s held in both %s and %s", id, prev, where)
		}
		seen[id] = where
	}
	for _, so := range s.Scheduled {
		add(so.Order.ID, "scheduled")
	}
	for _, o := range s.Pending {
		add(o.ID, "pending")
	}
	for _, d := range s.Departments {
		for _, o := range d.Queue {
			add(o.ID, fmt.Sprintf("queue %d", d.ID))
			if o.CurrentDepartment() != d.ID {
				t.Fatalf("order %s queued at %d but current step is %d", o.ID, d.ID, o.CurrentDepartment())
			}
		}
		if d.InProcess != nil {
			add(d.InProcess.ID, fmt.Sprintf("in-process %d", d.ID))
		}
		if d.WIPCount() > d.MaxQueueSize {
			t.Fatalf("department %d WIP %d exceeds max %d", d.ID, d.WIPCount(), d.MaxQueueSize)
		}
	}
	for _, o := range s.Completed {
		add(o.ID, "completed")
	}
	for _, o := range s.Cancelled {
		add(o.ID, "cancelled")
	}
}
