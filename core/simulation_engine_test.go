package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/mto-simulator/model"
)

func TestStepRequiresRunningSession(t *testing.T) {
	s := mustState(t, testConfig())
	if _, err := Step(s, model.Second); !errors.Is(err, ErrSessionNotRunning) {
		t.Fatalf("Step() in setup error = %v, want ErrSessionNotRunning", err)
	}
	if _, err := Step(mustStart(t, s), -1); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("Step(-1) error = %v, want ErrInvalidAction", err)
	}
}

func TestStepDoesNotMutatePrevious(t *testing.T) {
	cfg := testConfig()
	cfg.GenerationRate = model.RateHigh
	cfg.EventsEnabled = true
	s := mustStart(t, mustState(t, cfg))
	for i := 0; i < 30; i++ {
		s = mustStep(t, s, 5*model.Second)
	}
	before := stateJSON(t, s)
	for i := 0; i < 10; i++ {
		if _, err := Step(s, 5*model.Second); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}
	if after := stateJSON(t, s); after != before {
		t.Fatalf("Step mutated its input state")
	}
}

func TestStepDeterministic(t *testing.T) {
	run := func() string {
		cfg := testConfig()
		cfg.GenerationRate = model.RateHigh
		cfg.Complexity = model.ComplexityAdvanced
		cfg.EventsEnabled = true
		s := mustStart(t, mustState(t, cfg))
		for i := 0; i < 600; i++ {
			s = mustStep(t, s, model.Second)
		}
		return stateJSON(t, s)
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("same seed and deltas produced different states")
	}
}

func TestStepInvariantsHold(t *testing.T) {
	cfg := testConfig()
	cfg.GenerationRate = model.RateHigh
	cfg.Complexity = model.ComplexityAdvanced
	cfg.EventsEnabled = true
	s := mustStart(t, mustState(t, cfg))

	lastIndex := map[string]int{}
	for i := 0; i < 900 && s.Clock.Status != model.SessionCompleted; i++ {
		s = mustStep(t, s, model.Second)
		checkMembership(t, s)
		for _, o := range s.AllOrders() {
			if prev, ok := lastIndex[o.ID]; ok && o.CurrentStepIndex < prev {
				t.Fatalf("order %s step index went from %d to %d", o.ID, prev, o.CurrentStepIndex)
			}
			lastIndex[o.ID] = o.CurrentStepIndex
		}
		for _, o := range s.Completed {
			if len(o.Timestamps) != len(o.Route) {
				t.Fatalf("completed order %s has %d timestamps for %d steps", o.ID, len(o.Timestamps), len(o.Route))
			}
			for j, ts := range o.Timestamps {
				if ts.DepartmentID != o.Route[j] || !ts.Ended || ts.End < ts.Start {
					t.Fatalf("completed order %s timestamp %d = %+v", o.ID, j, ts)
				}
			}
		}
	}
	if len(lastIndex) == 0 {
		t.Fatalf("no orders were generated")
	}
}

func TestRouteCompletesInOrder(t *testing.T) {
	s := levelState(t, false, []int{5, 3, 1, 2})
	s.Pending = nil
	due := 30.0
	for _, d := range s.Departments {
		for _, o := range d.Queue {
			o.DueGameMinutes = &due
		}
		if d.InProcess != nil {
			d.InProcess.DueGameMinutes = &due
		}
	}

	for i := 0; i < 900 && len(s.Completed) == 0; i++ {
		s = mustStep(t, s, model.Second)
	}
	if len(s.Completed) != 1 {
		t.Fatalf("order did not complete; clock %d", s.Clock.Elapsed)
	}
	o := s.Completed[0]
	if o.Status != model.OrderCompletedOnTime {
		t.Fatalf("status = %s, want completed-on-time", o.Status)
	}
	want := []int{5, 3, 1, 2}
	if len(o.Timestamps) != len(want) {
		t.Fatalf("timestamps = %+v", o.Timestamps)
	}
	for i, ts := range o.Timestamps {
		if ts.DepartmentID != want[i] || !ts.Ended || ts.End < ts.Start {
			t.Fatalf("timestamp %d = %+v", i, ts)
		}
		if i > 0 && ts.Start < o.Timestamps[i-1].End {
			t.Fatalf("step %d started before step %d ended", i, i-1)
		}
	}
	if o.ActualLeadTime != o.CompletedAt-o.CreatedAt {
		t.Fatalf("lead time = %d, want %d", o.ActualLeadTime, o.CompletedAt-o.CreatedAt)
	}
	if s.Performance.TotalCompleted != 1 || s.Performance.OnTimeRate != 1 {
		t.Fatalf("performance = %+v", s.Performance)
	}
}

func TestLateCompletion(t *testing.T) {
	s := levelState(t, false, []int{2})
	d, _ := s.Department(2)
	if d.InProcess == nil {
		t.Fatalf("order not dispatched in automatic mode")
	}
	due := 0.0
	d.InProcess.DueGameMinutes = &due
	for i := 0; i < 600 && len(s.Completed) == 0; i++ {
		s = mustStep(t, s, model.Second)
	}
	if len(s.Completed) != 1 || s.Completed[0].Status != model.OrderCompletedLate {
		t.Fatalf("completed = %+v, want one late order", s.Completed)
	}
}

func TestScenarioReleasesAllOrders(t *testing.T) {
	cfg := testConfig()
	lvl := &Level{Name: "test-1"}
	for i, spec := range []struct {
		route   []int
		release float64
	}{{[]int{1, 2}, 0}, {[]int{5, 3}, 0.5}, {[]int{6}, 1}} {
		due := 12.0
		lvl.Orders = append(lvl.Orders, LevelOrder{
			Order:     &model.Order{ID: string(rune('A' + i)), Priority: model.PriorityNormal, Route: spec.route, DueGameMinutes: &due},
			ReleaseAt: model.MinutesToMillis(spec.release),
		})
	}
	s, err := ApplyLevel(mustState(t, cfg), lvl)
	if err != nil {
		t.Fatalf("ApplyLevel() error = %v", err)
	}
	s = mustStart(t, s)
	for s.Clock.Elapsed < 10*model.Minute {
		s = mustStep(t, s, model.Second)
	}
	if len(s.Scheduled) != 0 || len(s.Pending) != 0 {
		t.Fatalf("scheduled=%d pending=%d after 10 minutes", len(s.Scheduled), len(s.Pending))
	}
	for _, id := range []string{"A", "B", "C"} {
		o, loc := s.Locate(id)
		if o == nil {
			t.Fatalf("order %s lost", id)
		}
		switch loc.Kind {
		case LocationQueue, LocationInProcess, LocationCompleted:
		default:
			t.Fatalf("order %s is %s", id, loc.Kind)
		}
	}
}

func TestManualModeSuppressesDispatch(t *testing.T) {
	s := levelState(t, true, []int{1, 2})
	if len(s.Pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(s.Pending))
	}
	s = mustApply(t, s, AssignOrder{OrderID: "O1", DepartmentID: 1})
	for i := 0; i < 10; i++ {
		s = mustStep(t, s, model.Second)
	}
	d, _ := s.Department(1)
	if d.InProcess != nil || len(d.Queue) != 1 {
		t.Fatalf("manual mode dispatched: in-process=%v queue=%d", d.InProcess, len(d.Queue))
	}
}

func TestSessionCompletes(t *testing.T) {
	cfg := testConfig()
	cfg.DurationMinutes = 1
	s := mustStart(t, mustState(t, cfg))
	s = mustStep(t, s, 2*model.Minute)
	if s.Clock.Status != model.SessionRunning {
		t.Fatalf("status = %s after overshoot, want running until next step", s.Clock.Status)
	}
	s = mustStep(t, s, model.Second)
	if s.Clock.Status != model.SessionCompleted {
		t.Fatalf("status = %s, want completed", s.Clock.Status)
	}
	if last := s.Events[len(s.Events)-1]; last.Type != model.EventSessionCompleted {
		t.Fatalf("last event = %s, want session-completed", last.Type)
	}
	again := mustStep(t, s, model.Second)
	if again != s {
		t.Fatalf("Step on completed session should be a no-op")
	}
	if _, err := Apply(s, SetDispatchRule{DepartmentID: 1, Rule: model.RuleEDD}); !errors.Is(err, ErrSessionNotRunning) {
		t.Fatalf("Apply on completed session error = %v", err)
	}
}

func TestMaintenanceHaltsProgress(t *testing.T) {
	s := levelState(t, false, []int{2})
	d, _ := s.Department(2)
	if d.InProcess == nil {
		t.Fatalf("order not dispatched")
	}
	remaining := d.InProcess.ProcessingTimeRemaining
	d.MaintenanceRemaining = 10 * model.Second

	s = mustStep(t, s, 5*model.Second)
	d, _ = s.Department(2)
	if d.InProcess.ProcessingTimeRemaining != remaining {
		t.Fatalf("progress during maintenance: %d -> %d", remaining, d.InProcess.ProcessingTimeRemaining)
	}
	s = mustStep(t, s, 5*model.Second)
	d, _ = s.Department(2)
	if d.MaintenanceRemaining != 0 {
		t.Fatalf("maintenance remaining = %d", d.MaintenanceRemaining)
	}
	if last := s.Events[len(s.Events)-1]; last.Type != model.EventMaintenanceComplete {
		t.Fatalf("last event = %s, want maintenance-complete", last.Type)
	}
}

func TestFinishStepDetectsBrokenRoute(t *testing.T) {
	s := levelState(t, false, []int{2})
	d, _ := s.Department(2)
	d.InProcess.Route = []int{3}
	d.InProcess.ProcessingTimeRemaining = 1

	_, err := Step(s, model.Second)
	var inv *InvariantError
	if !errors.As(err, &inv) || !errors.Is(err, ErrBrokenInvariant) {
		t.Fatalf("Step() error = %v, want InvariantError", err)
	}
	if inv.DepartmentID != 2 || inv.Expected != 3 {
		t.Fatalf("invariant error = %+v", inv)
	}
}

func TestOperationHandOffCarriesLeftover(t *testing.T) {
	s := levelState(t, false, []int{1, 2})
	d, _ := s.Department(1)
	o := d.InProcess
	if o == nil || o.CurrentOperation != 0 {
		t.Fatalf("order not processing first operation: %+v", o)
	}
	first := o.ProcessingTimeRemaining

	s = mustStep(t, s, first+10*model.Second)
	d, _ = s.Department(1)
	o = d.InProcess
	if o == nil || o.ID != "O1" {
		t.Fatalf("order left the department after its first operation: %+v", d)
	}
	if o.CurrentOperation != 1 || o.Status != model.OrderProcessing {
		t.Fatalf("operation = %d status = %s, want 1 processing", o.CurrentOperation, o.Status)
	}
	if want := OperationTime(d, 1, o); o.ProcessingTime != want {
		t.Fatalf("processing time = %d, want %d", o.ProcessingTime, want)
	}
	if o.ProcessingTimeRemaining != o.ProcessingTime-10*model.Second {
		t.Fatalf("remaining = %d, want %d", o.ProcessingTimeRemaining, o.ProcessingTime-10*model.Second)
	}
	if len(d.Queue) != 0 || len(o.Timestamps) != 1 {
		t.Fatalf("queue = %d timestamps = %d, want 0 and 1", len(d.Queue), len(o.Timestamps))
	}
	if _, loc := s.Locate("O1"); loc.Kind != LocationInProcess || loc.DepartmentID != 1 {
		t.Fatalf("location = %+v, want in-process at 1", loc)
	}
	checkMembership(t, s)
}
