package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
)

type stubMetricsRecorder struct {
	mu        sync.Mutex
	steps     int
	events    int
	decisions []model.DecisionType
	history   []string
}

func (r *stubMetricsRecorder) ObserveStep(*core.State, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps++
}

func (r *stubMetricsRecorder) ObserveEvents(events []model.GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events += len(events)
}

func (r *stubMetricsRecorder) ObserveDecision(kind model.DecisionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, kind)
}

func (r *stubMetricsRecorder) ObserveHistory(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, op)
}

func testLevel() *core.Level {
	due := 10.0
	lvl := &core.Level{Name: "session-fixture"}
	for _, o := range []struct {
		id    string
		route []int
	}{{"O1", []int{1, 2}}, {"O2", []int{3}}} {
		lvl.Orders = append(lvl.Orders, core.LevelOrder{Order: &model.Order{
			ID:             o.id,
			Priority:       model.PriorityNormal,
			Route:          o.route,
			DueGameMinutes: &due,
		}})
	}
	return lvl
}

// newTestSession returns a manual-mode session whose two level orders have
// been released into the pending pool.
func newTestSession(t *testing.T, opts ...SessionOption) *Session {
	t.Helper()
	cfg := model.DefaultSessionConfig()
	cfg.Seed = "session-test"
	cfg.EventsEnabled = false
	cfg.ManualMode = true
	cfg.AdvancedRouting = true
	opts = append([]SessionOption{WithLevel(testLevel())}, opts...)
	s, err := NewSession(cfg, kb.DefaultCatalog(), logging.Noop(), opts...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	ctx := context.Background()
	if _, err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := s.Step(ctx, model.Second); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := len(s.Snapshot().Pending); got != 2 {
		t.Fatalf("pending orders = %d, want 2", got)
	}
	return s
}

func mustJSON(t *testing.T, st *core.State) string {
	t.Helper()
	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return string(b)
}

func TestSessionUndoRedoRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	before := mustJSON(t, s.Snapshot())

	dec, err := s.Apply(ctx, core.AssignOrder{OrderID: "O1", DepartmentID: 1})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if dec.ID != "D-0001" || dec.Type != model.DecisionAssign || dec.OrderID != "O1" || !dec.CanUndo {
		t.Fatalf("decision = %+v", dec)
	}
	after := mustJSON(t, s.Snapshot())
	if after == before {
		t.Fatalf("Apply() did not change state")
	}

	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := mustJSON(t, s.Snapshot()); got != before {
		t.Fatalf("state after undo differs from state before decision")
	}
	if _, err := s.Redo(ctx); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if got := mustJSON(t, s.Snapshot()); got != after {
		t.Fatalf("state after redo differs from state after decision")
	}
}

func TestSessionUndoEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	if _, err := s.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("Undo() error = %v, want ErrNothingToUndo", err)
	}
	if _, err := s.Redo(ctx); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("Redo() error = %v, want ErrNothingToRedo", err)
	}
}

func TestSessionNewDecisionDropsRedo(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	if _, err := s.Apply(ctx, core.AssignOrder{OrderID: "O1", DepartmentID: 1}); err != nil {
		t.Fatalf("Apply(O1) error = %v", err)
	}
	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if _, err := s.Apply(ctx, core.AssignOrder{OrderID: "O2", DepartmentID: 3}); err != nil {
		t.Fatalf("Apply(O2) error = %v", err)
	}
	v := s.View()
	if v.CanRedo {
		t.Fatalf("CanRedo = true after a new decision")
	}
	if len(v.Decisions) != 1 || v.Decisions[0].OrderID != "O2" || v.Cursor != 1 {
		t.Fatalf("decisions = %+v cursor %d", v.Decisions, v.Cursor)
	}
}

func TestSessionRejectedActionLeavesState(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	before := s.Snapshot()

	// Department 4 is not on O1's route.
	_, err := s.Apply(ctx, core.AssignOrder{OrderID: "O1", DepartmentID: 4})
	if !errors.Is(err, core.ErrRouting) {
		t.Fatalf("Apply() error = %v, want ErrRouting", err)
	}
	if s.Snapshot() != before {
		t.Fatalf("rejected action replaced the state")
	}
	if decisions, _ := s.Decisions(); len(decisions) != 0 {
		t.Fatalf("rejected action recorded %d decisions", len(decisions))
	}
}

func TestSessionUndoKeepsRunStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	if _, err := s.Apply(ctx, core.AssignOrder{OrderID: "O1", DepartmentID: 1}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	st := s.Snapshot()
	if st.Clock.Status != model.SessionPaused {
		t.Fatalf("status after undo = %s, want paused", st.Clock.Status)
	}
	if len(st.Pending) != 2 {
		t.Fatalf("pending after undo = %d, want 2", len(st.Pending))
	}
}

func TestSessionTickScalesBySpeed(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	if _, err := s.SetSpeed(ctx, 4); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	start := s.Snapshot().Clock.Elapsed
	st, err := s.Tick(ctx, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if got := st.Clock.Elapsed - start; got != model.Second {
		t.Fatalf("elapsed advanced by %d, want %d", got, model.Second)
	}

	if _, err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	paused, err := s.Tick(ctx, time.Second)
	if err != nil {
		t.Fatalf("Tick() while paused error = %v", err)
	}
	if paused.Clock.Elapsed != st.Clock.Elapsed {
		t.Fatalf("paused tick advanced the clock")
	}
}

func TestSessionTickKeepsFractionalMillis(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	if _, err := s.SetSpeed(ctx, 8); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	start := s.Snapshot().Clock.Elapsed
	for i := 0; i < 80; i++ {
		if _, err := s.Tick(ctx, 12900*time.Microsecond); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if got := s.Snapshot().Clock.Elapsed - start; got != 8256 {
		t.Fatalf("elapsed advanced by %d, want 8256", got)
	}

	before := s.Snapshot().Clock.Elapsed
	for i := 0; i < 10; i++ {
		if _, err := s.Tick(ctx, 100*time.Microsecond); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if got := s.Snapshot().Clock.Elapsed - before; got != 8 {
		t.Fatalf("sub-millisecond ticks advanced by %d, want 8", got)
	}
}

func TestSessionStepWhilePaused(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	if _, err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if _, err := s.Step(ctx, model.Second); !errors.Is(err, core.ErrSessionNotRunning) {
		t.Fatalf("Step() error = %v, want ErrSessionNotRunning", err)
	}
}

func TestSessionMetricsRecorder(t *testing.T) {
	ctx := context.Background()
	rec := &stubMetricsRecorder{}
	s := newTestSession(t, WithMetricsRecorder(rec))
	if _, err := s.Apply(ctx, core.AssignOrder{OrderID: "O1", DepartmentID: 1}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := s.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	s.ClearHistory(ctx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.steps != 1 {
		t.Fatalf("steps observed = %d, want 1", rec.steps)
	}
	if len(rec.decisions) != 1 || rec.decisions[0] != model.DecisionAssign {
		t.Fatalf("decisions observed = %v", rec.decisions)
	}
	if len(rec.history) != 2 || rec.history[0] != "undo" || rec.history[1] != "clear" {
		t.Fatalf("history ops observed = %v", rec.history)
	}
}

func TestSessionSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	var reasons []string
	unsubscribe := s.Subscribe(func(u Update) { reasons = append(reasons, u.Reason) })
	if _, err := s.Step(ctx, model.Second); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if _, err := s.Apply(ctx, core.AssignOrder{OrderID: "O2", DepartmentID: 3}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	unsubscribe()
	if _, err := s.Step(ctx, model.Second); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(reasons) != 2 || reasons[0] != "step" || reasons[1] != "decision" {
		t.Fatalf("updates = %v", reasons)
	}
}

func TestSessionResetReplays(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	initial, err := s.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if initial.Clock.Status != model.SessionSetup || initial.Clock.Elapsed != 0 {
		t.Fatalf("reset clock = %+v", initial.Clock)
	}
	if len(initial.Scheduled) != 2 {
		t.Fatalf("scheduled after reset = %d, want 2", len(initial.Scheduled))
	}
	if s.View().CanUndo {
		t.Fatalf("CanUndo after reset")
	}
}

func TestSessionConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				v := s.View()
				if v.State == nil {
					t.Errorf("View() returned nil state")
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if _, err := s.Step(ctx, 100*model.Millisecond); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}
	wg.Wait()
}

func TestActionRequestToAction(t *testing.T) {
	tests := []struct {
		name    string
		req     ActionRequest
		want    model.DecisionType
		wantErr bool
	}{
		{name: "assign", req: ActionRequest{Type: model.DecisionAssign, OrderID: "O1", DepartmentID: 1}, want: model.DecisionAssign},
		{name: "assign missing dept", req: ActionRequest{Type: model.DecisionAssign, OrderID: "O1"}, wantErr: true},
		{name: "hold", req: ActionRequest{Type: model.DecisionHold, DepartmentID: 2, ToFront: true}, want: model.DecisionHold},
		{name: "rule", req: ActionRequest{Type: model.DecisionDispatchRule, DepartmentID: 2, Rule: "edd"}, want: model.DecisionDispatchRule},
		{name: "bad rule", req: ActionRequest{Type: model.DecisionDispatchRule, DepartmentID: 2, Rule: "lifo"}, wantErr: true},
		{name: "route", req: ActionRequest{Type: model.DecisionRouteOverride, OrderID: "O1", Route: []int{1, 3}}, want: model.DecisionRouteOverride},
		{name: "cancel", req: ActionRequest{Type: model.DecisionCancel, OrderID: "O1"}, want: model.DecisionCancel},
		{name: "unknown", req: ActionRequest{Type: "teleport"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tt.req.ToAction()
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidAction) {
					t.Fatalf("ToAction() error = %v, want ErrInvalidAction", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToAction() error = %v", err)
			}
			if a.Kind() != tt.want {
				t.Fatalf("Kind() = %s, want %s", a.Kind(), tt.want)
			}
		})
	}
}
