// Package state owns the live simulation session: the current immutable
// snapshot, the decision history and the listeners that mirror changes to
// transports and metrics.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/sim/history"
	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
)

var (
	// ErrNothingToUndo is returned when the history cursor is at its start
	// or the previous decision cannot be undone.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned when no undone decision remains.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DefaultHistoryLimit caps the decision log when no explicit limit is set.
const DefaultHistoryLimit = 500

// MetricsRecorder receives session activity. Implementations must not
// retain the state beyond the call.
type MetricsRecorder interface {
	ObserveStep(s *core.State, took time.Duration)
	ObserveEvents(events []model.GameEvent)
	ObserveDecision(kind model.DecisionType)
	ObserveHistory(op string)
}

// Update is delivered to listeners after every state change.
type Update struct {
	State    *core.State
	Events   []model.GameEvent
	Decision *model.Decision
	Reason   string
}

// Listener is called outside the session lock.
type Listener func(Update)

// Session is the single writer for one simulation run. Every read returns
// an immutable snapshot, so callers never need the lock themselves.
type Session struct {
	mu sync.RWMutex

	id      string
	cfg     model.SessionConfig
	catalog *kb.Catalog
	level   *core.Level

	current     *core.State
	history     *history.Log[*core.State]
	histLimit   int
	decisionSeq int
	// simulated time scaled from wall ticks but not yet a whole millisecond
	tickCarry time.Duration

	log     logging.Logger
	metrics MetricsRecorder
	now     func() time.Time

	listeners map[int]Listener
	nextSub   int
}

// SessionOption configures optional session behaviour.
type SessionOption func(*Session)

// WithLevel loads a predetermined level into the session before it starts.
func WithLevel(lvl *core.Level) SessionOption {
	return func(s *Session) { s.level = lvl }
}

// WithMetricsRecorder wires a recorder that observes steps and decisions.
func WithMetricsRecorder(m MetricsRecorder) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithHistoryLimit caps the number of decisions kept for undo.
func WithHistoryLimit(n int) SessionOption {
	return func(s *Session) { s.histLimit = n }
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithClock overrides the wall clock used to stamp decisions.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession builds a session in setup from cfg and the catalog.
func NewSession(cfg model.SessionConfig, catalog *kb.Catalog, log logging.Logger, opts ...SessionOption) (*Session, error) {
	if log == nil {
		log = logging.Noop()
	}
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		catalog:   catalog,
		histLimit: DefaultHistoryLimit,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = log.With(logging.String("session_id", s.id))

	st, err := s.initialState()
	if err != nil {
		return nil, err
	}
	s.current = st
	s.history = history.New[*core.State](s.histLimit)
	return s, nil
}

func (s *Session) initialState() (*core.State, error) {
	st, err := core.NewState(s.cfg, s.catalog)
	if err != nil {
		return nil, err
	}
	if s.level != nil {
		st, err = core.ApplyLevel(st, s.level)
		if err != nil {
			return nil, fmt.Errorf("apply level %q: %w", s.level.Name, err)
		}
	}
	return st, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the configuration the session was built from.
func (s *Session) Config() model.SessionConfig { return s.cfg }

// Snapshot returns the current state. The result must be treated as
// read-only.
func (s *Session) Snapshot() *core.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// View is a consistent read of the state together with the history.
type View struct {
	SessionID string           `json:"session_id"`
	State     *core.State      `json:"state"`
	Decisions []model.Decision `json:"decisions"`
	Cursor    int              `json:"cursor"`
	CanUndo   bool             `json:"can_undo"`
	CanRedo   bool             `json:"can_redo"`
}

// View returns the current snapshot and decision log.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	decisions, cursor := s.history.Decisions()
	return View{
		SessionID: s.id,
		State:     s.current,
		Decisions: decisions,
		Cursor:    cursor,
		CanUndo:   s.history.CanUndo(),
		CanRedo:   s.history.CanRedo(),
	}
}

// Start moves the session to running.
func (s *Session) Start(ctx context.Context) (*core.State, error) {
	return s.transition(ctx, "start", core.Start)
}

// Pause stops the clock. Time that passes while paused is never replayed.
func (s *Session) Pause(ctx context.Context) (*core.State, error) {
	return s.transition(ctx, "pause", core.Pause)
}

// Resume is Start for a paused session.
func (s *Session) Resume(ctx context.Context) (*core.State, error) {
	return s.transition(ctx, "resume", core.Start)
}

// SetSpeed changes the speed multiplier.
func (s *Session) SetSpeed(ctx context.Context, speed int) (*core.State, error) {
	return s.transition(ctx, "speed", func(prev *core.State) (*core.State, error) {
		return core.SetSpeed(prev, speed)
	})
}

func (s *Session) transition(ctx context.Context, reason string, fn func(*core.State) (*core.State, error)) (*core.State, error) {
	s.mu.Lock()
	next, err := fn(s.current)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	changed := next != s.current
	s.current = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if changed {
		s.log.Info(ctx, "session "+reason,
			logging.String("status", string(next.Clock.Status)),
			logging.Int("speed", next.Clock.Speed),
		)
		notify(listeners, Update{State: next, Reason: reason})
	}
	return next, nil
}

// Tick advances the session by a wall-clock interval scaled by the current
// speed. Sub-millisecond remainders carry over to the next tick. A session
// that is not running is left untouched.
func (s *Session) Tick(ctx context.Context, wall time.Duration) (*core.State, error) {
	cur := s.Snapshot()
	if cur.Clock.Status != model.SessionRunning {
		return cur, nil
	}
	s.mu.Lock()
	scaled := wall*time.Duration(cur.Clock.Speed) + s.tickCarry
	delta := model.FromDuration(scaled)
	s.tickCarry = scaled - delta.Duration()
	s.mu.Unlock()
	if delta == 0 {
		return cur, nil
	}
	return s.Step(ctx, delta)
}

// Step advances simulated time by delta.
func (s *Session) Step(ctx context.Context, delta model.Millis) (*core.State, error) {
	s.mu.Lock()
	prev := s.current
	started := time.Now()
	next, err := core.Step(prev, delta)
	if err != nil {
		s.mu.Unlock()
		var inv *core.InvariantError
		if errors.As(err, &inv) {
			s.log.Error(ctx, "simulation invariant broken",
				logging.String("order_id", inv.OrderID),
				logging.Int("department_id", inv.DepartmentID),
				logging.Err(err),
			)
		}
		return nil, err
	}
	took := time.Since(started)
	s.current = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	events := next.EventsSince(prev.EventSeq)
	if s.metrics != nil {
		s.metrics.ObserveStep(next, took)
		if len(events) > 0 {
			s.metrics.ObserveEvents(events)
		}
	}
	if prev.Clock.Status != model.SessionCompleted && next.Clock.Status == model.SessionCompleted {
		s.log.Info(ctx, "session completed",
			logging.Int("orders_completed", next.Performance.TotalCompleted),
			logging.Float("on_time_rate", next.Performance.OnTimeRate),
		)
	}
	if next != prev {
		notify(listeners, Update{State: next, Events: events, Reason: "step"})
	}
	return next, nil
}

// Apply executes a player decision and records it for undo.
func (s *Session) Apply(ctx context.Context, a core.Action) (model.Decision, error) {
	s.mu.Lock()
	prev := s.current
	next, err := core.Apply(prev, a)
	if err != nil {
		s.mu.Unlock()
		s.log.Debug(ctx, "decision rejected",
			logging.String("type", string(a.Kind())),
			logging.Err(err),
		)
		return model.Decision{}, err
	}
	s.decisionSeq++
	dec := model.Decision{
		ID:          fmt.Sprintf("D-%04d", s.decisionSeq),
		Timestamp:   s.now(),
		GameTime:    prev.Clock.Elapsed,
		Type:        a.Kind(),
		Description: a.Describe(),
		OrderID:     a.Target(),
		CanUndo:     true,
	}
	s.history.Record(history.Entry[*core.State]{Decision: dec, Previous: prev, Next: next})
	s.current = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.Debug(ctx, "decision applied",
		logging.String("decision_id", dec.ID),
		logging.String("type", string(dec.Type)),
		logging.String("order_id", dec.OrderID),
	)
	if s.metrics != nil {
		s.metrics.ObserveDecision(dec.Type)
	}
	notify(listeners, Update{State: next, Events: next.EventsSince(prev.EventSeq), Decision: &dec, Reason: "decision"})
	return dec, nil
}

// Undo reverts the most recent decision, restoring the snapshot taken just
// before it. The run status and speed stay as they are now.
func (s *Session) Undo(ctx context.Context) (model.Decision, error) {
	return s.rewind(ctx, "undo", func() (history.Entry[*core.State], bool, *core.State) {
		e, ok := s.history.Undo()
		return e, ok, e.Previous
	}, ErrNothingToUndo)
}

// Redo reapplies the most recently undone decision.
func (s *Session) Redo(ctx context.Context) (model.Decision, error) {
	return s.rewind(ctx, "redo", func() (history.Entry[*core.State], bool, *core.State) {
		e, ok := s.history.Redo()
		return e, ok, e.Next
	}, ErrNothingToRedo)
}

func (s *Session) rewind(ctx context.Context, op string, move func() (history.Entry[*core.State], bool, *core.State), empty error) (model.Decision, error) {
	s.mu.Lock()
	e, ok, target := move()
	if !ok {
		s.mu.Unlock()
		return model.Decision{}, empty
	}
	s.current = keepControl(target, s.current)
	st := s.current
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.Info(ctx, "history "+op, logging.String("decision_id", e.Decision.ID))
	if s.metrics != nil {
		s.metrics.ObserveHistory(op)
	}
	dec := e.Decision
	notify(listeners, Update{State: st, Decision: &dec, Reason: op})
	return dec, nil
}

// keepControl returns restored with the run status and speed of current.
// A finished session that is rewound comes back paused.
func keepControl(restored, current *core.State) *core.State {
	status := current.Clock.Status
	if status == model.SessionCompleted {
		status = model.SessionPaused
		if restored.Clock.Status == model.SessionSetup {
			status = model.SessionSetup
		}
	}
	if restored.Clock.Status == status && restored.Clock.Speed == current.Clock.Speed {
		return restored
	}
	cp := restored.Clone()
	cp.Clock.Status = status
	cp.Clock.Speed = current.Clock.Speed
	cp.Config.Speed = current.Clock.Speed
	return cp
}

// ClearHistory drops every recorded decision. The current state is kept.
func (s *Session) ClearHistory(ctx context.Context) {
	s.history.Clear()
	if s.metrics != nil {
		s.metrics.ObserveHistory("clear")
	}
	s.log.Info(ctx, "decision history cleared")
}

// Decisions returns the decision log and the cursor position.
func (s *Session) Decisions() ([]model.Decision, int) {
	return s.history.Decisions()
}

// Reset rebuilds the session from its configuration and level. The seed is
// unchanged, so a reset session replays identically.
func (s *Session) Reset(ctx context.Context) (*core.State, error) {
	st, err := s.initialState()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = st
	s.history.Clear()
	s.decisionSeq = 0
	s.tickCarry = 0
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.Info(ctx, "session reset")
	notify(listeners, Update{State: st, Reason: "reset"})
	return st, nil
}

// Restore replaces the current state with a previously saved snapshot. The
// decision history is cleared because its entries belong to another run.
func (s *Session) Restore(ctx context.Context, st *core.State) error {
	if st == nil {
		return errors.New("restore: nil state")
	}
	s.mu.Lock()
	s.current = st
	s.history.Clear()
	s.decisionSeq = 0
	s.tickCarry = 0
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.log.Info(ctx, "session restored",
		logging.String("status", string(st.Clock.Status)),
		logging.Int("elapsed_ms", int(st.Clock.Elapsed)),
	)
	notify(listeners, Update{State: st, Reason: "restore"})
	return nil
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// listenersLocked copies the listener set. Caller must hold s.mu.
func (s *Session) listenersLocked() []Listener {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, u Update) {
	for _, l := range listeners {
		l(u)
	}
}
