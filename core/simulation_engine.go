package core

import (
	"fmt"

	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
)

// NewState builds the initial state of a session from cfg and the catalog.
// Departments draw their per-session multipliers from the seeded stream so
// two sessions with the same seed start identical.
func NewState(cfg model.SessionConfig, catalog *kb.Catalog) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("NewState: %w", err)
	}
	if catalog == nil {
		return nil, fmt.Errorf("NewState: nil catalog")
	}
	templates := catalog.Departments()
	if len(templates) == 0 {
		return nil, fmt.Errorf("NewState: catalog has no departments")
	}

	r := NewRand(cfg.Seed)
	s := &State{
		Config: cfg,
		Clock: model.Clock{
			Status:   model.SessionSetup,
			Duration: model.Millis(cfg.DurationMinutes) * model.Minute,
			Speed:    cfg.Speed,
		},
		Departments: NewDepartments(templates, r),
		Customers:   catalog.Customers(),
	}
	if _, err := catalog.Department(kb.EngineeringID); err == nil {
		s.EngineeringID = kb.EngineeringID
	}
	s.RandState = r.State()
	s.Performance = ComputePerformance(s)
	return s, nil
}

// Start moves a session in setup or paused into running.
func Start(prev *State) (*State, error) {
	switch prev.Clock.Status {
	case model.SessionSetup, model.SessionPaused:
		s := prev.Clone()
		s.Clock.Status = model.SessionRunning
		return s, nil
	case model.SessionRunning:
		return prev, nil
	default:
		return nil, fmt.Errorf("%w: session is %s", ErrSessionNotRunning, prev.Clock.Status)
	}
}

// Pause stops a running session.
func Pause(prev *State) (*State, error) {
	switch prev.Clock.Status {
	case model.SessionRunning:
		s := prev.Clone()
		s.Clock.Status = model.SessionPaused
		return s, nil
	case model.SessionPaused:
		return prev, nil
	default:
		return nil, fmt.Errorf("%w: session is %s", ErrSessionNotRunning, prev.Clock.Status)
	}
}

// SetSpeed changes the speed multiplier.
func SetSpeed(prev *State, speed int) (*State, error) {
	if !model.ValidSpeed(speed) {
		return nil, fmt.Errorf("%w: speed must be one of %v", ErrInvalidAction, model.AllowedSpeeds)
	}
	s := prev.Clone()
	s.Clock.Speed = speed
	s.Config.Speed = speed
	return s, nil
}

// Step advances the simulation by delta simulated milliseconds and returns
// the next state. prev is never modified.
func Step(prev *State, delta model.Millis) (*State, error) {
	if delta < 0 {
		return nil, fmt.Errorf("%w: negative delta %d", ErrInvalidAction, delta)
	}
	switch prev.Clock.Status {
	case model.SessionCompleted:
		return prev, nil
	case model.SessionRunning:
	default:
		return nil, fmt.Errorf("%w: session is %s", ErrSessionNotRunning, prev.Clock.Status)
	}

	s := prev.Clone()
	if s.Clock.Elapsed >= s.Clock.Duration {
		completeSession(s)
		return s, nil
	}
	r := RandFromState(s.RandState)

	s.Clock.Elapsed += delta
	releaseDue(s)
	if !s.Config.PredeterminedOrders {
		MaybeGenerateOrder(s, r, delta)
	}
	refreshSLA(s)
	if err := advanceDepartments(s, delta); err != nil {
		return nil, err
	}
	if !s.Config.ManualMode {
		if err := admitPendingOrders(s); err != nil {
			return nil, err
		}
		if err := dispatchIdle(s); err != nil {
			return nil, err
		}
	}
	GenerateEvents(s, r, delta)

	s.RandState = r.State()
	s.Performance = ComputePerformance(s)
	return s, nil
}

func completeSession(s *State) {
	s.Clock.Status = model.SessionCompleted
	s.emit(model.GameEvent{
		Type:     model.EventSessionCompleted,
		Severity: model.SeverityInfo,
		Message:  fmt.Sprintf("Session complete: %d orders delivered", len(s.Completed)),
	})
	s.Performance = ComputePerformance(s)
}

func refreshSLA(s *State) {
	now := s.Clock.Elapsed
	for _, o := range s.LiveOrders() {
		st := EvaluateSLA(o, now)
		if st == model.SLAOverdue && o.SLAStatus != model.SLAOverdue {
			s.emit(model.GameEvent{
				Type:     model.EventOrderOverdue,
				Severity: model.SeverityWarning,
				Message:  fmt.Sprintf("Order %s is past due", o.ID),
				OrderID:  o.ID,
			})
		}
		o.SLAStatus = st
	}
}

func advanceDepartments(s *State, delta model.Millis) error {
	for _, d := range s.Departments {
		if d.MaintenanceRemaining > 0 {
			d.MaintenanceRemaining -= delta
			if d.MaintenanceRemaining <= 0 {
				d.MaintenanceRemaining = 0
				s.emit(model.GameEvent{
					Type:         model.EventMaintenanceComplete,
					Severity:     model.SeverityInfo,
					Message:      fmt.Sprintf("%s is back in service", d.Name),
					DepartmentID: d.ID,
				})
			}
			continue
		}

		if o := d.InProcess; o != nil && o.Status == model.OrderProcessing {
			d.BusyTime += delta
			progress := delta
			if d.BoostRemaining > 0 {
				boosted := min(delta, d.BoostRemaining)
				progress = model.Millis(float64(boosted)*boostSpeedup) + delta - boosted
			}
			o.ProcessingTimeRemaining -= progress
			for o.ProcessingTimeRemaining <= 0 {
				if o.CurrentOperation+1 < len(d.Operations) {
					carry := -o.ProcessingTimeRemaining
					o.CurrentOperation++
					o.ProcessingTime = OperationTime(d, o.CurrentOperation, o)
					o.ProcessingTimeRemaining = o.ProcessingTime - carry
					continue
				}
				if err := finishStep(s, d, o); err != nil {
					return err
				}
				break
			}
		}

		if d.BoostRemaining > 0 {
			d.BoostRemaining -= delta
			if d.BoostRemaining < 0 {
				d.BoostRemaining = 0
			}
		}
	}
	return nil
}

// finishStep closes the order's current department step and routes it on.
func finishStep(s *State, d *model.Department, o *model.Order) error {
	i := o.CurrentStepIndex
	if i < 0 || i >= len(o.Route) || o.Route[i] != d.ID || !o.StepOpen(i) {
		expected := 0
		if i >= 0 && i < len(o.Route) {
			expected = o.Route[i]
		}
		return &InvariantError{OrderID: o.ID, DepartmentID: d.ID, Expected: expected}
	}
	now := s.Clock.Elapsed
	o.Timestamps[i].End = now
	o.Timestamps[i].Ended = true
	d.InProcess = nil
	o.ProcessingTime = 0
	o.ProcessingTimeRemaining = 0
	o.CurrentOperation = 0

	if i+1 >= len(o.Route) {
		finalizeOrder(s, o)
		return nil
	}
	next, err := s.Department(o.Route[i+1])
	if err != nil {
		return fmt.Errorf("%w: order %s: %w", ErrBrokenInvariant, o.ID, err)
	}
	if checkAdmission(s, o, next) == nil {
		enqueue(o, next)
		return nil
	}
	o.Status = model.OrderPending
	s.Pending = append(s.Pending, o)
	return nil
}

func finalizeOrder(s *State, o *model.Order) {
	now := s.Clock.Elapsed
	o.CompletedAt = now
	o.ActualLeadTime = now - o.CreatedAt
	o.SLAStatus = EvaluateSLA(o, now)
	severity := model.SeverityInfo
	if now > DueInstant(o) {
		o.Status = model.OrderCompletedLate
		severity = model.SeverityWarning
	} else {
		o.Status = model.OrderCompletedOnTime
	}
	s.Completed = append(s.Completed, o)
	s.emit(model.GameEvent{
		Type:     model.EventOrderCompleted,
		Severity: severity,
		Message:  fmt.Sprintf("Order %s completed (%s)", o.ID, o.Status),
		OrderID:  o.ID,
	})
}

// admitPendingOrders moves pending orders into their next department queue
// while capacity allows, in pool order.
func admitPendingOrders(s *State) error {
	kept := s.Pending[:0:0]
	for _, o := range s.Pending {
		next := o.NextStepIndex()
		if next >= len(o.Route) {
			return fmt.Errorf("%w: pending order %s has no remaining steps", ErrBrokenInvariant, o.ID)
		}
		d, err := s.Department(o.Route[next])
		if err != nil {
			return fmt.Errorf("%w: order %s: %w", ErrBrokenInvariant, o.ID, err)
		}
		if checkAdmission(s, o, d) != nil {
			kept = append(kept, o)
			continue
		}
		enqueue(o, d)
	}
	s.Pending = kept
	return nil
}

func dispatchIdle(s *State) error {
	for _, d := range s.Departments {
		if d.InProcess != nil || d.MaintenanceRemaining > 0 {
			continue
		}
		if o := NextDispatchable(d); o != nil {
			if err := startProcessing(s, d, o); err != nil {
				return err
			}
		}
	}
	return nil
}

// startProcessing moves o from d's queue into the in-process slot. A held
// order that already started here resumes its remaining budget.
func startProcessing(s *State, d *model.Department, o *model.Order) error {
	i := d.QueueIndex(o.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s not queued at department %d", ErrOrderNotFound, o.ID, d.ID)
	}
	if o.CurrentDepartment() != d.ID {
		return &InvariantError{OrderID: o.ID, DepartmentID: d.ID, Expected: o.CurrentDepartment()}
	}
	if !o.StepOpen(o.CurrentStepIndex) {
		if len(o.Timestamps) != o.CurrentStepIndex {
			return fmt.Errorf("%w: order %s has %d timestamps at step %d", ErrBrokenInvariant, o.ID, len(o.Timestamps), o.CurrentStepIndex)
		}
		o.Timestamps = append(o.Timestamps, model.StepTimestamp{DepartmentID: d.ID, Start: s.Clock.Elapsed})
		o.CurrentOperation = 0
		o.ProcessingTime = OperationTime(d, 0, o)
		o.ProcessingTimeRemaining = o.ProcessingTime
	}
	d.Queue = removeOrder(d.Queue, i)
	d.InProcess = o
	o.Status = model.OrderProcessing
	return nil
}
