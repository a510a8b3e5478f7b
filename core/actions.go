package core

import (
	"fmt"
	"slices"

	"github.com/signalsfoundry/mto-simulator/model"
)

// Action is a player decision applied to a State.
type Action interface {
	// Kind names the decision for the log.
	Kind() model.DecisionType
	// Describe returns a human-readable summary.
	Describe() string
	// Target returns the order the action concerns, if any.
	Target() string
	apply(s *State) error
}

// Apply runs a on a copy of prev. On error it returns nil and prev stays
// the current state.
func Apply(prev *State, a Action) (*State, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	if prev.Clock.Status == model.SessionCompleted {
		return nil, fmt.Errorf("%w: session completed", ErrSessionNotRunning)
	}
	s := prev.Clone()
	if err := a.apply(s); err != nil {
		return nil, err
	}
	s.Performance = ComputePerformance(s)
	return s, nil
}

// AssignOrder admits a pending order to its next route department.
type AssignOrder struct {
	OrderID      string
	DepartmentID int
}

func (AssignOrder) Kind() model.DecisionType { return model.DecisionAssign }
func (a AssignOrder) Target() string         { return a.OrderID }
func (a AssignOrder) Describe() string {
	return fmt.Sprintf("Assigned %s to department %d", a.OrderID, a.DepartmentID)
}

func (a AssignOrder) apply(s *State) error {
	o, loc := s.Locate(a.OrderID)
	if o == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, a.OrderID)
	}
	if loc.Kind != LocationPending {
		return fmt.Errorf("%w: order %s is %s, not pending", ErrInvalidAction, a.OrderID, loc.Kind)
	}
	d, err := s.Department(a.DepartmentID)
	if err != nil {
		return err
	}
	if err := checkAdmission(s, o, d); err != nil {
		return err
	}
	s.Pending = removeOrder(s.Pending, loc.Index)
	enqueue(o, d)
	return nil
}

// StartProcessing moves a queued order into an idle department's
// in-process slot. An empty OrderID picks the order the dispatch rule
// selects.
type StartProcessing struct {
	DepartmentID int
	OrderID      string
}

func (StartProcessing) Kind() model.DecisionType { return model.DecisionStart }
func (a StartProcessing) Target() string         { return a.OrderID }
func (a StartProcessing) Describe() string {
	if a.OrderID == "" {
		return fmt.Sprintf("Started next order at department %d", a.DepartmentID)
	}
	return fmt.Sprintf("Started %s at department %d", a.OrderID, a.DepartmentID)
}

func (a StartProcessing) apply(s *State) error {
	d, err := s.Department(a.DepartmentID)
	if err != nil {
		return err
	}
	if d.MaintenanceRemaining > 0 {
		return fmt.Errorf("%w: %d", ErrMaintenance, d.ID)
	}
	if d.InProcess != nil {
		return fmt.Errorf("%w: %d is processing %s", ErrDepartmentBusy, d.ID, d.InProcess.ID)
	}
	var o *model.Order
	if a.OrderID == "" {
		o = NextDispatchable(d)
	} else if i := d.QueueIndex(a.OrderID); i >= 0 {
		o = d.Queue[i]
	}
	if o == nil {
		return fmt.Errorf("%w: %q not queued at department %d", ErrOrderNotFound, a.OrderID, d.ID)
	}
	return startProcessing(s, d, o)
}

// HoldOrder pauses the in-process order of a department and returns it to
// the head or tail of the queue.
type HoldOrder struct {
	DepartmentID int
	ToFront      bool
}

func (HoldOrder) Kind() model.DecisionType { return model.DecisionHold }
func (HoldOrder) Target() string           { return "" }
func (a HoldOrder) Describe() string {
	return fmt.Sprintf("Put department %d work on hold", a.DepartmentID)
}

func (a HoldOrder) apply(s *State) error {
	d, err := s.Department(a.DepartmentID)
	if err != nil {
		return err
	}
	o := d.InProcess
	if o == nil {
		return fmt.Errorf("%w: %d", ErrDepartmentIdle, d.ID)
	}
	d.InProcess = nil
	o.Status = model.OrderOnHold
	if a.ToFront {
		d.Queue = append([]*model.Order{o}, d.Queue...)
	} else {
		d.Queue = append(d.Queue, o)
	}
	return nil
}

// ResumeOrder releases a held order back to queued, optionally starting it
// immediately.
type ResumeOrder struct {
	OrderID string
	Start   bool
}

func (ResumeOrder) Kind() model.DecisionType { return model.DecisionResume }
func (a ResumeOrder) Target() string         { return a.OrderID }
func (a ResumeOrder) Describe() string       { return fmt.Sprintf("Resumed %s", a.OrderID) }

func (a ResumeOrder) apply(s *State) error {
	o, loc := s.Locate(a.OrderID)
	if o == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, a.OrderID)
	}
	if loc.Kind != LocationQueue || o.Status != model.OrderOnHold {
		return fmt.Errorf("%w: order %s is not on hold", ErrInvalidAction, a.OrderID)
	}
	o.Status = model.OrderQueued
	if !a.Start {
		return nil
	}
	d, err := s.Department(loc.DepartmentID)
	if err != nil {
		return err
	}
	if d.MaintenanceRemaining > 0 {
		return fmt.Errorf("%w: %d", ErrMaintenance, d.ID)
	}
	if d.InProcess != nil {
		return fmt.Errorf("%w: %d is processing %s", ErrDepartmentBusy, d.ID, d.InProcess.ID)
	}
	return startProcessing(s, d, o)
}

// CompleteProcessing finishes the remaining operations of the in-process
// order and routes it on.
type CompleteProcessing struct {
	DepartmentID int
}

func (CompleteProcessing) Kind() model.DecisionType { return model.DecisionComplete }
func (CompleteProcessing) Target() string           { return "" }
func (a CompleteProcessing) Describe() string {
	return fmt.Sprintf("Completed work at department %d", a.DepartmentID)
}

func (a CompleteProcessing) apply(s *State) error {
	d, err := s.Department(a.DepartmentID)
	if err != nil {
		return err
	}
	if d.MaintenanceRemaining > 0 {
		return fmt.Errorf("%w: %d", ErrMaintenance, d.ID)
	}
	o := d.InProcess
	if o == nil {
		return fmt.Errorf("%w: %d", ErrDepartmentIdle, d.ID)
	}
	if o.CurrentDepartment() != d.ID {
		return fmt.Errorf("%w: department %d for order %s", ErrRouting, d.ID, o.ID)
	}
	return finishStep(s, d, o)
}

// OverrideRoute replaces the not-yet-committed tail of an order's route.
type OverrideRoute struct {
	OrderID string
	Route   []int
}

func (OverrideRoute) Kind() model.DecisionType { return model.DecisionRouteOverride }
func (a OverrideRoute) Target() string         { return a.OrderID }
func (a OverrideRoute) Describe() string {
	return fmt.Sprintf("Rerouted %s via %v", a.OrderID, a.Route)
}

func (a OverrideRoute) apply(s *State) error {
	if !s.Config.AdvancedRouting {
		return ErrAdvancedRoutingDisabled
	}
	o, loc := s.Locate(a.OrderID)
	if o == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, a.OrderID)
	}
	if loc.Kind != LocationPending && loc.Kind != LocationQueue {
		return fmt.Errorf("%w: order %s is %s", ErrInvalidAction, a.OrderID, loc.Kind)
	}
	fixed := o.CurrentStepIndex + 1
	if len(a.Route) < fixed || (loc.Kind == LocationPending && len(a.Route) == fixed) {
		return fmt.Errorf("%w: route must keep %d committed steps and leave work to do", ErrSequencing, fixed)
	}
	if !slices.Equal(a.Route[:fixed], o.Route[:fixed]) {
		return fmt.Errorf("%w: committed steps %v cannot change", ErrSequencing, o.Route[:fixed])
	}
	if err := ValidateRoute(s, a.Route); err != nil {
		return err
	}
	o.Route = slices.Clone(a.Route)
	if loc.Kind == LocationQueue && o.Status == model.OrderQueued && !o.StepOpen(o.CurrentStepIndex) {
		d, err := s.Department(loc.DepartmentID)
		if err != nil {
			return err
		}
		o.ProcessingTime = OperationTime(d, 0, o)
		o.ProcessingTimeRemaining = o.ProcessingTime
	}
	return nil
}

// Rebalance moves queued work from the most loaded departments in From to
// the least loaded in To until their WIP differs by at most one. Moved
// orders have their current route step rewritten to the target.
type Rebalance struct {
	From []int
	To   []int
}

func (Rebalance) Kind() model.DecisionType { return model.DecisionRebalance }
func (Rebalance) Target() string           { return "" }
func (a Rebalance) Describe() string {
	return fmt.Sprintf("Rebalanced work from %v to %v", a.From, a.To)
}

func (a Rebalance) apply(s *State) error {
	if !s.Config.AdvancedRouting {
		return ErrAdvancedRoutingDisabled
	}
	if len(a.From) == 0 || len(a.To) == 0 {
		return fmt.Errorf("%w: rebalance needs source and target departments", ErrInvalidAction)
	}
	from, err := s.departmentSet(a.From)
	if err != nil {
		return err
	}
	to, err := s.departmentSet(a.To)
	if err != nil {
		return err
	}
	for _, d := range from {
		if slices.Contains(a.To, d.ID) {
			return fmt.Errorf("%w: department %d is both source and target", ErrInvalidAction, d.ID)
		}
	}

	moved := 0
	for {
		src := mostLoaded(from)
		dst := leastLoaded(to, s.EngineeringID)
		if src == nil || dst == nil || src.WIPCount()-dst.WIPCount() <= 1 {
			break
		}
		i := movableIndex(src, dst, s.EngineeringID)
		if i < 0 {
			break
		}
		o := src.Queue[i]
		src.Queue = removeOrder(src.Queue, i)
		o.Route[o.CurrentStepIndex] = dst.ID
		o.ProcessingTime = OperationTime(dst, 0, o)
		o.ProcessingTimeRemaining = o.ProcessingTime
		dst.Queue = append(dst.Queue, o)
		moved++
	}
	if moved == 0 {
		return ErrNothingToRebalance
	}
	return nil
}

func (s *State) departmentSet(ids []int) ([]*model.Department, error) {
	res := make([]*model.Department, 0, len(ids))
	for _, id := range ids {
		d, err := s.Department(id)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func mostLoaded(ds []*model.Department) *model.Department {
	var best *model.Department
	for _, d := range ds {
		if best == nil || d.WIPCount() > best.WIPCount() || (d.WIPCount() == best.WIPCount() && d.ID < best.ID) {
			best = d
		}
	}
	return best
}

func leastLoaded(ds []*model.Department, engineeringID int) *model.Department {
	var best *model.Department
	for _, d := range ds {
		if d.ID == engineeringID || d.MaintenanceRemaining > 0 || !d.HasCapacity() {
			continue
		}
		if best == nil || d.WIPCount() < best.WIPCount() || (d.WIPCount() == best.WIPCount() && d.ID < best.ID) {
			best = d
		}
	}
	return best
}

// movableIndex picks the queued order closest to the tail that can switch
// from src to dst.
func movableIndex(src, dst *model.Department, engineeringID int) int {
	if src.ID == engineeringID {
		return -1
	}
	for i := len(src.Queue) - 1; i >= 0; i-- {
		o := src.Queue[i]
		if o.Status != model.OrderQueued || o.StepOpen(o.CurrentStepIndex) {
			continue
		}
		if slices.Contains(o.Route, dst.ID) {
			continue
		}
		return i
	}
	return -1
}

// SetDispatchRule changes a department's dispatch policy.
type SetDispatchRule struct {
	DepartmentID int
	Rule         model.DispatchRule
}

func (SetDispatchRule) Kind() model.DecisionType { return model.DecisionDispatchRule }
func (SetDispatchRule) Target() string           { return "" }
func (a SetDispatchRule) Describe() string {
	return fmt.Sprintf("Department %d now dispatches by %s", a.DepartmentID, a.Rule)
}

func (a SetDispatchRule) apply(s *State) error {
	if !a.Rule.Valid() {
		return fmt.Errorf("%w: unknown dispatch rule %q", ErrInvalidAction, a.Rule)
	}
	d, err := s.Department(a.DepartmentID)
	if err != nil {
		return err
	}
	d.PriorityRule = a.Rule
	return nil
}

// CancelOrder withdraws a pending or queued order.
type CancelOrder struct {
	OrderID string
}

func (CancelOrder) Kind() model.DecisionType { return model.DecisionCancel }
func (a CancelOrder) Target() string         { return a.OrderID }
func (a CancelOrder) Describe() string       { return fmt.Sprintf("Cancelled %s", a.OrderID) }

func (a CancelOrder) apply(s *State) error {
	o, loc := s.Locate(a.OrderID)
	if o == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, a.OrderID)
	}
	switch loc.Kind {
	case LocationPending:
		s.Pending = removeOrder(s.Pending, loc.Index)
	case LocationQueue:
		d, err := s.Department(loc.DepartmentID)
		if err != nil {
			return err
		}
		d.Queue = removeOrder(d.Queue, loc.Index)
	default:
		return fmt.Errorf("%w: order %s is %s", ErrInvalidAction, a.OrderID, loc.Kind)
	}
	o.Status = model.OrderCancelled
	s.Cancelled = append(s.Cancelled, o)
	return nil
}
