package core

import (
	"fmt"

	"github.com/signalsfoundry/mto-simulator/model"
)

// ValidateRoute checks that route is non-empty, references known
// departments without repeats, and that the engineering department, when
// present, is the first step.
func ValidateRoute(s *State, route []int) error {
	if len(route) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidRoute)
	}
	seen := make(map[int]struct{}, len(route))
	for i, id := range route {
		if _, err := s.Department(id); err != nil {
			return fmt.Errorf("%w: step %d: %w", ErrInvalidRoute, i, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: department %d repeats", ErrInvalidRoute, id)
		}
		seen[id] = struct{}{}
		if s.EngineeringID != 0 && id == s.EngineeringID && i != 0 {
			return fmt.Errorf("%w: engineering must be the first step, found at step %d", ErrSequencing, i)
		}
	}
	return nil
}

// checkAdmission verifies that o may enter department d as its next step.
func checkAdmission(s *State, o *model.Order, d *model.Department) error {
	next := o.NextStepIndex()
	if next >= len(o.Route) {
		return fmt.Errorf("%w: order %s has no remaining steps", ErrRouting, o.ID)
	}
	if o.Route[next] != d.ID {
		pos := -1
		for i := next; i < len(o.Route); i++ {
			if o.Route[i] == d.ID {
				pos = i
				break
			}
		}
		if pos < 0 {
			return fmt.Errorf("%w: department %d for order %s", ErrRouting, d.ID, o.ID)
		}
		return fmt.Errorf("%w: order %s must visit department %d before %d", ErrSequencing, o.ID, o.Route[next], d.ID)
	}
	if s.EngineeringID != 0 && d.ID == s.EngineeringID && next != 0 {
		return fmt.Errorf("%w: engineering must be the first step", ErrSequencing)
	}
	if d.MaintenanceRemaining > 0 {
		return fmt.Errorf("%w: %d", ErrMaintenance, d.ID)
	}
	if !d.HasCapacity() {
		return fmt.Errorf("%w: department %d holds %d of %d", ErrCapacity, d.ID, d.WIPCount(), d.MaxQueueSize)
	}
	return nil
}

// enqueue places o at the tail of d's queue as its next route step.
func enqueue(o *model.Order, d *model.Department) {
	o.CurrentStepIndex = o.NextStepIndex()
	o.CurrentOperation = 0
	o.Status = model.OrderQueued
	o.ProcessingTime = OperationTime(d, 0, o)
	o.ProcessingTimeRemaining = o.ProcessingTime
	d.Queue = append(d.Queue, o)
}
