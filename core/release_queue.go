package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/mto-simulator/model"
)

// ScheduleOrder inserts o into the release queue ordered by release time.
// Orders with equal release times keep insertion order.
func ScheduleOrder(s *State, o *model.Order, releaseAt model.Millis) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("%w: scheduled order needs an id", ErrInvalidAction)
	}
	if existing, _ := s.Locate(o.ID); existing != nil {
		return fmt.Errorf("%w: order %s already exists", ErrInvalidAction, o.ID)
	}
	if err := ValidateRoute(s, o.Route); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.Status = model.OrderScheduled
	o.CurrentStepIndex = -1

	i := sort.Search(len(s.Scheduled), func(i int) bool {
		return s.Scheduled[i].ReleaseTime > releaseAt
	})
	s.Scheduled = append(s.Scheduled, model.ScheduledOrder{})
	copy(s.Scheduled[i+1:], s.Scheduled[i:])
	s.Scheduled[i] = model.ScheduledOrder{Order: o, ReleaseTime: releaseAt}
	return nil
}

// releaseDue moves every scheduled order with ReleaseTime <= now into the
// pending pool, stamping its creation time.
func releaseDue(s *State) []*model.Order {
	now := s.Clock.Elapsed
	n := sort.Search(len(s.Scheduled), func(i int) bool {
		return s.Scheduled[i].ReleaseTime > now
	})
	if n == 0 {
		return nil
	}
	released := make([]*model.Order, 0, n)
	for _, so := range s.Scheduled[:n] {
		o := so.Order.Clone()
		o.CreatedAt = now
		o.CurrentStepIndex = -1
		o.SLAStatus = model.SLAOnTrack
		admitPending(s, o)
		released = append(released, o)
	}
	s.Scheduled = append([]model.ScheduledOrder(nil), s.Scheduled[n:]...)
	return released
}
