package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/mto-simulator/model"
)

// MaxEvents bounds the event feed.
const MaxEvents = 50

// State is a complete, self-contained simulation snapshot. Step and Apply
// never modify a State they receive; they return a fresh one. Completed and
// cancelled orders, scheduled orders and events are never mutated after they
// are stored, so clones share them.
type State struct {
	Config model.SessionConfig `json:"config"`
	Clock  model.Clock         `json:"clock"`

	Departments []*model.Department    `json:"departments"`
	Pending     []*model.Order         `json:"pending"`
	Scheduled   []model.ScheduledOrder `json:"scheduled"`
	Completed   []*model.Order         `json:"completed"`
	Cancelled   []*model.Order         `json:"cancelled"`
	Customers   []model.Customer       `json:"customers"`

	Events      []model.GameEvent `json:"events"`
	Performance model.Performance `json:"performance"`

	RandState     uint32 `json:"rand_state"`
	OrderSeq      int    `json:"order_seq"`
	EventSeq      int    `json:"event_seq"`
	EngineeringID int    `json:"engineering_id"`
}

// Clone returns a copy that can be mutated without affecting s.
func (s *State) Clone() *State {
	cp := *s
	cp.Departments = make([]*model.Department, len(s.Departments))
	for i, d := range s.Departments {
		cp.Departments[i] = d.Clone()
	}
	cp.Pending = make([]*model.Order, len(s.Pending))
	for i, o := range s.Pending {
		cp.Pending[i] = o.Clone()
	}
	cp.Scheduled = append([]model.ScheduledOrder(nil), s.Scheduled...)
	cp.Completed = append([]*model.Order(nil), s.Completed...)
	cp.Cancelled = append([]*model.Order(nil), s.Cancelled...)
	cp.Customers = append([]model.Customer(nil), s.Customers...)
	cp.Events = append([]model.GameEvent(nil), s.Events...)
	cp.Performance.Departments = append([]model.DepartmentLoad(nil), s.Performance.Departments...)
	return &cp
}

// Department returns the department with the given ID.
func (s *State) Department(id int) (*model.Department, error) {
	i := sort.Search(len(s.Departments), func(i int) bool { return s.Departments[i].ID >= id })
	if i < len(s.Departments) && s.Departments[i].ID == id {
		return s.Departments[i], nil
	}
	return nil, fmt.Errorf("%w: %d", ErrDepartmentNotFound, id)
}

// Location describes where an order currently sits.
type Location struct {
	Kind         LocationKind
	DepartmentID int
	Index        int
}

// LocationKind enumerates the places an order can be held.
type LocationKind int

const (
	LocationNone LocationKind = iota
	LocationScheduled
	LocationPending
	LocationQueue
	LocationInProcess
	LocationCompleted
	LocationCancelled
)

func (k LocationKind) String() string {
	switch k {
	case LocationScheduled:
		return "scheduled"
	case LocationPending:
		return "pending"
	case LocationQueue:
		return "queue"
	case LocationInProcess:
		return "in-process"
	case LocationCompleted:
		return "completed"
	case LocationCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Locate finds an order and where it is held.
func (s *State) Locate(orderID string) (*model.Order, Location) {
	for i, o := range s.Pending {
		if o.ID == orderID {
			return o, Location{Kind: LocationPending, Index: i}
		}
	}
	for _, d := range s.Departments {
		if d.InProcess != nil && d.InProcess.ID == orderID {
			return d.InProcess, Location{Kind: LocationInProcess, DepartmentID: d.ID}
		}
		if i := d.QueueIndex(orderID); i >= 0 {
			return d.Queue[i], Location{Kind: LocationQueue, DepartmentID: d.ID, Index: i}
		}
	}
	for i, so := range s.Scheduled {
		if so.Order.ID == orderID {
			return so.Order, Location{Kind: LocationScheduled, Index: i}
		}
	}
	for i, o := range s.Completed {
		if o.ID == orderID {
			return o, Location{Kind: LocationCompleted, Index: i}
		}
	}
	for i, o := range s.Cancelled {
		if o.ID == orderID {
			return o, Location{Kind: LocationCancelled, Index: i}
		}
	}
	return nil, Location{}
}

// LiveOrders returns pending, queued and in-process orders in department
// order.
func (s *State) LiveOrders() []*model.Order {
	res := append([]*model.Order(nil), s.Pending...)
	for _, d := range s.Departments {
		res = append(res, d.Queue...)
		if d.InProcess != nil {
			res = append(res, d.InProcess)
		}
	}
	return res
}

// AllOrders returns every order known to the state.
func (s *State) AllOrders() []*model.Order {
	res := make([]*model.Order, 0, len(s.Scheduled)+len(s.Completed)+len(s.Cancelled))
	for _, so := range s.Scheduled {
		res = append(res, so.Order)
	}
	res = append(res, s.LiveOrders()...)
	res = append(res, s.Completed...)
	res = append(res, s.Cancelled...)
	return res
}

func (s *State) nextOrderID() string {
	s.OrderSeq++
	return fmt.Sprintf("ORD-%04d", s.OrderSeq)
}

// emit appends an event to the bounded feed.
func (s *State) emit(ev model.GameEvent) model.GameEvent {
	s.EventSeq++
	ev.ID = fmt.Sprintf("EV-%05d", s.EventSeq)
	ev.Timestamp = s.Clock.Elapsed
	s.Events = append(s.Events, ev)
	if over := len(s.Events) - MaxEvents; over > 0 {
		s.Events = append([]model.GameEvent(nil), s.Events[over:]...)
	}
	return ev
}

// EventsSince returns feed entries with a sequence number above seq.
func (s *State) EventsSince(seq int) []model.GameEvent {
	n := s.EventSeq - seq
	if n <= 0 {
		return nil
	}
	if n > len(s.Events) {
		n = len(s.Events)
	}
	return append([]model.GameEvent(nil), s.Events[len(s.Events)-n:]...)
}

func removeOrder(orders []*model.Order, i int) []*model.Order {
	res := make([]*model.Order, 0, len(orders)-1)
	res = append(res, orders[:i]...)
	return append(res, orders[i+1:]...)
}
