package model

import "fmt"

// Priority is the customer-facing urgency of an order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// Rank orders priorities; higher is more urgent. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool { return p.Rank() > 0 }

// ParsePriority validates a priority name.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderScheduled       OrderStatus = "scheduled"
	OrderPending         OrderStatus = "pending"
	OrderQueued          OrderStatus = "queued"
	OrderProcessing      OrderStatus = "processing"
	OrderOnHold          OrderStatus = "on-hold"
	OrderCompletedOnTime OrderStatus = "completed-on-time"
	OrderCompletedLate   OrderStatus = "completed-late"
	OrderCancelled       OrderStatus = "cancelled"
	OrderError           OrderStatus = "error"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCompletedOnTime, OrderCompletedLate, OrderCancelled, OrderError:
		return true
	default:
		return false
	}
}

// SLAStatus classifies an order against its due time.
type SLAStatus string

const (
	SLAOnTrack SLAStatus = "on-track"
	SLAAtRisk  SLAStatus = "at-risk"
	SLAOverdue SLAStatus = "overdue"
)

// StepTimestamp records when an order entered and left processing at a
// department. End is meaningful only when Ended is true.
type StepTimestamp struct {
	DepartmentID int    `json:"department_id"`
	Start        Millis `json:"start"`
	End          Millis `json:"end"`
	Ended        bool   `json:"ended"`
}

// HalfOrder marks an order whose quantity was reduced.
type HalfOrder struct {
	Reason     string  `json:"reason"`
	Multiplier float64 `json:"multiplier"`
}

// Order is a customer job travelling along a route of departments.
type Order struct {
	ID           string   `json:"id"`
	CustomerID   string   `json:"customer_id"`
	CustomerName string   `json:"customer_name"`
	Priority     Priority `json:"priority"`
	Value        float64  `json:"value"`

	// Route is the ordered list of department IDs the order must visit.
	Route []int `json:"route"`
	// CurrentStepIndex points at the route step the order is at, or the last
	// one it finished while waiting for admission. -1 before the first
	// admission. It never decreases.
	CurrentStepIndex int `json:"current_step_index"`
	// CurrentOperation indexes the operations of the current department.
	CurrentOperation int `json:"current_operation"`

	Status     OrderStatus     `json:"status"`
	Timestamps []StepTimestamp `json:"timestamps"`

	ProcessingTime          Millis `json:"processing_time"`
	ProcessingTimeRemaining Millis `json:"processing_time_remaining"`

	// DueGameMinutes is the due time in game minutes since session start.
	DueGameMinutes *float64 `json:"due_game_minutes,omitempty"`
	// LegacyDueAt is an absolute due instant used when DueGameMinutes is
	// absent. Zero means unset.
	LegacyDueAt Millis    `json:"legacy_due_at,omitempty"`
	SLAStatus   SLAStatus `json:"sla_status"`

	HalfOrder *HalfOrder `json:"half_order,omitempty"`

	CreatedAt      Millis `json:"created_at"`
	CompletedAt    Millis `json:"completed_at,omitempty"`
	ActualLeadTime Millis `json:"actual_lead_time,omitempty"`
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Route = append([]int(nil), o.Route...)
	cp.Timestamps = append([]StepTimestamp(nil), o.Timestamps...)
	if o.DueGameMinutes != nil {
		due := *o.DueGameMinutes
		cp.DueGameMinutes = &due
	}
	if o.HalfOrder != nil {
		half := *o.HalfOrder
		cp.HalfOrder = &half
	}
	return &cp
}

// NextStepIndex is the route index the order should be admitted to next.
func (o *Order) NextStepIndex() int {
	if o.CurrentStepIndex < 0 {
		return 0
	}
	if o.StepClosed(o.CurrentStepIndex) {
		return o.CurrentStepIndex + 1
	}
	return o.CurrentStepIndex
}

// CurrentDepartment returns the department at CurrentStepIndex, or 0.
func (o *Order) CurrentDepartment() int {
	if o.CurrentStepIndex < 0 || o.CurrentStepIndex >= len(o.Route) {
		return 0
	}
	return o.Route[o.CurrentStepIndex]
}

// HalfMultiplier returns the quantity multiplier, 1 for full orders.
func (o *Order) HalfMultiplier() float64 {
	if o.HalfOrder == nil || o.HalfOrder.Multiplier <= 0 {
		return 1
	}
	return o.HalfOrder.Multiplier
}

// timestampFor returns the timestamp index recorded for route step i, or -1.
// Timestamps are appended in route order so the i-th entry belongs to step i.
func (o *Order) timestampFor(i int) int {
	if i < 0 || i >= len(o.Timestamps) {
		return -1
	}
	return i
}

// StepOpen reports whether processing started at step i and has not ended.
func (o *Order) StepOpen(i int) bool {
	idx := o.timestampFor(i)
	return idx >= 0 && !o.Timestamps[idx].Ended
}

// StepClosed reports whether step i has both start and end recorded.
func (o *Order) StepClosed(i int) bool {
	idx := o.timestampFor(i)
	return idx >= 0 && o.Timestamps[idx].Ended
}

// Live reports whether the order is still moving through the floor.
func (o *Order) Live() bool {
	return !o.Status.Terminal() && o.Status != OrderScheduled
}

// ScheduledOrder is an order waiting for its release time.
type ScheduledOrder struct {
	Order       *Order `json:"order"`
	ReleaseTime Millis `json:"release_time"`
}
