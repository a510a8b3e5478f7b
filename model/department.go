package model

import (
	"encoding/json"
	"fmt"
)

// DispatchRule selects the next order from a department queue.
type DispatchRule string

const (
	RuleFIFO DispatchRule = "fifo"
	RuleEDD  DispatchRule = "edd"
	RuleSPT  DispatchRule = "spt"
)

// Valid reports whether r is a known rule.
func (r DispatchRule) Valid() bool {
	switch r {
	case RuleFIFO, RuleEDD, RuleSPT:
		return true
	default:
		return false
	}
}

// ParseDispatchRule validates a dispatch rule name.
func ParseDispatchRule(s string) (DispatchRule, error) {
	r := DispatchRule(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown dispatch rule %q", s)
	}
	return r, nil
}

// DeptStatus is the derived operating state of a department.
type DeptStatus string

const (
	DeptAvailable   DeptStatus = "available"
	DeptBusy        DeptStatus = "busy"
	DeptOverloaded  DeptStatus = "overloaded"
	DeptMaintenance DeptStatus = "maintenance"
)

// Operation is one processing stage inside a department.
type Operation struct {
	Name         string `json:"name"`
	StandardTime Millis `json:"standard_time"`
}

// Department is a work center with a bounded queue and a single
// in-process slot.
type Department struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Operations   []Operation  `json:"operations"`
	Queue        []*Order     `json:"queue"`
	InProcess    *Order       `json:"in_process,omitempty"`
	MaxQueueSize int          `json:"max_queue_size"`
	PriorityRule DispatchRule `json:"priority_rule"`

	// Efficiency and EquipmentCondition scale processing times and are
	// fixed for the session.
	Efficiency         float64 `json:"efficiency"`
	EquipmentCondition float64 `json:"equipment_condition"`

	BusyTime             Millis  `json:"busy_time"`
	Utilization          float64 `json:"utilization"`
	MaintenanceRemaining Millis  `json:"maintenance_remaining,omitempty"`
	BoostRemaining       Millis  `json:"boost_remaining,omitempty"`
}

// WIPCount is the number of orders queued or in process.
func (d *Department) WIPCount() int {
	n := len(d.Queue)
	if d.InProcess != nil {
		n++
	}
	return n
}

// HasCapacity reports whether one more order can be admitted.
func (d *Department) HasCapacity() bool { return d.WIPCount() < d.MaxQueueSize }

// Status derives the operating state.
func (d *Department) Status() DeptStatus {
	switch {
	case d.MaintenanceRemaining > 0:
		return DeptMaintenance
	case d.WIPCount() >= d.MaxQueueSize:
		return DeptOverloaded
	case d.InProcess != nil:
		return DeptBusy
	default:
		return DeptAvailable
	}
}

type departmentAlias Department

// MarshalJSON adds the derived status and WIP count to the stored fields.
func (d Department) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		departmentAlias
		Status   DeptStatus `json:"status"`
		WIPCount int        `json:"wip_count"`
	}{
		departmentAlias: departmentAlias(d),
		Status:          d.Status(),
		WIPCount:        d.WIPCount(),
	})
}

// UnmarshalJSON reads the stored fields; status and wip_count are derived
// and ignored on input.
func (d *Department) UnmarshalJSON(data []byte) error {
	var in struct {
		*departmentAlias
		Status   DeptStatus `json:"status"`
		WIPCount int        `json:"wip_count"`
	}
	in.departmentAlias = (*departmentAlias)(d)
	return json.Unmarshal(data, &in)
}

// QueueIndex returns the position of orderID in the queue, or -1.
func (d *Department) QueueIndex(orderID string) int {
	for i, o := range d.Queue {
		if o.ID == orderID {
			return i
		}
	}
	return -1
}

// Clone deep-copies the department including the orders it holds.
func (d *Department) Clone() *Department {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Operations = append([]Operation(nil), d.Operations...)
	cp.Queue = make([]*Order, len(d.Queue))
	for i, o := range d.Queue {
		cp.Queue[i] = o.Clone()
	}
	cp.InProcess = d.InProcess.Clone()
	return &cp
}
