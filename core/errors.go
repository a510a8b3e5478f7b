package core

import (
	"errors"
	"fmt"
)

var (
	// ErrRouting is returned when a department is not on the order's
	// remaining route.
	ErrRouting = errors.New("department not on order route")
	// ErrCapacity is returned when a department queue is full.
	ErrCapacity = errors.New("department at capacity")
	// ErrSequencing is returned when an action skips route steps or breaks
	// the engineering gate.
	ErrSequencing = errors.New("route sequence violation")
	// ErrOrderNotFound is returned when an order ID is unknown or the order
	// is not where the action expects it.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDepartmentNotFound is returned for unknown department IDs.
	ErrDepartmentNotFound = errors.New("department not found")
	// ErrInvalidRoute is returned for empty, repeating or unknown routes.
	ErrInvalidRoute            = errors.New("invalid route")
	ErrDepartmentBusy          = errors.New("department busy")
	ErrDepartmentIdle          = errors.New("department has no order in process")
	ErrMaintenance             = errors.New("department under maintenance")
	ErrInvalidAction           = errors.New("invalid action")
	ErrSessionNotRunning       = errors.New("session not running")
	ErrAdvancedRoutingDisabled = errors.New("advanced routing disabled")
	ErrNothingToRebalance      = errors.New("nothing to rebalance")
	// ErrBrokenInvariant signals an internal consistency failure in Step.
	ErrBrokenInvariant = errors.New("simulation invariant broken")
)

// InvariantError describes an order closing a step at a department it is
// not routed to.
type InvariantError struct {
	OrderID      string
	DepartmentID int
	Expected     int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("order %s finished at department %d but its current route step is department %d", e.OrderID, e.DepartmentID, e.Expected)
}

func (e *InvariantError) Unwrap() error { return ErrBrokenInvariant }
