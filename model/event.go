package model

// EventType names a feed entry.
type EventType string

const (
	EventOrderGenerated      EventType = "order-generated"
	EventOrderCompleted      EventType = "order-completed"
	EventOrderOverdue        EventType = "order-overdue"
	EventEquipmentFailure    EventType = "equipment-failure"
	EventRushOrder           EventType = "rush-order"
	EventDeliveryDelay       EventType = "delivery-delay"
	EventEfficiencyBoost     EventType = "efficiency-boost"
	EventMaintenanceComplete EventType = "maintenance-complete"
	EventSessionCompleted    EventType = "session-completed"
)

// Severity grades an event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// GameEvent is an immutable feed entry.
type GameEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	DepartmentID int       `json:"department_id,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
	Timestamp    Millis    `json:"timestamp"`
}
