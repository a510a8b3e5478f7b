package model

import "time"

// DecisionType names a player action recorded in the decision log.
type DecisionType string

const (
	DecisionAssign        DecisionType = "assign"
	DecisionStart         DecisionType = "start"
	DecisionHold          DecisionType = "hold"
	DecisionResume        DecisionType = "resume"
	DecisionComplete      DecisionType = "complete"
	DecisionRouteOverride DecisionType = "route-override"
	DecisionRebalance     DecisionType = "rebalance"
	DecisionDispatchRule  DecisionType = "dispatch-rule"
	DecisionCancel        DecisionType = "cancel"
)

// Decision describes a reversible player action.
type Decision struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	GameTime    Millis       `json:"game_time"`
	Type        DecisionType `json:"type"`
	Description string       `json:"description"`
	OrderID     string       `json:"order_id,omitempty"`
	CanUndo     bool         `json:"can_undo"`
}
