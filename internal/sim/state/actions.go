package state

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/model"
)

// ActionRequest is the transport-neutral form of a player decision. The
// gRPC and HTTP layers decode into it and ToAction picks the engine action.
type ActionRequest struct {
	Type         model.DecisionType `json:"type"`
	OrderID      string             `json:"order_id,omitempty"`
	DepartmentID int                `json:"department_id,omitempty"`
	ToFront      bool               `json:"to_front,omitempty"`
	Start        bool               `json:"start,omitempty"`
	Route        []int              `json:"route,omitempty"`
	From         []int              `json:"from,omitempty"`
	To           []int              `json:"to,omitempty"`
	Rule         string             `json:"rule,omitempty"`
}

// ToAction validates the request shape and returns the engine action.
func (r ActionRequest) ToAction() (core.Action, error) {
	switch r.Type {
	case model.DecisionAssign:
		if r.OrderID == "" || r.DepartmentID == 0 {
			return nil, invalid("assign needs order_id and department_id")
		}
		return core.AssignOrder{OrderID: r.OrderID, DepartmentID: r.DepartmentID}, nil
	case model.DecisionStart:
		if r.DepartmentID == 0 {
			return nil, invalid("start needs department_id")
		}
		return core.StartProcessing{DepartmentID: r.DepartmentID, OrderID: r.OrderID}, nil
	case model.DecisionHold:
		if r.DepartmentID == 0 {
			return nil, invalid("hold needs department_id")
		}
		return core.HoldOrder{DepartmentID: r.DepartmentID, ToFront: r.ToFront}, nil
	case model.DecisionResume:
		if r.OrderID == "" {
			return nil, invalid("resume needs order_id")
		}
		return core.ResumeOrder{OrderID: r.OrderID, Start: r.Start}, nil
	case model.DecisionComplete:
		if r.DepartmentID == 0 {
			return nil, invalid("complete needs department_id")
		}
		return core.CompleteProcessing{DepartmentID: r.DepartmentID}, nil
	case model.DecisionRouteOverride:
		if r.OrderID == "" || len(r.Route) == 0 {
			return nil, invalid("route-override needs order_id and route")
		}
		return core.OverrideRoute{OrderID: r.OrderID, Route: append([]int(nil), r.Route...)}, nil
	case model.DecisionRebalance:
		return core.Rebalance{From: append([]int(nil), r.From...), To: append([]int(nil), r.To...)}, nil
	case model.DecisionDispatchRule:
		rule, err := model.ParseDispatchRule(r.Rule)
		if err != nil {
			return nil, errors.Join(core.ErrInvalidAction, err)
		}
		if r.DepartmentID == 0 {
			return nil, invalid("dispatch-rule needs department_id")
		}
		return core.SetDispatchRule{DepartmentID: r.DepartmentID, Rule: rule}, nil
	case model.DecisionCancel:
		if r.OrderID == "" {
			return nil, invalid("cancel needs order_id")
		}
		return core.CancelOrder{OrderID: r.OrderID}, nil
	default:
		return nil, invalid(fmt.Sprintf("unknown action type %q", r.Type))
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidAction, msg)
}
