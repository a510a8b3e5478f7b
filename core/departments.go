package core

import (
	"math"

	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
)

// Default SPT key for orders without a processing budget.
const defaultSPTTime = 30 * model.Minute

// NewDepartments initializes session departments from catalog templates,
// drawing the per-session multipliers and operation times from r.
func NewDepartments(templates []kb.DepartmentTemplate, r *Rand) []*model.Department {
	res := make([]*model.Department, 0, len(templates))
	for _, t := range templates {
		d := &model.Department{
			ID:                 t.ID,
			Name:               t.Name,
			MaxQueueSize:       t.MaxQueueSize,
			PriorityRule:       t.DefaultRule,
			Efficiency:         r.Between(0.8, 1.2),
			EquipmentCondition: r.Between(0.95, 1.0),
		}
		for _, op := range t.Operations {
			std := model.Millis(math.Floor(float64(op.StandardTime) * r.Between(0.8, 1.2)))
			if std < 1 {
				std = 1
			}
			d.Operations = append(d.Operations, model.Operation{Name: op.Name, StandardTime: std})
		}
		res = append(res, d)
	}
	return res
}

// ComplexityFactor scales processing time with route length.
func ComplexityFactor(routeLen int) float64 {
	if routeLen < 1 {
		routeLen = 1
	}
	return 1 + 0.05*float64(routeLen-1)
}

// OperationTime computes the processing budget of one operation of d for o.
// The result is floored and never below 1 ms.
func OperationTime(d *model.Department, op int, o *model.Order) model.Millis {
	if op < 0 || op >= len(d.Operations) {
		return 1
	}
	t := float64(d.Operations[op].StandardTime) *
		d.Efficiency *
		d.EquipmentCondition *
		ComplexityFactor(len(o.Route)) *
		o.HalfMultiplier()
	ms := model.Millis(math.Floor(t))
	if ms < 1 {
		ms = 1
	}
	return ms
}
