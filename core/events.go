package core

import (
	"fmt"

	"github.com/signalsfoundry/mto-simulator/model"
)

// Per-second probabilities of random perturbations.
const (
	equipmentFailureRate = 0.001
	rushOrderRate        = 0.0005
	deliveryDelayRate    = 0.0002
	efficiencyBoostRate  = 0.0003

	maintenanceDuration = 30 * model.Second
	boostDuration       = 60 * model.Second
	deliveryDelay       = 15 * model.Second

	boostSpeedup = 1.25
)

// GenerateEvents runs the independent perturbation trials for one step and
// applies their effects to s. It returns the events emitted.
func GenerateEvents(s *State, r *Rand, delta model.Millis) []model.GameEvent {
	if !s.Config.EventsEnabled || delta <= 0 {
		return nil
	}
	secs := delta.Seconds()
	var out []model.GameEvent

	if r.Chance(equipmentFailureRate * secs) {
		if d := pickDepartment(s, r, func(d *model.Department) bool { return d.MaintenanceRemaining <= 0 }); d != nil {
			d.MaintenanceRemaining = maintenanceDuration
			out = append(out, s.emit(model.GameEvent{
				Type:         model.EventEquipmentFailure,
				Severity:     model.SeverityCritical,
				Message:      fmt.Sprintf("Equipment failure in %s, maintenance for %.0fs", d.Name, maintenanceDuration.Seconds()),
				DepartmentID: d.ID,
			}))
		}
	}

	if r.Chance(rushOrderRate * secs) {
		o := NewOrder(s, r, model.PriorityUrgent)
		s.Pending = append(s.Pending, o)
		out = append(out, s.emit(model.GameEvent{
			Type:     model.EventRushOrder,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Rush order %s from %s", o.ID, o.CustomerName),
			OrderID:  o.ID,
		}))
	}

	if r.Chance(deliveryDelayRate * secs) {
		if d := pickDepartment(s, r, func(d *model.Department) bool { return d.InProcess != nil }); d != nil {
			o := d.InProcess
			o.ProcessingTimeRemaining += deliveryDelay
			o.ProcessingTime += deliveryDelay
			out = append(out, s.emit(model.GameEvent{
				Type:         model.EventDeliveryDelay,
				Severity:     model.SeverityWarning,
				Message:      fmt.Sprintf("Material delivery delayed for %s in %s", o.ID, d.Name),
				DepartmentID: d.ID,
				OrderID:      o.ID,
			}))
		}
	}

	if r.Chance(efficiencyBoostRate * secs) {
		if d := pickDepartment(s, r, func(d *model.Department) bool { return d.MaintenanceRemaining <= 0 }); d != nil {
			d.BoostRemaining = boostDuration
			out = append(out, s.emit(model.GameEvent{
				Type:         model.EventEfficiencyBoost,
				Severity:     model.SeverityInfo,
				Message:      fmt.Sprintf("%s is running ahead of standard", d.Name),
				DepartmentID: d.ID,
			}))
		}
	}
	return out
}

func pickDepartment(s *State, r *Rand, eligible func(*model.Department) bool) *model.Department {
	var pool []*model.Department
	for _, d := range s.Departments {
		if eligible(d) {
			pool = append(pool, d)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	return Choice(r, pool)
}
