package core

import "github.com/signalsfoundry/mto-simulator/model"

// ComputePerformance derives KPIs from s and refreshes department
// utilization in place.
func ComputePerformance(s *State) model.Performance {
	var p model.Performance
	var leadSum model.Millis
	for _, o := range s.Completed {
		p.TotalCompleted++
		switch o.Status {
		case model.OrderCompletedOnTime:
			p.OnTime++
		case model.OrderCompletedLate:
			p.Late++
		}
		leadSum += o.ActualLeadTime
		p.DeliveredValue += o.Value
	}
	p.Cancelled = len(s.Cancelled)
	if p.TotalCompleted > 0 {
		p.OnTimeRate = float64(p.OnTime) / float64(p.TotalCompleted)
		p.AverageLead = leadSum / model.Millis(p.TotalCompleted)
	}

	best := 0.0
	p.Departments = make([]model.DepartmentLoad, 0, len(s.Departments))
	for _, d := range s.Departments {
		d.Utilization = 0
		if s.Clock.Elapsed > 0 {
			d.Utilization = min(1, float64(d.BusyTime)/float64(s.Clock.Elapsed))
		}
		wip := d.WIPCount()
		p.TotalWIP += wip
		p.Departments = append(p.Departments, model.DepartmentLoad{
			DepartmentID: d.ID,
			WIP:          wip,
			Utilization:  d.Utilization,
		})
		if d.Utilization > best {
			best = d.Utilization
			p.BottleneckID = d.ID
		}
	}
	return p
}
