package core

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/mto-simulator/model"
)

// Level is a predetermined scenario: fixed orders released at fixed times
// plus optional department overrides. Durations are normalized to Millis.
type Level struct {
	Name            string
	DurationMinutes int
	Departments     []DepartmentOverride
	Orders          []LevelOrder
}

// DepartmentOverride replaces selected settings of a catalog department.
type DepartmentOverride struct {
	ID           int
	MaxQueueSize int
	Rule         model.DispatchRule
	Operations   []model.Operation
}

// LevelOrder is a scheduled order and its release time.
type LevelOrder struct {
	Order     *model.Order
	ReleaseAt model.Millis
}

// unexported decode shapes; JSON documents decode through the same YAML
// parser.
type levelYAML struct {
	Name               string           `yaml:"name"`
	DurationMinutes    int              `yaml:"duration_minutes"`
	ProcessingTimeUnit string           `yaml:"processing_time_unit"`
	Departments        []departmentYAML `yaml:"departments"`
	Orders             []orderYAML      `yaml:"orders"`
}

type departmentYAML struct {
	ID           int             `yaml:"id"`
	MaxQueueSize int             `yaml:"max_queue_size"`
	PriorityRule string          `yaml:"priority_rule"`
	Operations   []operationYAML `yaml:"operations"`
}

type operationYAML struct {
	Name         string  `yaml:"name"`
	StandardTime float64 `yaml:"standard_time"`
}

type orderYAML struct {
	ID             string   `yaml:"id"`
	CustomerID     string   `yaml:"customer_id"`
	CustomerName   string   `yaml:"customer_name"`
	Priority       string   `yaml:"priority"`
	Value          float64  `yaml:"value"`
	Route          []int    `yaml:"route"`
	ReleaseMinutes float64  `yaml:"release_minutes"`
	DueMinutes     *float64 `yaml:"due_minutes"`
	HalfMultiplier float64  `yaml:"half_multiplier"`
	HalfReason     string   `yaml:"half_reason"`
}

// unitToMillis returns the factor converting a value in unit to Millis.
func unitToMillis(unit string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "ms", "millis", "milliseconds":
		return 1, nil
	case "s", "sec", "seconds":
		return float64(model.Second), nil
	case "m", "min", "minutes":
		return float64(model.Minute), nil
	case "":
		return 0, fmt.Errorf("processing_time_unit is required when operation times are given")
	default:
		return 0, fmt.Errorf("unknown processing_time_unit %q", unit)
	}
}

// LoadLevel decodes a level from YAML or JSON.
func LoadLevel(r io.Reader) (*Level, error) {
	var payload levelYAML
	if err := yaml.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadLevel: decode failed: %w", err)
	}
	if payload.DurationMinutes < 0 {
		return nil, fmt.Errorf("LoadLevel: negative duration_minutes")
	}

	lvl := &Level{Name: payload.Name, DurationMinutes: payload.DurationMinutes}
	for _, d := range payload.Departments {
		ov := DepartmentOverride{ID: d.ID, MaxQueueSize: d.MaxQueueSize}
		if d.PriorityRule != "" {
			rule, err := model.ParseDispatchRule(strings.ToLower(d.PriorityRule))
			if err != nil {
				return nil, fmt.Errorf("LoadLevel: department %d: %w", d.ID, err)
			}
			ov.Rule = rule
		}
		var factor float64
		if len(d.Operations) > 0 {
			f, err := unitToMillis(payload.ProcessingTimeUnit)
			if err != nil {
				return nil, fmt.Errorf("LoadLevel: department %d: %w", d.ID, err)
			}
			factor = f
		}
		for _, op := range d.Operations {
			if op.StandardTime <= 0 {
				return nil, fmt.Errorf("LoadLevel: department %d operation %q needs a positive standard_time", d.ID, op.Name)
			}
			ov.Operations = append(ov.Operations, model.Operation{
				Name:         op.Name,
				StandardTime: model.Millis(math.Max(1, math.Floor(op.StandardTime*factor))),
			})
		}
		lvl.Departments = append(lvl.Departments, ov)
	}

	for i, o := range payload.Orders {
		if o.ID == "" {
			return nil, fmt.Errorf("LoadLevel: order %d has no id", i)
		}
		prio := model.PriorityNormal
		if o.Priority != "" {
			p, err := model.ParsePriority(strings.ToLower(o.Priority))
			if err != nil {
				return nil, fmt.Errorf("LoadLevel: order %s: %w", o.ID, err)
			}
			prio = p
		}
		order := &model.Order{
			ID:               o.ID,
			CustomerID:       o.CustomerID,
			CustomerName:     o.CustomerName,
			Priority:         prio,
			Value:            o.Value,
			Route:            append([]int(nil), o.Route...),
			CurrentStepIndex: -1,
			Status:           model.OrderScheduled,
			SLAStatus:        model.SLAOnTrack,
		}
		if o.DueMinutes != nil {
			due := *o.DueMinutes
			order.DueGameMinutes = &due
		}
		if o.HalfMultiplier > 0 {
			if o.HalfMultiplier >= 1 {
				return nil, fmt.Errorf("LoadLevel: order %s: half_multiplier must be below 1", o.ID)
			}
			reason := o.HalfReason
			if reason == "" {
				reason = HalfOrderReasons[0]
			}
			order.HalfOrder = &model.HalfOrder{Reason: reason, Multiplier: o.HalfMultiplier}
		}
		lvl.Orders = append(lvl.Orders, LevelOrder{
			Order:     order,
			ReleaseAt: model.MinutesToMillis(o.ReleaseMinutes),
		})
	}
	return lvl, nil
}

// ApplyLevel installs lvl into a session still in setup. Order generation is
// switched off and the level's orders are scheduled for release.
func ApplyLevel(prev *State, lvl *Level) (*State, error) {
	if lvl == nil {
		return prev, nil
	}
	if prev.Clock.Status != model.SessionSetup {
		return nil, fmt.Errorf("%w: levels can only be applied during setup", ErrInvalidAction)
	}
	s := prev.Clone()
	s.Config.PredeterminedOrders = true
	if lvl.DurationMinutes > 0 {
		s.Config.DurationMinutes = lvl.DurationMinutes
		s.Clock.Duration = model.Millis(lvl.DurationMinutes) * model.Minute
	}
	for _, ov := range lvl.Departments {
		d, err := s.Department(ov.ID)
		if err != nil {
			return nil, fmt.Errorf("ApplyLevel: %w", err)
		}
		if ov.MaxQueueSize > 0 {
			d.MaxQueueSize = ov.MaxQueueSize
		}
		if ov.Rule != "" {
			d.PriorityRule = ov.Rule
		}
		if len(ov.Operations) > 0 {
			d.Operations = append([]model.Operation(nil), ov.Operations...)
		}
	}
	for _, lo := range lvl.Orders {
		o := lo.Order.Clone()
		if o.CustomerName == "" {
			for _, c := range s.Customers {
				if c.ID == o.CustomerID {
					o.CustomerName = c.Name
					break
				}
			}
		}
		if o.Value == 0 {
			o.Value = baseValuePerStep * float64(len(o.Route)) * o.HalfMultiplier()
		}
		if err := ScheduleOrder(s, o, lo.ReleaseAt); err != nil {
			return nil, fmt.Errorf("ApplyLevel: %w", err)
		}
	}
	s.Performance = ComputePerformance(s)
	return s, nil
}
