package core

import (
	"cmp"
	"slices"

	"github.com/signalsfoundry/mto-simulator/model"
)

// SortQueue returns queue ordered by rule. The input slice is not modified
// and equal keys keep their queue order.
func SortQueue(queue []*model.Order, rule model.DispatchRule) []*model.Order {
	res := slices.Clone(queue)
	switch rule {
	case model.RuleEDD:
		slices.SortStableFunc(res, func(a, b *model.Order) int {
			if c := cmp.Compare(DueInstant(a), DueInstant(b)); c != 0 {
				return c
			}
			return cmp.Compare(b.Priority.Rank(), a.Priority.Rank())
		})
	case model.RuleSPT:
		slices.SortStableFunc(res, func(a, b *model.Order) int {
			if c := cmp.Compare(sptKey(a), sptKey(b)); c != 0 {
				return c
			}
			return cmp.Compare(b.Priority.Rank(), a.Priority.Rank())
		})
	default:
		slices.SortStableFunc(res, func(a, b *model.Order) int {
			return cmp.Compare(a.CreatedAt, b.CreatedAt)
		})
	}
	return res
}

func sptKey(o *model.Order) model.Millis {
	if o.ProcessingTime <= 0 {
		return defaultSPTTime
	}
	return o.ProcessingTime
}

// NextDispatchable returns the first order the rule would dispatch, skipping
// held orders. It returns nil when nothing is eligible.
func NextDispatchable(d *model.Department) *model.Order {
	for _, o := range SortQueue(d.Queue, d.PriorityRule) {
		if o.Status != model.OrderOnHold {
			return o
		}
	}
	return nil
}
