package core

import "github.com/signalsfoundry/mto-simulator/model"

const (
	atRiskFraction  = 0.8
	fallbackSLASpan = 30 * model.Minute
)

// DueInstant resolves an order's due time: game minutes first, then the
// legacy absolute instant, then a fixed window after creation.
func DueInstant(o *model.Order) model.Millis {
	switch {
	case o.DueGameMinutes != nil:
		return model.MinutesToMillis(*o.DueGameMinutes)
	case o.LegacyDueAt > 0:
		return o.LegacyDueAt
	default:
		return o.CreatedAt + fallbackSLASpan
	}
}

// EvaluateSLA classifies o at now.
func EvaluateSLA(o *model.Order, now model.Millis) model.SLAStatus {
	due := DueInstant(o)
	if now > due {
		return model.SLAOverdue
	}
	window := due - o.CreatedAt
	if window <= 0 {
		return model.SLAAtRisk
	}
	if float64(now-o.CreatedAt)/float64(window) >= atRiskFraction {
		return model.SLAAtRisk
	}
	return model.SLAOnTrack
}
