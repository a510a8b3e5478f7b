package model

import "fmt"

// SessionStatus is the lifecycle of a simulation session.
type SessionStatus string

const (
	SessionSetup     SessionStatus = "setup"
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// GenerationRate selects how often new orders arrive.
type GenerationRate string

const (
	RateLow    GenerationRate = "low"
	RateMedium GenerationRate = "medium"
	RateHigh   GenerationRate = "high"
)

// Complexity selects route lengths.
type Complexity string

const (
	ComplexityBeginner     Complexity = "beginner"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
)

// AllowedSpeeds are the supported speed multipliers.
var AllowedSpeeds = []int{1, 2, 4, 8}

// SessionConfig is the player-facing configuration of a session.
type SessionConfig struct {
	DurationMinutes     int            `json:"duration_minutes" mapstructure:"duration_minutes"`
	GenerationRate      GenerationRate `json:"generation_rate" mapstructure:"generation_rate"`
	Complexity          Complexity     `json:"complexity" mapstructure:"complexity"`
	Seed                string         `json:"seed" mapstructure:"seed"`
	EventsEnabled       bool           `json:"events_enabled" mapstructure:"events_enabled"`
	ManualMode          bool           `json:"manual_mode" mapstructure:"manual_mode"`
	AdvancedRouting     bool           `json:"advanced_routing" mapstructure:"advanced_routing"`
	Speed               int            `json:"speed" mapstructure:"speed"`
	PredeterminedOrders bool           `json:"predetermined_orders" mapstructure:"predetermined_orders"`
}

// DefaultSessionConfig returns a 15 minute beginner session.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DurationMinutes: 15,
		GenerationRate:  RateMedium,
		Complexity:      ComplexityBeginner,
		EventsEnabled:   true,
		Speed:           1,
	}
}

// Validate checks enum fields and bounds.
func (c SessionConfig) Validate() error {
	if c.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive, got %d", c.DurationMinutes)
	}
	switch c.GenerationRate {
	case RateLow, RateMedium, RateHigh:
	default:
		return fmt.Errorf("unknown generation rate %q", c.GenerationRate)
	}
	switch c.Complexity {
	case ComplexityBeginner, ComplexityIntermediate, ComplexityAdvanced:
	default:
		return fmt.Errorf("unknown complexity %q", c.Complexity)
	}
	if !ValidSpeed(c.Speed) {
		return fmt.Errorf("speed must be one of %v, got %d", AllowedSpeeds, c.Speed)
	}
	return nil
}

// ValidSpeed reports whether s is an allowed speed multiplier.
func ValidSpeed(s int) bool {
	for _, v := range AllowedSpeeds {
		if v == s {
			return true
		}
	}
	return false
}

// Clock is the logical session clock.
type Clock struct {
	Status   SessionStatus `json:"status"`
	Elapsed  Millis        `json:"elapsed"`
	Duration Millis        `json:"duration"`
	Speed    int           `json:"speed"`
}

// Remaining returns the simulated time left, never negative.
func (c Clock) Remaining() Millis {
	if c.Elapsed >= c.Duration {
		return 0
	}
	return c.Duration - c.Elapsed
}
