package model

import (
	"math"
	"time"
)

// Millis is a simulated duration or instant expressed in milliseconds since
// the session started. All engine durations use it.
type Millis int64

const (
	Millisecond Millis = 1
	Second             = 1000 * Millisecond
	Minute             = 60 * Second
)

// MinutesToMillis converts fractional game minutes to Millis, flooring.
func MinutesToMillis(minutes float64) Millis {
	return Millis(math.Floor(minutes * float64(Minute)))
}

// FromDuration converts a wall-clock duration to Millis.
func FromDuration(d time.Duration) Millis { return Millis(d / time.Millisecond) }

// Duration returns m as a time.Duration.
func (m Millis) Duration() time.Duration { return time.Duration(m) * time.Millisecond }

// Minutes returns m in fractional minutes.
func (m Millis) Minutes() float64 { return float64(m) / float64(Minute) }

// Seconds returns m in fractional seconds.
func (m Millis) Seconds() float64 { return float64(m) / float64(Second) }
