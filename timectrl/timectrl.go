package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController produces step deltas.
type Mode int

const (
	// RealTime fires every Tick/speed of wall-clock time and reports the
	// measured wall delta since the previous tick.
	RealTime Mode = iota
	// Accelerated fires as quickly as the loop can run, reporting a fixed
	// delta of Tick each time.
	Accelerated
)

// TimeController drives simulation steps and notifies registered listeners
// with the wall-clock delta each step covers.
type TimeController struct {
	mu    sync.Mutex
	Tick  time.Duration
	Mode  Mode
	speed int

	paused    bool
	listeners []func(delta time.Duration)
	wake      chan struct{}

	// now is swapped in tests.
	now func() time.Time
}

// NewTimeController constructs a controller at speed 1.
func NewTimeController(tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &TimeController{
		Tick:  tick,
		Mode:  mode,
		speed: 1,
		wake:  make(chan struct{}, 1),
		now:   time.Now,
	}
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(delta time.Duration)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// SetSpeed changes the speed multiplier. Higher speeds shorten the wall
// interval between ticks. Values below 1 are clamped to 1.
func (tc *TimeController) SetSpeed(speed int) {
	if speed < 1 {
		speed = 1
	}
	tc.mu.Lock()
	tc.speed = speed
	tc.mu.Unlock()
	tc.signal()
}

// Speed returns the current multiplier.
func (tc *TimeController) Speed() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.speed
}

// Interval is the wall-clock time between ticks at the current speed.
func (tc *TimeController) Interval() time.Duration {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.Tick / time.Duration(tc.speed)
}

// Pause stops ticks until Resume.
func (tc *TimeController) Pause() {
	tc.mu.Lock()
	tc.paused = true
	tc.mu.Unlock()
	tc.signal()
}

// Resume restarts ticks. Time spent paused is not replayed.
func (tc *TimeController) Resume() {
	tc.mu.Lock()
	tc.paused = false
	tc.mu.Unlock()
	tc.signal()
}

// Paused reports whether ticks are suspended.
func (tc *TimeController) Paused() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.paused
}

func (tc *TimeController) signal() {
	select {
	case tc.wake <- struct{}{}:
	default:
	}
}

// Start runs the tick loop in a separate goroutine until ctx is cancelled.
// It returns a channel that is closed when the loop exits.
func (tc *TimeController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		last := tc.now()
		for {
			if tc.Paused() {
				select {
				case <-ctx.Done():
					return
				case <-tc.wake:
				}
				last = tc.now()
				continue
			}

			if tc.Mode == Accelerated {
				select {
				case <-ctx.Done():
					return
				default:
				}
				tc.fire(tc.Tick)
				continue
			}

			timer := time.NewTimer(tc.Interval())
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-tc.wake:
				// Speed or pause changed; recompute the interval.
				timer.Stop()
				continue
			case <-timer.C:
			}
			now := tc.now()
			delta := now.Sub(last)
			last = now
			tc.fire(delta)
		}
	}()
	return done
}

func (tc *TimeController) fire(delta time.Duration) {
	tc.mu.Lock()
	listeners := append([]func(time.Duration){}, tc.listeners...)
	tc.mu.Unlock()
	for _, fn := range listeners {
		fn(delta)
	}
}
