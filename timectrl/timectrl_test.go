package timectrl

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestIntervalScalesWithSpeed(t *testing.T) {
	tc := NewTimeController(800*time.Millisecond, RealTime)
	for _, tt := range []struct {
		speed int
		want  time.Duration
	}{{1, 800 * time.Millisecond}, {2, 400 * time.Millisecond}, {4, 200 * time.Millisecond}, {8, 100 * time.Millisecond}, {0, 800 * time.Millisecond}} {
		tc.SetSpeed(tt.speed)
		if got := tc.Interval(); got != tt.want {
			t.Fatalf("speed %d: Interval() = %v, want %v", tt.speed, got, tt.want)
		}
	}
}

func TestAcceleratedReportsFixedDelta(t *testing.T) {
	tc := NewTimeController(5*time.Millisecond, Accelerated)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var deltas []time.Duration
	tc.AddListener(func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		deltas = append(deltas, d)
		if len(deltas) == 3 {
			cancel()
		}
	})

	<-tc.Start(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(deltas) < 3 {
		t.Fatalf("ticks = %d, want at least 3", len(deltas))
	}
	for _, d := range deltas {
		if d != 5*time.Millisecond {
			t.Fatalf("delta = %v, want 5ms", d)
		}
	}
}

func TestRealTimeMeasuresWallDelta(t *testing.T) {
	tc := NewTimeController(2*time.Millisecond, RealTime)
	var mu sync.Mutex
	fake := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		fake = fake.Add(250 * time.Millisecond)
		return fake
	}
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan time.Duration, 1)
	tc.AddListener(func(d time.Duration) {
		select {
		case got <- d:
			cancel()
		default:
		}
	})
	<-tc.Start(ctx)
	if d := <-got; d != 250*time.Millisecond {
		t.Fatalf("delta = %v, want 250ms", d)
	}
}

func TestPauseStopsTicks(t *testing.T) {
	tc := NewTimeController(time.Millisecond, Accelerated)
	tc.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var mu sync.Mutex
	ticks := 0
	tc.AddListener(func(time.Duration) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})
	<-tc.Start(ctx)

	mu.Lock()
	defer mu.Unlock()
	if ticks != 0 {
		t.Fatalf("ticks while paused = %d, want 0", ticks)
	}
	if !tc.Paused() {
		t.Fatalf("Paused() = false")
	}
}
