package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/internal/storage"
	"github.com/signalsfoundry/mto-simulator/model"
	"github.com/signalsfoundry/mto-simulator/timectrl"
)

// runSimLoop drives session ticks from tc and keeps tc's pause state and
// speed in line with the session clock. The returned channel closes once the
// loop has stopped.
func runSimLoop(ctx context.Context, tc *timectrl.TimeController, session *sim.Session, log logging.Logger) <-chan struct{} {
	if log == nil {
		log = logging.Noop()
	}
	tc.AddListener(func(delta time.Duration) {
		_, err := session.Tick(ctx, delta)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrBrokenInvariant):
			// The session already logged the details; stop feeding it.
			if _, perr := session.Pause(ctx); perr != nil {
				log.Error(ctx, "pause after broken invariant", logging.Err(perr))
			}
		default:
			log.Warn(ctx, "tick failed", logging.Err(err))
		}
	})

	syncClock(tc, session.Snapshot())
	unsubscribe := session.Subscribe(func(u sim.Update) {
		syncClock(tc, u.State)
	})

	out := make(chan struct{})
	done := tc.Start(ctx)
	go func() {
		<-done
		unsubscribe()
		close(out)
	}()
	return out
}

func syncClock(tc *timectrl.TimeController, st *core.State) {
	if st == nil {
		return
	}
	if st.Clock.Speed > 0 && st.Clock.Speed != tc.Speed() {
		tc.SetSpeed(st.Clock.Speed)
	}
	running := st.Clock.Status == model.SessionRunning
	switch {
	case running && tc.Paused():
		tc.Resume()
	case !running && !tc.Paused():
		tc.Pause()
	}
}

// runSnapshotLoop saves the session every interval until ctx is done.
func runSnapshotLoop(ctx context.Context, session *sim.Session, store *storage.SnapshotStore, interval time.Duration, log logging.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := store.Save(ctx, session.ID(), session.Snapshot()); err != nil {
					log.Warn(ctx, "periodic snapshot failed", logging.Err(err))
				}
			}
		}
	}()
	return done
}

// runArchiver is the subset of storage.Archive used on completion.
type runArchiver interface {
	RecordRun(ctx context.Context, sessionID, level string, st *core.State, finishedAt time.Time) error
}

// archiveOnCompletion records each run once when it reaches completed. A
// reset or restore arms it again. The returned func unsubscribes.
func archiveOnCompletion(session *sim.Session, archive runArchiver, level string, log logging.Logger) func() error {
	var (
		mu       sync.Mutex
		archived bool
	)
	unsubscribe := session.Subscribe(func(u sim.Update) {
		mu.Lock()
		defer mu.Unlock()
		if u.Reason == "reset" || u.Reason == "restore" {
			archived = false
		}
		if archived || u.State == nil || u.State.Clock.Status != model.SessionCompleted {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := archive.RecordRun(ctx, session.ID(), level, u.State, time.Now()); err != nil {
			log.Error(ctx, "archive run", logging.Err(err))
			return
		}
		archived = true
		log.Info(ctx, "run archived",
			logging.String("level", level),
			logging.Int("completed", u.State.Performance.TotalCompleted),
		)
	})
	return func() error {
		unsubscribe()
		return nil
	}
}
