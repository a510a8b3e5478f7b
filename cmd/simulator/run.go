package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/config"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/internal/storage"
	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/model"
	"github.com/signalsfoundry/mto-simulator/timectrl"
)

type runOptions struct {
	configPath string
	levelPath  string
	seed       string
	duration   int
	tick       time.Duration
	manual     bool
	archive    string
	asJSON     bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session to completion as fast as possible",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file")
	f.StringVar(&opts.levelPath, "level", "", "predetermined level file (YAML or JSON)")
	f.StringVar(&opts.seed, "seed", "", "random seed; overrides the config")
	f.IntVar(&opts.duration, "duration", 0, "session length in game minutes; overrides the config")
	f.DurationVar(&opts.tick, "tick", time.Second, "simulated time per step at speed 1")
	f.BoolVar(&opts.manual, "manual", false, "disable automatic admission and dispatch")
	f.StringVar(&opts.archive, "archive", "", "DuckDB file to record the finished run in")
	f.BoolVar(&opts.asJSON, "json", false, "print the final state as JSON")
	return cmd
}

// runResult is what a headless run reports.
type runResult struct {
	SessionID   string            `json:"session_id"`
	Level       string            `json:"level"`
	Steps       int               `json:"steps"`
	Elapsed     model.Millis      `json:"elapsed_ms"`
	Performance model.Performance `json:"performance"`
	Events      int               `json:"events"`
}

func runSession(ctx context.Context, opts runOptions, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.seed != "" {
		cfg.Session.Seed = opts.seed
	}
	if opts.duration > 0 {
		cfg.Session.DurationMinutes = opts.duration
	}
	if opts.manual {
		cfg.Session.ManualMode = true
	}
	log := logging.New(cfg.Log)

	levelName := "generated"
	var sessOpts []sim.SessionOption
	if opts.levelPath != "" {
		lvl, err := readLevel(opts.levelPath)
		if err != nil {
			return err
		}
		levelName = lvl.Name
		sessOpts = append(sessOpts, sim.WithLevel(lvl))
	}
	session, err := sim.NewSession(cfg.Session, kb.DefaultCatalog(), log, sessOpts...)
	if err != nil {
		return err
	}

	final, steps, err := driveToCompletion(ctx, session, opts.tick)
	if err != nil {
		return err
	}

	if opts.archive != "" {
		archive, err := storage.OpenArchive(ctx, opts.archive)
		if err != nil {
			return err
		}
		defer archive.Close()
		if err := archive.RecordRun(ctx, session.ID(), levelName, final, time.Now()); err != nil {
			return err
		}
	}

	res := runResult{
		SessionID:   session.ID(),
		Level:       levelName,
		Steps:       steps,
		Elapsed:     final.Clock.Elapsed,
		Performance: final.Performance,
		Events:      len(final.Events),
	}
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printSummary(out, res)
	return nil
}

// driveToCompletion starts the session and feeds it accelerated ticks until
// it completes or ctx is cancelled.
func driveToCompletion(ctx context.Context, session *sim.Session, tick time.Duration) (*core.State, int, error) {
	if _, err := session.Start(ctx); err != nil {
		return nil, 0, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		steps   int
		stepErr error
	)
	tc := timectrl.NewTimeController(tick, timectrl.Accelerated)
	tc.AddListener(func(delta time.Duration) {
		st, err := session.Tick(ctx, delta)
		if err != nil {
			stepErr = err
			cancel()
			return
		}
		steps++
		if st.Clock.Status == model.SessionCompleted {
			cancel()
		}
	})
	<-tc.Start(ctx)

	if stepErr != nil {
		return nil, steps, stepErr
	}
	final := session.Snapshot()
	if final.Clock.Status != model.SessionCompleted {
		return final, steps, ctx.Err()
	}
	return final, steps, nil
}

func readLevel(path string) (*core.Level, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lvl, err := core.LoadLevel(f)
	if err != nil {
		return nil, err
	}
	if lvl.Name == "" {
		lvl.Name = path
	}
	return lvl, nil
}

func printSummary(out io.Writer, r runResult) {
	p := r.Performance
	fmt.Fprintf(out, "Session %s (%s) finished after %d steps, %.1f game minutes\n", r.SessionID, r.Level, r.Steps, r.Elapsed.Minutes())
	fmt.Fprintf(out, "Completed %d orders: %d on time, %d late, %d cancelled (on-time rate %.0f%%)\n",
		p.TotalCompleted, p.OnTime, p.Late, p.Cancelled, p.OnTimeRate*100)
	fmt.Fprintf(out, "Average lead time %.1f min, delivered value %.2f, bottleneck department %d\n",
		p.AverageLead.Minutes(), p.DeliveredValue, p.BottleneckID)
	fmt.Fprintf(out, "%d events in the feed\n", r.Events)
}
