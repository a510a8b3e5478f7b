package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/signalsfoundry/mto-simulator/core"
)

//go:embed schema/runs.sql
var runsSchema []byte

// Archive records finished runs in DuckDB for later comparison.
type Archive struct {
	db *sqlx.DB
}

// OpenArchive connects to the DuckDB file at path and applies the schema.
// An empty path opens an in-memory database.
func OpenArchive(ctx context.Context, path string) (*Archive, error) {
	db, err := sqlx.ConnectContext(ctx, "duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, string(runsSchema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// RunRecord is one archived session.
type RunRecord struct {
	SessionID       string    `db:"session_id"`
	Seed            string    `db:"seed"`
	Level           string    `db:"level"`
	Config          string    `db:"config"`
	DurationMinutes int       `db:"duration_minutes"`
	ElapsedMillis   int64     `db:"elapsed_ms"`
	TotalCompleted  int       `db:"total_completed"`
	OnTime          int       `db:"on_time"`
	Late            int       `db:"late"`
	Cancelled       int       `db:"cancelled"`
	OnTimeRate      float64   `db:"on_time_rate"`
	AverageLead     int64     `db:"average_lead_ms"`
	DeliveredValue  float64   `db:"delivered_value"`
	BottleneckID    int       `db:"bottleneck_id"`
	FinishedAt      time.Time `db:"finished_at"`
}

// EventRecord is one archived feed entry.
type EventRecord struct {
	SessionID    string `db:"session_id"`
	EventID      string `db:"event_id"`
	Type         string `db:"event_type"`
	Severity     string `db:"severity"`
	Message      string `db:"message"`
	DepartmentID int    `db:"department_id"`
	OrderID      string `db:"order_id"`
	GameTime     int64  `db:"game_time_ms"`
}

// RecordRun stores the final state of a session. Recording the same
// session twice replaces the earlier row.
func (a *Archive) RecordRun(ctx context.Context, sessionID, level string, st *core.State, finishedAt time.Time) error {
	cfg, err := json.Marshal(st.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	perf := st.Performance
	run := RunRecord{
		SessionID:       sessionID,
		Seed:            st.Config.Seed,
		Level:           level,
		Config:          string(cfg),
		DurationMinutes: st.Config.DurationMinutes,
		ElapsedMillis:   int64(st.Clock.Elapsed),
		TotalCompleted:  perf.TotalCompleted,
		OnTime:          perf.OnTime,
		Late:            perf.Late,
		Cancelled:       perf.Cancelled,
		OnTimeRate:      perf.OnTimeRate,
		AverageLead:     int64(perf.AverageLead),
		DeliveredValue:  perf.DeliveredValue,
		BottleneckID:    perf.BottleneckID,
		FinishedAt:      finishedAt.UTC(),
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from run_events where session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from runs where session_id = ?`, sessionID); err != nil {
		return err
	}
	query := `
	insert into runs (
		session_id, seed, level, config, duration_minutes, elapsed_ms,
		total_completed, on_time, late, cancelled, on_time_rate,
		average_lead_ms, delivered_value, bottleneck_id, finished_at
	)
	values (
		:session_id, :seed, :level, :config, :duration_minutes, :elapsed_ms,
		:total_completed, :on_time, :late, :cancelled, :on_time_rate,
		:average_lead_ms, :delivered_value, :bottleneck_id, :finished_at
	)
	`
	if _, err := tx.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, ev := range st.Events {
		rec := EventRecord{
			SessionID:    sessionID,
			EventID:      ev.ID,
			Type:         string(ev.Type),
			Severity:     string(ev.Severity),
			Message:      ev.Message,
			DepartmentID: ev.DepartmentID,
			OrderID:      ev.OrderID,
			GameTime:     int64(ev.Timestamp),
		}
		_, err := tx.NamedExecContext(ctx, `
		insert into run_events (
			session_id, event_id, event_type, severity, message,
			department_id, order_id, game_time_ms
		)
		values (
			:session_id, :event_id, :event_type, :severity, :message,
			:department_id, :order_id, :game_time_ms
		)
		`, rec)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// Runs lists archived runs, newest first.
func (a *Archive) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
	select session_id, seed, level, config, duration_minutes, elapsed_ms,
		total_completed, on_time, late, cancelled, on_time_rate,
		average_lead_ms, delivered_value, bottleneck_id, finished_at
	from runs
	order by finished_at desc
	limit ?
	`
	var runs []RunRecord
	err := a.db.SelectContext(ctx, &runs, query, limit)
	return runs, err
}

// RunEvents returns the archived feed of one run in emission order.
func (a *Archive) RunEvents(ctx context.Context, sessionID string) ([]EventRecord, error) {
	query := `
	select session_id, event_id, event_type, severity, message,
		department_id, order_id, game_time_ms
	from run_events
	where session_id = ?
	order by game_time_ms, event_id
	`
	var events []EventRecord
	err := a.db.SelectContext(ctx, &events, query, sessionID)
	return events, err
}

// SeedSummary aggregates runs that share a seed, which makes policy
// comparisons on identical order streams easy.
type SeedSummary struct {
	Seed          string  `db:"seed"`
	Runs          int     `db:"runs"`
	MeanOnTime    float64 `db:"mean_on_time_rate"`
	BestOnTime    float64 `db:"best_on_time_rate"`
	MeanDelivered float64 `db:"mean_delivered_value"`
}

// SummarizeBySeed groups archived runs by seed.
func (a *Archive) SummarizeBySeed(ctx context.Context) ([]SeedSummary, error) {
	query := `
	select seed,
		count(*) as runs,
		avg(on_time_rate) as mean_on_time_rate,
		max(on_time_rate) as best_on_time_rate,
		avg(delivered_value) as mean_delivered_value
	from runs
	group by seed
	order by seed
	`
	var out []SeedSummary
	err := a.db.SelectContext(ctx, &out, query)
	return out, err
}
