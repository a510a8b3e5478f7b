// Package storage persists simulation snapshots and archives finished runs.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/model"
)

// FreshnessWindow is how long a saved snapshot may be restored.
const FreshnessWindow = time.Hour

var (
	// ErrSnapshotNotFound is returned when no snapshot exists for a session.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotStale is returned when the snapshot is older than the
	// freshness window.
	ErrSnapshotStale = errors.New("snapshot is stale")
)

// Snapshot is the persisted form of a session.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	GameState *core.State       `json:"game_state"`
	Orders    []*model.Order    `json:"orders"`
	Customers []model.Customer  `json:"customers"`
	Metrics   model.Performance `json:"metrics"`
	Timestamp time.Time         `json:"timestamp"`
}

// SnapshotStore keeps recent snapshots in memory and, when dir is set,
// mirrors them to one JSON file per session so they survive restarts.
type SnapshotStore struct {
	cache *cache.Cache
	dir   string
	now   func() time.Time
	log   logging.Logger
}

// SnapshotStoreOption configures a SnapshotStore.
type SnapshotStoreOption func(*SnapshotStore)

// WithNow overrides the clock used for timestamps and freshness checks.
func WithNow(now func() time.Time) SnapshotStoreOption {
	return func(s *SnapshotStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSnapshotStore returns a store. An empty dir keeps snapshots in memory
// only.
func NewSnapshotStore(dir string, log logging.Logger, opts ...SnapshotStoreOption) *SnapshotStore {
	if log == nil {
		log = logging.Noop()
	}
	s := &SnapshotStore{
		cache: cache.New(FreshnessWindow, 10*time.Minute),
		dir:   dir,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save records st under sessionID.
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, st *core.State) (Snapshot, error) {
	if sessionID == "" || st == nil {
		return Snapshot{}, errors.New("save snapshot: session id and state are required")
	}
	snap := Snapshot{
		SessionID: sessionID,
		GameState: st,
		Orders:    st.AllOrders(),
		Customers: st.Customers,
		Metrics:   st.Performance,
		Timestamp: s.now().UTC(),
	}
	s.cache.SetDefault(sessionID, snap)

	if s.dir != "" {
		if err := s.writeFile(snap); err != nil {
			return Snapshot{}, err
		}
	}
	s.log.Debug(ctx, "snapshot saved",
		logging.String("session_id", sessionID),
		logging.Int("elapsed_ms", int(st.Clock.Elapsed)),
	)
	return snap, nil
}

// Load returns the state saved for sessionID if it is still fresh.
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*core.State, error) {
	snap, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.GameState, nil
}

// Get returns the full snapshot saved for sessionID if it is still fresh.
func (s *SnapshotStore) Get(ctx context.Context, sessionID string) (Snapshot, error) {
	if v, ok := s.cache.Get(sessionID); ok {
		snap := v.(Snapshot)
		if err := s.checkFresh(snap); err != nil {
			s.cache.Delete(sessionID)
			return Snapshot{}, err
		}
		return snap, nil
	}
	if s.dir == "" {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}

	snap, err := s.readFile(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.checkFresh(snap); err != nil {
		return Snapshot{}, err
	}
	remaining := FreshnessWindow - s.now().Sub(snap.Timestamp)
	s.cache.Set(sessionID, snap, remaining)
	s.log.Debug(ctx, "snapshot loaded from disk", logging.String("session_id", sessionID))
	return snap, nil
}

// Latest returns the freshest snapshot on disk or in memory, used to resume
// after a restart when the previous session id is unknown.
func (s *SnapshotStore) Latest(ctx context.Context) (Snapshot, error) {
	var best Snapshot
	for id := range s.cache.Items() {
		if snap, err := s.Get(ctx, id); err == nil && snap.Timestamp.After(best.Timestamp) {
			best = snap
		}
	}
	if s.dir != "" {
		matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
		if err != nil {
			return Snapshot{}, err
		}
		for _, m := range matches {
			id := trimExt(filepath.Base(m))
			if snap, err := s.Get(ctx, id); err == nil && snap.Timestamp.After(best.Timestamp) {
				best = snap
			}
		}
	}
	if best.GameState == nil {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return best, nil
}

// Delete forgets the snapshot for sessionID.
func (s *SnapshotStore) Delete(sessionID string) error {
	s.cache.Delete(sessionID)
	if s.dir == "" {
		return nil
	}
	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *SnapshotStore) checkFresh(snap Snapshot) error {
	if age := s.now().Sub(snap.Timestamp); age > FreshnessWindow {
		return fmt.Errorf("%w: %s saved %s ago", ErrSnapshotStale, snap.SessionID, age.Round(time.Second))
	}
	return nil
}

func (s *SnapshotStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *SnapshotStore) writeFile(snap Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, snap.SessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(snap.SessionID))
}

func (s *SnapshotStore) readFile(sessionID string) (Snapshot, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	if snap.GameState == nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: missing game_state", sessionID)
	}
	return snap, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
