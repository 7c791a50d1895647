// Package persistence periodically snapshots the Trade Engine's
// in-memory state to a single JSON file and can reload it on restart
// (§6 "Persisted state").
//
// Grounded on 0xtitan6-polymarket-mm/internal/store/store.go's
// write-tmp-then-rename JSON pattern, generalized from one file per
// market position to one multi-table file per snapshot: positions,
// cycles, cumulative take-profits, and running stats all land in a
// single atomic write, since the Trade Engine's own state is a single
// in-process dispatcher rather than one store per market.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/engine"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Snapshot is the on-disk shape written by Store.Save and read back by
// Store.Load. It captures everything the Dashboard Adapter's pull
// surface exposes, so a restart can at least report what state existed
// before the process died.
type Snapshot struct {
	WrittenAt       time.Time                    `json:"written_at"`
	OpenPositions   []types.FadePosition         `json:"open_positions"`
	ClosedPositions []types.FadePosition         `json:"closed_positions"`
	Cycles          []types.Cycle                `json:"cycles"`
	TakeProfits     []types.CumulativeTakeProfit `json:"take_profits"`
	Stats           engine.Stats                 `json:"stats"`
}

// Source is the subset of *engine.Engine a Store snapshots from, kept as
// an interface so tests can snapshot a stub instead of a live Engine.
type Source interface {
	OpenPositions() []types.FadePosition
	ClosedPositions() []types.FadePosition
	ActiveCycles() []types.Cycle
	CumulativeTakeProfits() []types.CumulativeTakeProfit
	Stats() engine.Stats
}

var _ Source = (*engine.Engine)(nil)

// Store reads and writes Snapshot to a single path on disk.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open binds a Store to path, creating its parent directory if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persistence: create snapshot dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Save captures src's current state and atomically writes it to disk:
// write to a .tmp file, then rename over the target, so a crash mid-write
// never leaves a corrupt snapshot.
func (s *Store) Save(src Source) error {
	snap := Snapshot{
		WrittenAt:       time.Now().UTC(),
		OpenPositions:   src.OpenPositions(),
		ClosedPositions: src.ClosedPositions(),
		Cycles:          src.ActiveCycles(),
		TakeProfits:     src.CumulativeTakeProfits(),
		Stats:           src.Stats(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("persistence: write snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load reads back the last-written Snapshot. A missing file is not an
// error: it returns the zero Snapshot, matching a first-ever run.
func (s *Store) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("persistence: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("persistence: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Run periodically saves src's state every interval until ctx is
// cancelled. Save errors are logged, not fatal: a missed snapshot isn't
// worth tearing down the engine over.
func (s *Store) Run(ctx context.Context, src Source, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(src); err != nil {
				logger.Warn("snapshot save failed", "err", err)
			}
		}
	}
}
