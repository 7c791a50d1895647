package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/engine"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

type stubSource struct {
	open   []types.FadePosition
	closed []types.FadePosition
}

func (s stubSource) OpenPositions() []types.FadePosition            { return s.open }
func (s stubSource) ClosedPositions() []types.FadePosition          { return s.closed }
func (s stubSource) ActiveCycles() []types.Cycle                    { return nil }
func (s stubSource) CumulativeTakeProfits() []types.CumulativeTakeProfit { return nil }
func (s stubSource) Stats() engine.Stats                            { return engine.Stats{ClosedTrades: len(s.closed)} }

func TestSaveAndLoadSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	src := stubSource{
		open:   []types.FadePosition{{ID: "pos-1", MarketSlug: "nba-lal-bos"}},
		closed: []types.FadePosition{{ID: "pos-0", MarketSlug: "nba-lal-bos"}},
	}
	if err := store.Save(src); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.OpenPositions) != 1 || snap.OpenPositions[0].ID != "pos-1" {
		t.Fatalf("unexpected open positions: %+v", snap.OpenPositions)
	}
	if snap.Stats.ClosedTrades != 1 {
		t.Fatalf("unexpected stats: %+v", snap.Stats)
	}
}

func TestLoadMissingSnapshotReturnsZeroValue(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.OpenPositions) != 0 {
		t.Fatalf("expected zero-value snapshot, got %+v", snap)
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := store.Save(stubSource{open: []types.FadePosition{{ID: "a"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(stubSource{open: []types.FadePosition{{ID: "b"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.OpenPositions) != 1 || snap.OpenPositions[0].ID != "b" {
		t.Fatalf("expected overwritten snapshot with id b, got %+v", snap.OpenPositions)
	}
}
