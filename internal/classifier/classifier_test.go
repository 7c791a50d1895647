package classifier

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/scorefeed"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type staticAdapter struct {
	events []types.ScoringEvent
}

func (a staticAdapter) FetchEvents(ctx context.Context, marketSlug string) ([]types.ScoringEvent, error) {
	return a.events, nil
}

func testCfg() Config {
	return Config{
		ClassificationWindow: 40 * time.Millisecond,
		EventLookback:        15 * time.Second,
		RecentShockWindow:    60 * time.Second,
		RunThreshold:         2,
	}
}

func testShock(marketSlug string, ts time.Time) types.Shock {
	return types.Shock{
		ID:         "shock-" + ts.String(),
		TokenID:    "tok",
		MarketSlug: marketSlug,
		Direction:  types.DirUp,
		Magnitude:  decimal.NewFromFloat(0.05),
		Ts:         ts,
	}
}

func TestClassifySingleEvent(t *testing.T) {
	ts := time.Unix(1000, 0)
	adapter := staticAdapter{events: []types.ScoringEvent{
		{Team: "A", Period: 2, Ts: ts.Add(2 * time.Second)},
	}}
	feed := scorefeed.New(adapter, time.Minute, 5*time.Millisecond, testLogger())
	c := New(testCfg(), feed, testLogger())

	result := c.Classify(context.Background(), testShock("mkt", ts))
	if result.Classification != types.ClassSingleEvent {
		t.Fatalf("expected single_event, got %s", result.Classification)
	}
	if result.ShockTeam != "A" {
		t.Fatalf("expected shockTeam=A, got %q", result.ShockTeam)
	}
}

func TestClassifyNoiseWhenNoEvent(t *testing.T) {
	ts := time.Unix(2000, 0)
	feed := scorefeed.New(staticAdapter{}, time.Minute, 5*time.Millisecond, testLogger())
	c := New(testCfg(), feed, testLogger())

	result := c.Classify(context.Background(), testShock("mkt", ts))
	if result.Classification != types.ClassNoise {
		t.Fatalf("expected noise, got %s", result.Classification)
	}
}

func TestClassifyScoringRunWhenManyRecentShocks(t *testing.T) {
	ts := time.Unix(3000, 0)
	adapter := staticAdapter{events: []types.ScoringEvent{
		{Team: "B", Period: 1, Ts: ts},
	}}
	feed := scorefeed.New(adapter, time.Minute, 5*time.Millisecond, testLogger())
	c := New(testCfg(), feed, testLogger())

	// Three prior shocks on the same market within the 60s window bring the
	// deque to RunThreshold+1; the shock under test makes it four.
	for i := 0; i < 3; i++ {
		c.recordShock(testShock("mkt", ts.Add(time.Duration(-i-1)*time.Second)))
	}

	result := c.Classify(context.Background(), testShock("mkt", ts))
	if result.Classification != types.ClassScoringRun {
		t.Fatalf("expected scoring_run, got %s", result.Classification)
	}
}

func TestClassifyUnclassifiedWhenMultipleEventsButFewShocks(t *testing.T) {
	ts := time.Unix(4000, 0)
	adapter := staticAdapter{events: []types.ScoringEvent{
		{Team: "A", Period: 1, Clock: "1", Ts: ts},
		{Team: "A", Period: 1, Clock: "2", Ts: ts.Add(time.Second)},
	}}
	feed := scorefeed.New(adapter, time.Minute, 5*time.Millisecond, testLogger())
	c := New(testCfg(), feed, testLogger())

	result := c.Classify(context.Background(), testShock("mkt", ts))
	if result.Classification != types.ClassUnclassified {
		t.Fatalf("expected unclassified, got %s", result.Classification)
	}
}

func TestRecentShocksDequeEvictsOldEntries(t *testing.T) {
	ts := time.Unix(5000, 0)
	feed := scorefeed.New(staticAdapter{}, time.Minute, 5*time.Millisecond, testLogger())
	c := New(testCfg(), feed, testLogger())

	c.recordShock(testShock("mkt", ts.Add(-90*time.Second))) // older than 60s window, evicted
	count := c.recordShock(testShock("mkt", ts))
	if count != 1 {
		t.Fatalf("expected stale shock to be evicted, deque length %d", count)
	}
}
