package scorefeed

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeAdapter struct {
	mu     sync.Mutex
	calls  int
	events []types.ScoringEvent
}

func (f *fakeAdapter) FetchEvents(ctx context.Context, marketSlug string) ([]types.ScoringEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.events, nil
}

func TestPollRecordsEventsWithoutDuplication(t *testing.T) {
	adapter := &fakeAdapter{events: []types.ScoringEvent{
		{Team: "A", Period: 1, Clock: "10:00", Description: "3pt", Ts: time.Unix(0, 0)},
	}}
	feed := New(adapter, time.Minute, 100*time.Millisecond, testLogger())

	if err := feed.Poll(context.Background(), "mkt"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if err := feed.Poll(context.Background(), "mkt"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	events := feed.RecentEvents("mkt", time.Unix(0, 0).Add(-time.Hour))
	if len(events) != 1 {
		t.Fatalf("expected one deduplicated event, got %d", len(events))
	}
}

func TestRecentEventsRespectsCutoff(t *testing.T) {
	adapter := &fakeAdapter{events: []types.ScoringEvent{
		{Team: "A", Period: 1, Clock: "10:00", Ts: time.Unix(100, 0)},
	}}
	feed := New(adapter, time.Minute, 100*time.Millisecond, testLogger())
	if err := feed.Poll(context.Background(), "mkt"); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if got := feed.RecentEvents("mkt", time.Unix(200, 0)); len(got) != 0 {
		t.Fatalf("expected no events after cutoff, got %d", len(got))
	}
	if got := feed.RecentEvents("mkt", time.Unix(50, 0)); len(got) != 1 {
		t.Fatalf("expected one event before cutoff, got %d", len(got))
	}
}

func TestBurstPollStopsAfterDuration(t *testing.T) {
	adapter := &fakeAdapter{}
	feed := New(adapter, time.Minute, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	feed.BurstPoll(ctx, "mkt", 100*time.Millisecond)

	adapter.mu.Lock()
	calls := adapter.calls
	adapter.mu.Unlock()
	if calls < 2 {
		t.Fatalf("expected at least 2 polls during the burst window, got %d", calls)
	}
}
