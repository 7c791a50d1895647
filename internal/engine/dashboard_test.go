package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/classifier"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

func TestRecentShocksAndSessionLogRing(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	market := testMarket()

	e.book.Update(types.BookSnapshot{
		TokenID: "tok-lal",
		Bids:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.55), Size: decimal.NewFromInt(100)}},
		Asks:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.58), Size: decimal.NewFromInt(100)}},
	})

	e.shocks.push(types.Shock{ID: "shock-1", TokenID: "tok-lal", MarketSlug: market.Slug, Ts: time.Now()})
	e.shocks.push(types.Shock{ID: "shock-2", TokenID: "tok-lal", MarketSlug: market.Slug, Ts: time.Now()})
	e.logEvent("test event %d", 1)

	recent := e.RecentShocks(1)
	if len(recent) != 1 || recent[0].ID != "shock-2" {
		t.Fatalf("expected most recent shock first, got %+v", recent)
	}

	log := e.SessionLog(10)
	if len(log) == 0 || log[0].Message != "test event 1" {
		t.Fatalf("expected session log entry, got %+v", log)
	}
}

func TestStatsSummarizesClosedPositions(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	market := testMarket()
	shock := types.Shock{ID: "shock-1", TokenID: "tok-lal", MarketSlug: market.Slug, PostPrice: decimal.NewFromFloat(0.58)}
	result := classifier.Result{LatencyMs: 100}
	if err := e.tryEnter(context.Background(), market, shock, result); err != nil {
		t.Fatalf("entry: %v", err)
	}
	e.handleFill(context.Background(), types.OrderFill{
		OrderID: "order-1", Stage: types.StageConfirmed,
		Price: decimal.NewFromFloat(0.58), Shares: decimal.NewFromInt(5), Side: types.SELL, Ts: time.Now(),
	})
	e.book.Update(types.BookSnapshot{
		TokenID: "tok-bos",
		Bids:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromInt(100)}},
	})
	e.watchPositions(context.Background())
	e.handleFill(context.Background(), types.OrderFill{
		OrderID: "order-4", Stage: types.StageConfirmed,
		Price: decimal.NewFromFloat(0.51), Shares: decimal.NewFromInt(5), Side: types.SELL, Ts: time.Now(),
	})

	stats := e.Stats()
	if stats.ClosedTrades != 1 {
		t.Fatalf("expected 1 closed trade, got %d", stats.ClosedTrades)
	}
	closed := e.ClosedPositions()
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed position from ClosedPositions, got %d", len(closed))
	}
}

func TestForceExitClosesOpenPosition(t *testing.T) {
	e, venue, _, _ := newTestEngine(t)
	market := testMarket()
	shock := types.Shock{ID: "shock-1", TokenID: "tok-lal", MarketSlug: market.Slug, PostPrice: decimal.NewFromFloat(0.58)}
	result := classifier.Result{LatencyMs: 100}
	e.tryEnter(context.Background(), market, shock, result)
	e.handleFill(context.Background(), types.OrderFill{
		OrderID: "order-1", Stage: types.StageConfirmed,
		Price: decimal.NewFromFloat(0.58), Shares: decimal.NewFromInt(5), Side: types.SELL, Ts: time.Now(),
	})
	e.book.Update(types.BookSnapshot{
		TokenID: "tok-bos",
		Bids:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.40), Size: decimal.NewFromInt(100)}},
	})

	open := e.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("expected 1 open position before force-sell, got %d", len(open))
	}

	placedBefore := len(venue.placed)
	if err := e.ForceExit(context.Background(), open[0].ID); err != nil {
		t.Fatalf("ForceExit: %v", err)
	}
	if len(venue.placed) != placedBefore+1 {
		t.Fatal("expected ForceExit to place an exit order")
	}
	if len(e.OpenPositions()) != 0 {
		t.Fatal("expected position to leave OPEN status on force-sell")
	}
}

func TestForceExitRejectsUnknownPosition(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	if err := e.ForceExit(context.Background(), "no-such-position"); err == nil {
		t.Fatal("expected an error for an unknown position")
	}
}

func TestForceEntryRoutesThroughAdmissionGate(t *testing.T) {
	e, venue, _, _ := newTestEngine(t)
	e.book.Update(types.BookSnapshot{
		TokenID: "tok-lal",
		Bids:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.55), Size: decimal.NewFromInt(100)}},
		Asks:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.58), Size: decimal.NewFromInt(100)}},
	})

	if err := e.ForceEntry(context.Background(), "nba-lal-bos", "tok-lal"); err != nil {
		t.Fatalf("ForceEntry: %v", err)
	}
	if len(venue.placed) != 3 {
		t.Fatalf("expected a full ladder placed by ForceEntry, got %d", len(venue.placed))
	}
}

func TestForceEntryRejectsUnknownMarket(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	if err := e.ForceEntry(context.Background(), "unknown-slug", "tok-x"); err == nil {
		t.Fatal("expected an error for an unknown market")
	}
}
