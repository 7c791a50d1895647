package paper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/stream"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bookWith(bid, ask string) *stream.Book {
	b := stream.NewBook()
	b.Update(types.BookSnapshot{
		TokenID: "tok-1",
		Bids:    []types.PriceLevel{{Price: decimal.RequireFromString(bid), Size: decimal.NewFromInt(500)}},
		Asks:    []types.PriceLevel{{Price: decimal.RequireFromString(ask), Size: decimal.NewFromInt(500)}},
	})
	return b
}

func TestPlaceOrderFillsImmediatelyWhenCrossed(t *testing.T) {
	book := bookWith("0.50", "0.52")
	sim := NewSimulator(Config{InitialBalanceUSDC: 1000, FeeBps: 10, SlippageBps: 0}, book, testLogger())

	orderID, err := sim.PlaceOrder(context.Background(), "tok-1", types.SELL, types.GTC, decimal.NewFromFloat(0.48), decimal.NewFromInt(10), false)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	select {
	case fill := <-sim.Fills():
		if fill.OrderID != orderID {
			t.Fatalf("expected fill for %s, got %s", orderID, fill.OrderID)
		}
		if fill.Stage != types.StageConfirmed {
			t.Fatalf("expected CONFIRMED stage, got %s", fill.Stage)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an immediate fill, got none")
	}

	snap := sim.Snapshot()
	if snap.TotalTrades != 1 {
		t.Fatalf("expected 1 trade recorded, got %d", snap.TotalTrades)
	}
	if snap.FeesPaidUSDC <= 0 {
		t.Fatal("expected a positive fee charged")
	}
}

func TestPlaceOrderRestsUntilBookCrosses(t *testing.T) {
	book := bookWith("0.40", "0.42")
	sim := NewSimulator(Config{InitialBalanceUSDC: 1000, FeeBps: 0, SlippageBps: 0}, book, testLogger())

	orderID, err := sim.PlaceOrder(context.Background(), "tok-1", types.SELL, types.GTC, decimal.NewFromFloat(0.50), decimal.NewFromInt(10), false)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	select {
	case <-sim.Fills():
		t.Fatal("expected the order to rest, not fill, against a bid below its price")
	case <-time.After(300 * time.Millisecond):
	}

	book.Update(types.BookSnapshot{
		TokenID: "tok-1",
		Bids:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.51), Size: decimal.NewFromInt(500)}},
		Asks:    []types.PriceLevel{{Price: decimal.NewFromFloat(0.53), Size: decimal.NewFromInt(500)}},
	})

	select {
	case fill := <-sim.Fills():
		if fill.OrderID != orderID {
			t.Fatalf("expected fill for %s, got %s", orderID, fill.OrderID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the resting order to fill once the book crossed")
	}
	sim.Wait()
}

func TestCancelOrderStopsWatcherAndEmitsUpdate(t *testing.T) {
	book := bookWith("0.40", "0.42")
	sim := NewSimulator(Config{InitialBalanceUSDC: 1000}, book, testLogger())

	orderID, err := sim.PlaceOrder(context.Background(), "tok-1", types.SELL, types.GTC, decimal.NewFromFloat(0.60), decimal.NewFromInt(10), false)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if err := sim.CancelOrder(context.Background(), orderID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	select {
	case upd := <-sim.Updates():
		if upd.OrderID != orderID || upd.Type != types.OrderEventCancellation {
			t.Fatalf("unexpected update: %+v", upd)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a cancellation update")
	}

	if err := sim.CancelOrder(context.Background(), orderID); err == nil {
		t.Fatal("expected cancelling an already-cancelled order to fail")
	}
	sim.Wait()
}

func TestPlaceOrderRejectsNonPositiveSize(t *testing.T) {
	book := bookWith("0.50", "0.52")
	sim := NewSimulator(Config{InitialBalanceUSDC: 1000}, book, testLogger())

	if _, err := sim.PlaceOrder(context.Background(), "tok-1", types.SELL, types.GTC, decimal.NewFromFloat(0.50), decimal.Zero, false); err == nil {
		t.Fatal("expected a zero-size order to be rejected")
	}
}
