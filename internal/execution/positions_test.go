package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

func TestApplyEntryFillComputesTargetPrice(t *testing.T) {
	p := NewPositionBook()
	tp := p.ApplyEntryFill("cycle1", "heldTok", decimal.NewFromFloat(0.58), decimal.NewFromInt(5), decimal.NewFromFloat(0.04))
	// target = (1 - 0.58) + 0.04 = 0.46
	want := decimal.NewFromFloat(0.46)
	if !tp.TPPrice.Equal(want) {
		t.Fatalf("expected TPPrice=%s, got %s", want, tp.TPPrice)
	}
	if tp.Status != types.TPPartial {
		t.Fatalf("expected PARTIAL after first fill, got %s", tp.Status)
	}
}

func TestApplyEntryFillBlendsSizeWeighted(t *testing.T) {
	p := NewPositionBook()
	p.ApplyEntryFill("cycle1", "heldTok", decimal.NewFromFloat(0.58), decimal.NewFromInt(5), decimal.NewFromFloat(0.04))
	// second fill: target = (1-0.61)+0.04 = 0.43, shares=10
	tp := p.ApplyEntryFill("cycle1", "heldTok", decimal.NewFromFloat(0.61), decimal.NewFromInt(10), decimal.NewFromFloat(0.04))
	// weighted = (0.46*5 + 0.43*10) / 15 = (2.3+4.3)/15 = 0.44
	want := decimal.NewFromFloat(0.44)
	if !tp.TPPrice.Equal(want) {
		t.Fatalf("expected blended TPPrice=%s, got %s", want, tp.TPPrice)
	}
	if !tp.TotalEntryShares.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected total entry shares=15, got %s", tp.TotalEntryShares)
	}
}

func TestApplyEntryFillCapsAtNinetyNine(t *testing.T) {
	p := NewPositionBook()
	// fillPrice near zero would otherwise push target above 0.99
	tp := p.ApplyEntryFill("cycle1", "heldTok", decimal.NewFromFloat(0.01), decimal.NewFromInt(5), decimal.NewFromFloat(0.50))
	if !tp.TPPrice.Equal(tpCap) {
		t.Fatalf("expected target capped at 0.99, got %s", tp.TPPrice)
	}
}

func TestExitPriceIsBidPlusOneTick(t *testing.T) {
	got := ExitPrice(decimal.NewFromFloat(0.47))
	want := decimal.NewFromFloat(0.48)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestTransitionRejectsFromNonOpen(t *testing.T) {
	p := NewPositionBook()
	p.OpenPosition(types.FadePosition{ID: "pos1", SoldShares: decimal.NewFromInt(5)})
	if _, err := p.Transition("pos1", types.PositionTakeProfit); err != nil {
		t.Fatalf("first transition should succeed: %v", err)
	}
	if _, err := p.Transition("pos1", types.PositionEventExit); err == nil {
		t.Fatal("expected transition from a non-OPEN status to be rejected")
	}
}

func TestFinalizeCloseComputesRealizedPnl(t *testing.T) {
	p := NewPositionBook()
	p.OpenPosition(types.FadePosition{
		ID:         "pos1",
		SoldPrice:  decimal.NewFromFloat(0.58),
		SoldShares: decimal.NewFromInt(5),
		HeldShares: decimal.NewFromInt(5),
	})
	pos, err := p.FinalizeClose("pos1", decimal.NewFromFloat(0.48), time.Now())
	if err != nil {
		t.Fatalf("FinalizeClose: %v", err)
	}
	// totalProceeds = 5*0.58 + 5*0.48 = 5.30; splitCost = soldShares = 5
	// realizedPnl = 5.30 - 5 = 0.30
	want := decimal.NewFromFloat(0.30)
	if !pos.RealizedPnl.Equal(want) {
		t.Fatalf("expected PnL=%s, got %s", want, pos.RealizedPnl)
	}
	if pos.Status != types.PositionClosed {
		t.Fatalf("expected CLOSED, got %s", pos.Status)
	}
}
