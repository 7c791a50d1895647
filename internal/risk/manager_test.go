package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

type fakeCycles struct {
	perMarket int
	global    int
}

func (f fakeCycles) ActiveCyclesForMarket(string) int { return f.perMarket }
func (f fakeCycles) ActiveCyclesGlobal() int          { return f.global }

func baseInput(cycles CycleCounter) AdmissionInput {
	return AdmissionInput{
		MarketSlug:        "nba-lal-bos",
		MarketState:       types.MarketActive,
		FreeInventory:     decimal.NewFromInt(1000),
		LadderNotional:    decimal.NewFromInt(35),
		ClassificationAge: 100 * time.Millisecond,
		Cycles:            cycles,
	}
}

func TestAllowPassesWhenEveryCheckClears(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 10, MaxClassifyMs: 500})
	if err := m.Allow(baseInput(fakeCycles{})); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestBlockOnMaxCyclesPerMarket(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 10, MaxClassifyMs: 500})
	if err := m.Allow(baseInput(fakeCycles{perMarket: 2})); err == nil {
		t.Fatal("expected block at maxCyclesPerMarket")
	}
}

func TestBlockOnMaxGlobalCycles(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 3, MaxClassifyMs: 500})
	if err := m.Allow(baseInput(fakeCycles{global: 3})); err == nil {
		t.Fatal("expected block at maxGlobalCycles")
	}
}

func TestBlockOnInsufficientFreeInventory(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 10, MaxClassifyMs: 500})
	in := baseInput(fakeCycles{})
	in.FreeInventory = decimal.NewFromInt(10)
	if err := m.Allow(in); err == nil {
		t.Fatal("expected block on insufficient free inventory")
	}
}

func TestBlockOnMarketNotActive(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 10, MaxClassifyMs: 500})
	in := baseInput(fakeCycles{})
	in.MarketState = types.MarketSettled
	if err := m.Allow(in); err == nil {
		t.Fatal("expected block on inactive market")
	}
}

func TestBlockOnStaleClassification(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 10, MaxClassifyMs: 500})
	in := baseInput(fakeCycles{})
	in.ClassificationAge = time.Second
	if err := m.Allow(in); err == nil {
		t.Fatal("expected block on stale classification")
	}
}

func TestEmergencyStopBlocksAdmission(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 10, MaxClassifyMs: 500})
	m.SetEmergencyStop(true)
	if err := m.Allow(baseInput(fakeCycles{})); err == nil {
		t.Fatal("expected block on emergency stop")
	}
	m.SetEmergencyStop(false)
	if err := m.Allow(baseInput(fakeCycles{})); err != nil {
		t.Fatalf("expected allow after clearing emergency stop, got %v", err)
	}
}

func TestChainFatalBlocksAdmissionButDoesNotTouchResting(t *testing.T) {
	m := New(Config{MaxCyclesPerMarket: 2, MaxGlobalCycles: 10, MaxClassifyMs: 500})
	m.SetChainFatal(true)
	if err := m.Allow(baseInput(fakeCycles{})); err == nil {
		t.Fatal("expected block on CHAIN_FATAL")
	}
	if !m.ChainFatal() {
		t.Fatal("expected ChainFatal() to report true")
	}
}

func TestConsecutiveLossesTripCooldown(t *testing.T) {
	m := New(Config{
		MaxCyclesPerMarket:      2,
		MaxGlobalCycles:         10,
		MaxClassifyMs:           500,
		MaxConsecutiveLosses:    2,
		ConsecutiveLossCooldown: time.Minute,
	})
	if tripped := m.RecordTradeResult(decimal.NewFromFloat(-1)); tripped {
		t.Fatal("first loss should not trip cooldown")
	}
	if tripped := m.RecordTradeResult(decimal.NewFromFloat(-1)); !tripped {
		t.Fatal("second consecutive loss should trip cooldown")
	}
	if err := m.Allow(baseInput(fakeCycles{})); err == nil {
		t.Fatal("expected block during cooldown")
	}
}

func TestWinResetsConsecutiveLossStreak(t *testing.T) {
	m := New(Config{MaxConsecutiveLosses: 2, ConsecutiveLossCooldown: time.Minute})
	m.RecordTradeResult(decimal.NewFromFloat(-1))
	m.RecordTradeResult(decimal.NewFromFloat(1))
	if tripped := m.RecordTradeResult(decimal.NewFromFloat(-1)); tripped {
		t.Fatal("streak should have reset after a win, so a single loss should not trip cooldown")
	}
}

func TestDailyLossLimitBlocksAdmission(t *testing.T) {
	m := New(Config{MaxDailyLossUSDC: decimal.NewFromInt(100)})
	m.RecordTradeResult(decimal.NewFromFloat(-101))
	if err := m.Allow(baseInput(fakeCycles{})); err == nil {
		t.Fatal("expected block on daily loss limit breach")
	}
}

func TestResetDailyClearsPnLAndCooldown(t *testing.T) {
	m := New(Config{MaxConsecutiveLosses: 1, ConsecutiveLossCooldown: time.Minute})
	m.RecordTradeResult(decimal.NewFromFloat(-50))
	m.ResetDaily()
	if !m.DailyPnL().IsZero() {
		t.Fatalf("expected 0 after reset, got %s", m.DailyPnL())
	}
	snap := m.Snapshot()
	if !snap.CooldownUntil.IsZero() {
		t.Fatal("expected cooldown cleared after daily reset")
	}
}
