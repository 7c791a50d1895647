package config

import "testing"

func TestApplyRolloutPhasePaper(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "live"
	cfg.DryRun = true

	if err := ApplyRolloutPhase(&cfg, "paper"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "paper" {
		t.Fatalf("expected paper mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for paper phase")
	}
}

func TestApplyRolloutPhaseShadow(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "paper"
	cfg.DryRun = false

	if err := ApplyRolloutPhase(&cfg, "shadow"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if !cfg.DryRun {
		t.Fatal("expected dry_run=true for shadow phase")
	}
}

func TestApplyRolloutPhaseLiveSmallClamps(t *testing.T) {
	cfg := Default()
	cfg.Ladder.MaxGlobalCycles = 50
	cfg.Ladder.MaxCyclesPerMarket = 10
	cfg.Ladder.Shares = []float64{50, 100, 200}
	cfg.Risk.MaxDrawdownPct = 0.5

	if err := ApplyRolloutPhase(&cfg, "live-small"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for live-small phase")
	}
	if cfg.Ladder.MaxGlobalCycles != 2 {
		t.Fatalf("expected max_global_cycles=2, got %d", cfg.Ladder.MaxGlobalCycles)
	}
	if cfg.Ladder.MaxCyclesPerMarket != 1 {
		t.Fatalf("expected max_cycles_per_market=1, got %d", cfg.Ladder.MaxCyclesPerMarket)
	}
	for i, s := range cfg.Ladder.Shares {
		if s != 5 {
			t.Fatalf("expected ladder.shares[%d]=5, got %f", i, s)
		}
	}
	if cfg.Risk.MaxDrawdownPct != 0.05 {
		t.Fatalf("expected max_drawdown_pct=0.05, got %f", cfg.Risk.MaxDrawdownPct)
	}
}

func TestApplyRolloutPhaseLive(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "paper"
	cfg.DryRun = true

	if err := ApplyRolloutPhase(&cfg, "live"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for live phase")
	}
}

func TestApplyRolloutPhaseUnknown(t *testing.T) {
	cfg := Default()
	if err := ApplyRolloutPhase(&cfg, "unknown-phase"); err == nil {
		t.Fatal("expected error for unknown rollout phase")
	}
}
