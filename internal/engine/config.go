package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/config"
)

// cycleConfig pins the ladder/exit tunables a Cycle was opened under (§4.9,
// §9): open cycles keep the snapshot they captured at birth even if the
// engine's live config is hot-reloaded mid-cycle.
type cycleConfig struct {
	Spacing         decimal.Decimal
	Shares          []decimal.Decimal
	FadeWindow      time.Duration
	FadeTargetCents decimal.Decimal
	TickSize        decimal.Decimal
	PositionTimeout time.Duration
}

func snapshotCycleConfig(cfg config.Config) cycleConfig {
	shares := make([]decimal.Decimal, len(cfg.Ladder.Shares))
	for i, s := range cfg.Ladder.Shares {
		shares[i] = decimal.NewFromFloat(s)
	}
	return cycleConfig{
		Spacing:         decimal.NewFromFloat(cfg.Ladder.Spacing),
		Shares:          shares,
		FadeWindow:      time.Duration(cfg.Ladder.FadeWindowMs) * time.Millisecond,
		FadeTargetCents: decimal.NewFromFloat(cfg.Ladder.FadeTargetCents),
		TickSize:        decimal.NewFromFloat(cfg.Exit.TickSize),
		PositionTimeout: time.Duration(cfg.Exit.PositionTimeoutMs) * time.Millisecond,
	}
}
