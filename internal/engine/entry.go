package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/classifier"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/risk"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// tryEnter runs the §4.5 admission checks and, if every check clears,
// places the sell ladder on the spiked token.
func (e *Engine) tryEnter(ctx context.Context, market types.Market, shock types.Shock, result classifier.Result) error {
	cfg := e.config()
	cc := snapshotCycleConfig(cfg)

	notional := decimal.Zero
	for _, sh := range cc.Shares {
		notional = notional.Add(sh)
	}

	slot := e.ledger.Slot(shock.TokenID)
	classifyAge := time.Duration(result.LatencyMs) * time.Millisecond

	if err := e.risk.Allow(risk.AdmissionInput{
		MarketSlug:        market.Slug,
		MarketState:       market.State,
		FreeInventory:     slot.Free(),
		LadderNotional:    notional,
		ClassificationAge: classifyAge,
		Cycles:            e.orders,
	}); err != nil {
		if slot.Free().LessThan(notional) && e.chain != nil {
			e.requestSplit(ctx, market, notional.Sub(slot.Free()))
		}
		return err
	}

	return e.placeLadder(ctx, market, shock, result, cc)
}

// requestSplit asks the Chain Client to split additional collateral into
// the market's outcome tokens so free inventory can cover a future ladder
// (§4.5's "request split via Chain Client first").
func (e *Engine) requestSplit(ctx context.Context, market types.Market, shortfall decimal.Decimal) {
	conditionID := common.HexToHash(market.ConditionID)
	if _, err := e.chain.Split(ctx, conditionID, shortfall); err != nil {
		e.logger.Warn("split request failed", "market", market.Slug, "err", err)
	}
}

// placeLadder submits one GTC SELL per ladder level on the spiked token,
// opens the cycle, and creates the cycle's CumulativeTakeProfit row
// (§4.5 "Order placement").
func (e *Engine) placeLadder(ctx context.Context, market types.Market, shock types.Shock, result classifier.Result, cc cycleConfig) error {
	cycleID := uuid.NewString()
	e.orders.OpenCycle(types.Cycle{
		ID:             cycleID,
		ShockID:        shock.ID,
		MarketSlug:     market.Slug,
		ConfigSnapshot: cc,
	})

	for i, shares := range cc.Shares {
		price := shock.PostPrice.Add(cc.Spacing.Mul(decimal.NewFromInt(int64(i))))
		orderID, err := e.venue.PlaceOrder(ctx, shock.TokenID, types.SELL, types.GTC, price, shares, market.NegRisk)
		if err != nil {
			e.logger.Warn("ladder leg rejected", "market", market.Slug, "level", i+1, "err", err)
			continue
		}
		e.orders.RegisterOrder(types.LadderOrder{
			ID:         orderID,
			TokenID:    shock.TokenID,
			MarketSlug: market.Slug,
			Side:       types.SELL,
			Leg:        types.LegEntry,
			Level:      i + 1,
			Price:      price,
			Shares:     shares,
			ShockID:    shock.ID,
		})
		if err := e.orders.AddOrderToCycle(cycleID, orderID); err != nil {
			e.logger.Warn("failed to attach order to cycle", "cycle", cycleID, "order", orderID, "err", err)
		}
		if err := e.ledger.CommitToSell(shock.TokenID, shares); err != nil {
			e.logger.Warn("ledger commit failed", "token", shock.TokenID, "err", err)
		}
	}

	e.positions.SetShockTeam(cycleID, resolveShockTeam(shock, result))
	return nil
}

func resolveShockTeam(shock types.Shock, result classifier.Result) string {
	if result.ShockTeam != "" {
		return result.ShockTeam
	}
	return ""
}

// watchExpiries cancels any PENDING entry order whose fade window (§4.5
// "Expiry") has elapsed.
func (e *Engine) watchExpiries(ctx context.Context) {
	// Each order is measured from its CreatedAt against the fade window of
	// the cycle it belongs to, as pinned in that cycle's config snapshot.
	now := time.Now().UTC()
	for _, o := range e.orders.PendingEntryOrders() {
		_, cc := e.cycleConfigForOrder(o.ID)
		if cc.FadeWindow <= 0 || now.Sub(o.CreatedAt) < cc.FadeWindow {
			continue
		}
		if err := e.venue.CancelOrder(ctx, o.ID); err != nil {
			e.logger.Warn("expiry cancel failed", "order", o.ID, "err", err)
			continue
		}
		if _, ok := e.orders.ApplyExpiry(o.ID); ok {
			if err := e.ledger.ReleaseCommitted(o.TokenID, o.Shares); err != nil {
				e.logger.Warn("release committed after expiry failed", "order", o.ID, "err", err)
			}
		}
	}
}

