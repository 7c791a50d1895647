package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// handleFill applies a User Channel fill notification. Only the CONFIRMED
// stage finalizes ledger and position state; MATCHED/MINED are admitted by
// the User Channel for progress visibility but are not acted on here, to
// avoid committing state that could still revert on-chain.
func (e *Engine) handleFill(ctx context.Context, fill types.OrderFill) {
	if fill.Stage != types.StageConfirmed {
		return
	}
	order, ok := e.orders.Order(fill.OrderID)
	if !ok {
		e.logger.Warn("fill for unknown order", "order", fill.OrderID)
		return
	}
	applied, ok := e.orders.ApplyFill(fill.OrderID, fill.Price, fill.Ts)
	if !ok {
		return
	}

	switch applied.Leg {
	case types.LegEntry:
		e.handleEntryFill(ctx, applied)
	case types.LegExit:
		e.handleExitFill(ctx, applied)
	}

	if e.notifier != nil {
		_ = e.notifier.NotifyFill(ctx, order.TokenID, string(order.Side), applied.FillPrice.InexactFloat64(), applied.Shares.InexactFloat64())
	}
}

// cycleConfigForOrder resolves the cycleConfig an order's cycle was opened
// under, falling back to the live config's snapshot if the cycle is gone
// or its ConfigSnapshot wasn't set (defensive; should not happen in
// practice since placeLadder always stamps one).
func (e *Engine) cycleConfigForOrder(orderID string) (string, cycleConfig) {
	cycleID, _ := e.orders.CycleForOrder(orderID)
	if cycleID == "" {
		return "", snapshotCycleConfig(e.config())
	}
	cycle, ok := e.orders.Cycle(cycleID)
	if !ok {
		return cycleID, snapshotCycleConfig(e.config())
	}
	if cc, ok := cycle.ConfigSnapshot.(cycleConfig); ok {
		return cycleID, cc
	}
	return cycleID, snapshotCycleConfig(e.config())
}

// handleEntryFill settles the sold shares, opens the complement's
// OpenPosition bucket, creates the FadePosition, and blends the fill into
// the cycle's CumulativeTakeProfit row (§4.6 steps 1-4).
func (e *Engine) handleEntryFill(ctx context.Context, order types.LadderOrder) {
	market, ok := e.markets.ByToken(order.TokenID)
	if !ok {
		e.logger.Warn("entry fill for untracked token", "token", order.TokenID)
		return
	}
	heldTokenID := market.Complement(order.TokenID)

	if err := e.ledger.SettleSellFill(order.TokenID, order.Shares); err != nil {
		e.logger.Warn("ledger settle failed", "token", order.TokenID, "err", err)
	}
	if err := e.ledger.OpenPosition(heldTokenID, order.Shares); err != nil {
		e.logger.Warn("ledger open position failed", "token", heldTokenID, "err", err)
	}

	cycleID, cc := e.cycleConfigForOrder(order.ID)

	position := types.FadePosition{
		ID:          uuid.NewString(),
		MarketSlug:  market.Slug,
		SoldTokenID: order.TokenID,
		SoldPrice:   order.FillPrice,
		SoldShares:  order.Shares,
		HeldTokenID: heldTokenID,
		HeldShares:  order.Shares,
		EntryTime:   order.FilledAt,
		ShockID:     order.ShockID,
		OrderID:     order.ID,
	}
	e.positions.OpenPosition(position)
	e.positions.ApplyEntryFill(cycleID, heldTokenID, order.FillPrice, order.Shares, cc.FadeTargetCents)
}

// handleExitFill records the exit fill, finalizes the position's realized
// PnL, and releases the held-token inventory now that the cycle is done
// (§4.6's PnL accounting).
func (e *Engine) handleExitFill(ctx context.Context, order types.LadderOrder) {
	pos, ok := e.positions.PositionByExitOrder(order.ID)
	if !ok {
		e.logger.Warn("exit fill with no matching position", "order", order.ID)
		return
	}
	closed, err := e.positions.FinalizeClose(pos.ID, order.FillPrice, order.FilledAt)
	if err != nil {
		e.logger.Warn("finalize close failed", "position", pos.ID, "err", err)
		return
	}
	if err := e.ledger.ReleaseOpenPosition(closed.HeldTokenID, closed.HeldShares); err != nil {
		e.logger.Warn("release open position failed", "token", closed.HeldTokenID, "err", err)
	}
	e.risk.RecordTradeResult(closed.RealizedPnl)
	if cycleID, _ := e.orders.CycleForOrder(closed.OrderID); cycleID != "" {
		e.orders.CloseCycle(cycleID)
	}

	if pos.Status == types.PositionEventExit && e.notifier != nil {
		_ = e.notifier.NotifyEventExit(ctx, closed.MarketSlug, closed.HeldTokenID, closed.ExitPrice.InexactFloat64())
	}
}

// handleOrderUpdate applies non-fill lifecycle notifications: a confirmed
// cancellation or expiry releases the committed inventory for that order.
func (e *Engine) handleOrderUpdate(ctx context.Context, upd types.OrderUpdate) {
	order, ok := e.orders.Order(upd.OrderID)
	if !ok {
		return
	}
	switch upd.Type {
	case types.OrderEventCancellation:
		if _, ok := e.orders.ApplyCancel(upd.OrderID); ok {
			_ = e.ledger.ReleaseCommitted(order.TokenID, order.Shares)
		}
	case types.OrderEventExpired:
		if _, ok := e.orders.ApplyExpiry(upd.OrderID); ok {
			_ = e.ledger.ReleaseCommitted(order.TokenID, order.Shares)
		}
	}
}

// watchPositions checks every OPEN position's held-token best bid against
// the cycle's running take-profit price and places the EXIT SELL when it
// triggers (§4.6 OPEN->TAKE_PROFIT).
func (e *Engine) watchPositions(ctx context.Context) {
	for _, pos := range e.positions.OpenPositions() {
		cycleID, _ := e.orders.CycleForOrder(pos.OrderID)
		tp, ok := e.positions.CumulativeTakeProfit(cycleID)
		if !ok {
			continue
		}
		snap, ok := e.book.Snapshot(pos.HeldTokenID)
		if !ok {
			continue
		}
		bid := snap.BestBid()
		if bid.IsZero() || bid.LessThan(tp.TPPrice) {
			continue
		}
		e.triggerExit(ctx, pos, bid, types.PositionTakeProfit)
	}
}

// triggerExit transitions a position to the given terminal status and
// places its EXIT SELL at bestBid + 1 tick, GTC (§4.6's exit table).
func (e *Engine) triggerExit(ctx context.Context, pos types.FadePosition, bestBid decimal.Decimal, to types.PositionStatus) {
	if _, err := e.positions.Transition(pos.ID, to); err != nil {
		return
	}
	market, ok := e.markets.ByToken(pos.HeldTokenID)
	negRisk := ok && market.NegRisk

	exitPrice := exitPriceFor(bestBid)
	orderID, err := e.venue.PlaceOrder(ctx, pos.HeldTokenID, types.SELL, types.GTC, exitPrice, pos.HeldShares, negRisk)
	if err != nil {
		e.logger.Warn("exit order rejected", "position", pos.ID, "err", err)
		return
	}
	e.orders.RegisterOrder(types.LadderOrder{
		ID:         orderID,
		TokenID:    pos.HeldTokenID,
		MarketSlug: pos.MarketSlug,
		Side:       types.SELL,
		Leg:        types.LegExit,
		Price:      exitPrice,
		Shares:     pos.HeldShares,
		ShockID:    pos.ShockID,
	})
	e.positions.SetExitOrder(pos.ID, orderID)
	if cycleID, _ := e.orders.CycleForOrder(pos.OrderID); cycleID != "" {
		_ = e.orders.AddOrderToCycle(cycleID, orderID)
	}
}

// triggerEventExit cancels resting entry orders and places EXIT SELLs for
// every OPEN position in marketSlug (§4.6 OPEN->EVENT_EXIT).
func (e *Engine) triggerEventExit(ctx context.Context, market types.Market, reason string) {
	e.logger.Info("event exit triggered", "market", market.Slug, "reason", reason)
	for _, pos := range e.positions.OpenPositionsForMarket(market.Slug) {
		if cycleID, ok := e.orders.CycleForOrder(pos.OrderID); ok {
			for _, o := range e.orders.PendingOrdersInCycle(cycleID) {
				if o.Leg != types.LegEntry {
					continue
				}
				if err := e.venue.CancelOrder(ctx, o.ID); err != nil {
					e.logger.Warn("cancel resting entry failed", "order", o.ID, "err", err)
				}
			}
		}
		snap, ok := e.book.Snapshot(pos.HeldTokenID)
		if !ok {
			continue
		}
		bid := snap.BestBid()
		if bid.IsZero() {
			continue
		}
		e.triggerExit(ctx, pos, bid, types.PositionEventExit)
	}
}

func exitPriceFor(bestBid decimal.Decimal) decimal.Decimal {
	return bestBid.Add(decimal.NewFromFloat(0.01))
}
