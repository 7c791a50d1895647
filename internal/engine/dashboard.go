package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/classifier"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/risk"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// recentHistoryCap bounds the in-memory shock/event rings the Dashboard
// Adapter reads from (§6: "retained in a bounded recent-history ring for
// the dashboard").
const recentHistoryCap = 200

// Event is one line of the Dashboard Adapter's session log.
type Event struct {
	Ts      time.Time
	Message string
}

// history is a small fixed-capacity ring buffer, shared by the recent-shock
// and session-log views.
type history[T any] struct {
	mu    sync.RWMutex
	items []T
	cap   int
}

func newHistory[T any](cap int) *history[T] {
	return &history[T]{cap: cap}
}

func (h *history[T]) push(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, item)
	if len(h.items) > h.cap {
		h.items = h.items[len(h.items)-h.cap:]
	}
}

// recent returns the last n items, most recent first. n<=0 returns all.
func (h *history[T]) recent(n int) []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	items := h.items
	if n > 0 && n < len(items) {
		items = items[len(items)-n:]
	}
	out := make([]T, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}

// Stats summarizes running performance for the Dashboard Adapter (§6:
// "stats: running PnL, win rate, averages").
type Stats struct {
	ClosedTrades   int
	Wins           int
	WinRate        float64
	RealizedPnL    float64
	AvgPnLPerTrade float64
}

// logEvent appends msg to the session-log ring; called at the key
// lifecycle points the Dashboard Adapter surfaces.
func (e *Engine) logEvent(format string, args ...interface{}) {
	e.events.push(Event{Ts: time.Now().UTC(), Message: fmt.Sprintf(format, args...)})
}

// RecentShocks returns the last n detected Shocks, most recent first, for
// the Dashboard Adapter.
func (e *Engine) RecentShocks(n int) []types.Shock {
	return e.shocks.recent(n)
}

// SessionLog returns the last n session-log lines, most recent first.
func (e *Engine) SessionLog(n int) []Event {
	return e.events.recent(n)
}

// OpenPositions returns every currently OPEN FadePosition.
func (e *Engine) OpenPositions() []types.FadePosition {
	return e.positions.OpenPositions()
}

// ClosedPositions returns every CLOSED FadePosition, most recent first.
func (e *Engine) ClosedPositions() []types.FadePosition {
	return e.positions.ClosedPositions()
}

// ActiveCycles returns every currently active trading cycle.
func (e *Engine) ActiveCycles() []types.Cycle {
	return e.orders.Cycles()
}

// CumulativeTakeProfits returns the running take-profit row for every
// active cycle.
func (e *Engine) CumulativeTakeProfits() []types.CumulativeTakeProfit {
	cycles := e.orders.Cycles()
	out := make([]types.CumulativeTakeProfit, 0, len(cycles))
	for _, c := range cycles {
		if tp, ok := e.positions.CumulativeTakeProfit(c.ID); ok {
			out = append(out, tp)
		}
	}
	return out
}

// RiskSnapshot returns the admission gate's current state.
func (e *Engine) RiskSnapshot() risk.Snapshot {
	return e.risk.Snapshot()
}

// Stats summarizes closed-trade performance from the PositionBook.
func (e *Engine) Stats() Stats {
	closed := e.positions.ClosedPositions()
	st := Stats{ClosedTrades: len(closed)}
	total := 0.0
	for _, pos := range closed {
		pnl, _ := pos.RealizedPnl.Float64()
		total += pnl
		if pnl > 0 {
			st.Wins++
		}
	}
	st.RealizedPnL = total
	if st.ClosedTrades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.ClosedTrades)
		st.AvgPnLPerTrade = total / float64(st.ClosedTrades)
	}
	return st
}

// SetEmergencyStop is the Dashboard Adapter's one decision-affecting pull:
// actually, this is a push — included here since it halts new admission the
// same way the risk manager's own gate would (§7).
func (e *Engine) SetEmergencyStop(on bool) {
	e.risk.SetEmergencyStop(on)
}

// ForceExit is the Dashboard Adapter's "force-sell" push action (§6): it
// routes through the identical triggerExit the position state machine uses
// for a normal TAKE_PROFIT, so the same venue call and ledger bookkeeping
// apply. No separate admission check applies to closing a position.
func (e *Engine) ForceExit(ctx context.Context, positionID string) error {
	pos, ok := e.positions.Position(positionID)
	if !ok {
		return fmt.Errorf("engine: unknown position %s", positionID)
	}
	if pos.Status != types.PositionOpen {
		return fmt.Errorf("engine: position %s not OPEN (status=%s)", positionID, pos.Status)
	}
	snap, ok := e.book.Snapshot(pos.HeldTokenID)
	if !ok || snap.BestBid().IsZero() {
		return fmt.Errorf("engine: no bid available to force-sell %s", positionID)
	}
	e.logEvent("operator force-sell: position=%s market=%s", positionID, pos.MarketSlug)
	e.triggerExit(ctx, pos, snap.BestBid(), types.PositionEventExit)
	return nil
}

// ForceEntry is the Dashboard Adapter's "force-entry" push action (§6): it
// calls the identical tryEnter admission-gated entry point a detected Shock
// would, synthesizing a single_event classification at the current book
// price for tokenID rather than waiting on the Shock Detector/Classifier.
func (e *Engine) ForceEntry(ctx context.Context, marketSlug, tokenID string) error {
	market, ok := e.markets.BySlug(marketSlug)
	if !ok {
		return fmt.Errorf("engine: unknown market %s", marketSlug)
	}
	if _, ok := e.book.Snapshot(tokenID); !ok {
		return fmt.Errorf("engine: no book snapshot for %s", tokenID)
	}
	e.logEvent("operator force-entry: market=%s token=%s", marketSlug, tokenID)
	shock := types.Shock{
		ID:         "operator-" + time.Now().UTC().Format("20060102T150405.000000000"),
		TokenID:    tokenID,
		MarketSlug: marketSlug,
		PostPrice:  e.book.Mid(tokenID),
		Ts:         time.Now().UTC(),
	}
	result := classifier.Result{ShockID: shock.ID, Classification: types.ClassSingleEvent}
	return e.tryEnter(ctx, market, shock, result)
}
