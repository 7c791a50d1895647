package execution

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// centOne is 0.01 as a decimal, used for the EXIT SELL "bid + 1 tick" price.
var centOne = decimal.NewFromFloat(0.01)

// tpCap is the take-profit price ceiling (§4.6 step 3).
var tpCap = decimal.NewFromFloat(0.99)

// PositionBook tracks FadePositions and their cycle's CumulativeTakeProfit,
// implementing the size-weighted blending in §4.6.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*types.FadePosition
	tps       map[string]*types.CumulativeTakeProfit // cycleID -> running TP
}

// NewPositionBook returns an empty PositionBook.
func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions: make(map[string]*types.FadePosition),
		tps:       make(map[string]*types.CumulativeTakeProfit),
	}
}

// OpenPosition creates a FadePosition for an ENTRY fill (§4.6 steps 1-2).
func (p *PositionBook) OpenPosition(pos types.FadePosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	np := pos
	np.Status = types.PositionOpen
	np.SplitCost = pos.SoldShares
	p.positions[np.ID] = &np
}

// PositionByEntryOrder returns the position opened by orderID's fill, if any.
func (p *PositionBook) PositionByEntryOrder(orderID string) (types.FadePosition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pos := range p.positions {
		if pos.OrderID == orderID {
			return *pos, true
		}
	}
	return types.FadePosition{}, false
}

// SetExitOrder records the EXIT LadderOrder placed to close positionID.
func (p *PositionBook) SetExitOrder(positionID, orderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[positionID]; ok {
		pos.ExitOrderID = orderID
	}
}

// PositionByExitOrder returns the position whose EXIT order is orderID.
func (p *PositionBook) PositionByExitOrder(orderID string) (types.FadePosition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pos := range p.positions {
		if pos.ExitOrderID == orderID {
			return *pos, true
		}
	}
	return types.FadePosition{}, false
}

// OpenPositions returns every position currently in OPEN status.
func (p *PositionBook) OpenPositions() []types.FadePosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.FadePosition
	for _, pos := range p.positions {
		if pos.Status == types.PositionOpen {
			out = append(out, *pos)
		}
	}
	return out
}

// OpenPositionsForMarket returns OPEN positions restricted to marketSlug.
func (p *PositionBook) OpenPositionsForMarket(marketSlug string) []types.FadePosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.FadePosition
	for _, pos := range p.positions {
		if pos.Status == types.PositionOpen && pos.MarketSlug == marketSlug {
			out = append(out, *pos)
		}
	}
	return out
}

// ClosedPositions returns every position in terminal CLOSED status, for
// the Dashboard Adapter's closed-positions view (§6). Most recent first.
func (p *PositionBook) ClosedPositions() []types.FadePosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.FadePosition
	for _, pos := range p.positions {
		if pos.Status == types.PositionClosed {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExitTime.After(out[j].ExitTime) })
	return out
}

// Position returns a copy of positionID's current state.
func (p *PositionBook) Position(positionID string) (types.FadePosition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[positionID]
	if !ok {
		return types.FadePosition{}, false
	}
	return *pos, true
}

// ApplyEntryFill computes the per-fill target price, size-weight-blends it
// into the cycle's CumulativeTakeProfit, and returns the updated TP row
// (§4.6 steps 3-4). fadeTargetCents is expressed as a decimal fraction
// (e.g. 0.04 for 4 cents).
func (p *PositionBook) ApplyEntryFill(cycleID, heldTokenID string, fillPrice, fillShares, fadeTargetCents decimal.Decimal) types.CumulativeTakeProfit {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := decimal.NewFromInt(1).Sub(fillPrice).Add(fadeTargetCents)
	if target.GreaterThan(tpCap) {
		target = tpCap
	}

	tp, ok := p.tps[cycleID]
	if !ok {
		tp = &types.CumulativeTakeProfit{
			CycleID:     cycleID,
			HeldTokenID: heldTokenID,
			TPPrice:     target,
			Status:      types.TPWatching,
		}
		p.tps[cycleID] = tp
	} else {
		totalShares := tp.TotalEntryShares.Add(fillShares)
		if totalShares.IsPositive() {
			weighted := tp.TPPrice.Mul(tp.TotalEntryShares).Add(target.Mul(fillShares))
			tp.TPPrice = weighted.Div(totalShares)
		}
	}
	tp.TotalEntryShares = tp.TotalEntryShares.Add(fillShares)
	if tp.Status == types.TPWatching && tp.TotalEntryShares.GreaterThan(decimal.Zero) {
		tp.Status = types.TPPartial
	}
	return *tp
}

// CumulativeTakeProfit returns a copy of cycleID's running TP row.
func (p *PositionBook) CumulativeTakeProfit(cycleID string) (types.CumulativeTakeProfit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tp, ok := p.tps[cycleID]
	if !ok {
		return types.CumulativeTakeProfit{}, false
	}
	return *tp, true
}

// SetShockTeam resolves the cycle TP's shockTeam once the Classifier
// identifies the scorer matching the shock direction.
func (p *PositionBook) SetShockTeam(cycleID, team string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tp, ok := p.tps[cycleID]; ok {
		tp.ShockTeam = team
	}
}

// ExitPrice computes the "bid + 1 tick" GTC exit price used for both
// TAKE_PROFIT and EVENT_EXIT triggers (§4.6 table).
func ExitPrice(bestBid decimal.Decimal) decimal.Decimal {
	return bestBid.Add(centOne)
}

// Transition moves positionID from OPEN to the status to. It only checks
// that the position is currently OPEN; the target status itself is not
// checked. It does not place any order itself — the caller (Trade Engine)
// owns all I/O.
func (p *PositionBook) Transition(positionID string, to types.PositionStatus) (types.FadePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[positionID]
	if !ok {
		return types.FadePosition{}, fmt.Errorf("execution: unknown position %s", positionID)
	}
	if pos.Status != types.PositionOpen {
		return types.FadePosition{}, fmt.Errorf("execution: position %s not OPEN (status=%s)", positionID, pos.Status)
	}
	pos.Status = to
	return *pos, nil
}

// FinalizeClose records the exit fill and computes realized PnL (§4.6's
// PnL accounting): totalProceeds = soldPrice*soldShares + exitPrice*heldShares,
// realizedPnl = totalProceeds - splitCost.
func (p *PositionBook) FinalizeClose(positionID string, exitPrice decimal.Decimal, exitTime time.Time) (types.FadePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[positionID]
	if !ok {
		return types.FadePosition{}, fmt.Errorf("execution: unknown position %s", positionID)
	}
	pos.ExitPrice = exitPrice
	pos.ExitTime = exitTime
	totalProceeds := pos.SoldPrice.Mul(pos.SoldShares).Add(exitPrice.Mul(pos.HeldShares))
	pos.RealizedPnl = totalProceeds.Sub(pos.SplitCost)
	pos.Status = types.PositionClosed
	return *pos, nil
}
