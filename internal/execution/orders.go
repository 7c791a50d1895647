// Package execution tracks ladder orders, FadePositions, and cycles for the
// Trade Engine: pure bookkeeping with no I/O of its own. It trusts its
// caller to have already deduplicated MATCHED/MINED/CONFIRMED fill
// redeliveries (the User Channel's own (orderId, stage) admit guard, §4.2,
// handles that layer) — this package's job is the order/position state
// machine itself.
//
// Grounded on the teacher's internal/execution/tracker.go (OrderState,
// Fill, Position, the RWMutex-guarded map-of-pointers shape, snapshot
// accessors), generalized from net-position average-cost PnL to the
// ladder/cycle/cumulative-take-profit model this spec requires.
package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// OrderBook tracks every LadderOrder ever registered and the per-market and
// global count of cycles currently active, for the admission checks in
// §4.5.
type OrderBook struct {
	mu          sync.RWMutex
	orders      map[string]*types.LadderOrder
	cycles      map[string]*types.Cycle // cycleID -> cycle
	orderCycle  map[string]string       // orderID -> cycleID
}

// NewOrderBook returns an empty OrderBook.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		orders:     make(map[string]*types.LadderOrder),
		cycles:     make(map[string]*types.Cycle),
		orderCycle: make(map[string]string),
	}
}

// RegisterOrder records a newly placed ladder leg as PENDING.
func (b *OrderBook) RegisterOrder(order types.LadderOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := order
	o.Status = types.OrderPending
	o.CreatedAt = time.Now().UTC()
	b.orders[o.ID] = &o
}

// Order returns a copy of orderID's current state.
func (b *OrderBook) Order(orderID string) (types.LadderOrder, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[orderID]
	if !ok {
		return types.LadderOrder{}, false
	}
	return *o, true
}

// ApplyFill transitions orderID to FILLED. Returns (order, true) if this
// call is the one that performed the transition, (order, false) if the
// order was already terminal (a redelivery the caller failed to dedup, or a
// race) — callers must only act on a true result.
func (b *OrderBook) ApplyFill(orderID string, fillPrice decimal.Decimal, filledAt time.Time) (types.LadderOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok || o.Status != types.OrderPending {
		if ok {
			return *o, false
		}
		return types.LadderOrder{}, false
	}
	o.Status = types.OrderFilled
	o.FillPrice = fillPrice
	o.FilledAt = filledAt
	return *o, true
}

// ApplyCancel transitions orderID to CANCELLED. Returns true only if this
// call performed the transition.
func (b *OrderBook) ApplyCancel(orderID string) (types.LadderOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok || o.Status != types.OrderPending {
		if ok {
			return *o, false
		}
		return types.LadderOrder{}, false
	}
	o.Status = types.OrderCancelled
	return *o, true
}

// ApplyExpiry transitions orderID to EXPIRED if still PENDING (§4.5's fade
// window expiry, prior to the venue confirming the cancel).
func (b *OrderBook) ApplyExpiry(orderID string) (types.LadderOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok || o.Status != types.OrderPending {
		if ok {
			return *o, false
		}
		return types.LadderOrder{}, false
	}
	o.Status = types.OrderExpired
	return *o, true
}

// OpenCycle records a new active cycle for a shock/market.
func (b *OrderBook) OpenCycle(cycle types.Cycle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := cycle
	c.OpenedAt = time.Now().UTC()
	b.cycles[c.ID] = &c
}

// CloseCycle removes a cycle from the active set (§4.5 admission cap
// bookkeeping). A closed cycle is not kept anywhere: persistence
// snapshots hold only the active cycles.
func (b *OrderBook) CloseCycle(cycleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cycles, cycleID)
}

// ActiveCyclesForMarket returns the count of currently-open cycles on
// marketSlug, for the maxCyclesPerMarket admission check.
func (b *OrderBook) ActiveCyclesForMarket(marketSlug string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, c := range b.cycles {
		if c.MarketSlug == marketSlug {
			n++
		}
	}
	return n
}

// ActiveCyclesGlobal returns the count of currently-open cycles across all
// markets, for the maxGlobalCycles admission check.
func (b *OrderBook) ActiveCyclesGlobal() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cycles)
}

// Cycles returns a copy of every currently active cycle, for the Dashboard
// Adapter's cycle-grouping view (§6).
func (b *OrderBook) Cycles() []types.Cycle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Cycle, 0, len(b.cycles))
	for _, c := range b.cycles {
		out = append(out, *c)
	}
	return out
}

// Cycle returns a copy of cycleID's current state.
func (b *OrderBook) Cycle(cycleID string) (types.Cycle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cycles[cycleID]
	if !ok {
		return types.Cycle{}, false
	}
	return *c, true
}

// AddOrderToCycle appends an order ID to cycleID's member list.
func (b *OrderBook) AddOrderToCycle(cycleID, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.cycles[cycleID]
	if !ok {
		return fmt.Errorf("execution: unknown cycle %s", cycleID)
	}
	c.OrderIDs = append(c.OrderIDs, orderID)
	b.orderCycle[orderID] = cycleID
	return nil
}

// CycleForOrder returns the cycle orderID belongs to, if any.
func (b *OrderBook) CycleForOrder(orderID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.orderCycle[orderID]
	return id, ok
}

// PendingEntryOrders returns every PENDING entry-leg order across all
// cycles, for the fade-window expiry scan (§4.5's "Expiry").
func (b *OrderBook) PendingEntryOrders() []types.LadderOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.LadderOrder
	for _, o := range b.orders {
		if o.Status == types.OrderPending && o.Leg == types.LegEntry {
			out = append(out, *o)
		}
	}
	return out
}

// PendingOrdersInCycle returns the PENDING ladder orders belonging to
// cycleID, used to cancel resting ENTRY orders on an EVENT_EXIT trigger.
func (b *OrderBook) PendingOrdersInCycle(cycleID string) []types.LadderOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cycles[cycleID]
	if !ok {
		return nil
	}
	var out []types.LadderOrder
	for _, id := range c.OrderIDs {
		if o, ok := b.orders[id]; ok && o.Status == types.OrderPending {
			out = append(out, *o)
		}
	}
	return out
}
