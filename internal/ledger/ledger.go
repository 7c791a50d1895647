package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Ledger is the process-wide record of how many shares of each outcome
// token are held, how much is resting on sell orders, and how much is
// locked inside an OPEN FadePosition (§6's Inventory Ledger). It is written
// only by the Trade Engine after confirmed venue/chain state changes, the
// same single-writer discipline the Tracker used for order/position state.
type Ledger struct {
	mu           sync.RWMutex
	slots        map[string]*types.InventorySlot
	unreconciled map[string]bool
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		slots:        make(map[string]*types.InventorySlot),
		unreconciled: make(map[string]bool),
	}
}

func (l *Ledger) slot(tokenID string) *types.InventorySlot {
	s, ok := l.slots[tokenID]
	if !ok {
		s = &types.InventorySlot{TokenID: tokenID}
		l.slots[tokenID] = s
	}
	return s
}

// AddHeld increases held balance for tokenID, e.g. after a confirmed
// splitPosition mint or a buy-side fill.
func (l *Ledger) AddHeld(tokenID string, shares decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slot(tokenID).Held = l.slot(tokenID).Held.Add(shares)
}

// RemoveHeld decreases held balance for tokenID, e.g. after a confirmed
// mergePositions burn or a sell fill settling against a resting order.
// It mirrors the bucket it is reducing: callers must already have moved
// shares out of CommittedOnSell/OpenPosition via ReleaseCommitted/
// ReleaseOpenPosition before calling this, or the invariant breaks.
func (l *Ledger) RemoveHeld(tokenID string, shares decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(tokenID)
	if s.Held.LessThan(shares) {
		return fmt.Errorf("ledger: remove %s held from %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	s.Held = s.Held.Sub(shares)
	return nil
}

// CommitToSell moves shares from free into committedOnSell when a sell
// order (ladder entry or exit) is placed.
func (l *Ledger) CommitToSell(tokenID string, shares decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(tokenID)
	if s.Free().LessThan(shares) {
		return fmt.Errorf("ledger: commit %s on %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	s.CommittedOnSell = s.CommittedOnSell.Add(shares)
	return nil
}

// ReleaseCommitted moves shares back from committedOnSell to free, e.g. a
// sell order is cancelled or partially filled and the remainder released.
func (l *Ledger) ReleaseCommitted(tokenID string, shares decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(tokenID)
	if s.CommittedOnSell.LessThan(shares) {
		return fmt.Errorf("ledger: release %s on %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	s.CommittedOnSell = s.CommittedOnSell.Sub(shares)
	return nil
}

// SettleSellFill is the atomic transition for a sell order fill: it
// releases the committed reservation and removes the sold shares from
// held in one step, so the invariant never observes an intermediate state
// with the shares neither committed nor held.
func (l *Ledger) SettleSellFill(tokenID string, shares decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(tokenID)
	if s.CommittedOnSell.LessThan(shares) {
		return fmt.Errorf("ledger: settle %s on %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	if s.Held.LessThan(shares) {
		return fmt.Errorf("ledger: settle %s on %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	s.CommittedOnSell = s.CommittedOnSell.Sub(shares)
	s.Held = s.Held.Sub(shares)
	return nil
}

// OpenPosition moves shares from free into the openPosition bucket when a
// FadePosition is created on an entry ladder fill (§4.2/§4.3).
func (l *Ledger) OpenPosition(tokenID string, shares decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(tokenID)
	if s.Free().LessThan(shares) {
		return fmt.Errorf("ledger: open position %s on %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	s.OpenPosition = s.OpenPosition.Add(shares)
	return nil
}

// MoveOpenToCommitted transitions shares from openPosition to
// committedOnSell when an EXIT SELL is posted against an OPEN position
// (TAKE_PROFIT/EVENT_EXIT trigger, §4.3).
func (l *Ledger) MoveOpenToCommitted(tokenID string, shares decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(tokenID)
	if s.OpenPosition.LessThan(shares) {
		return fmt.Errorf("ledger: move %s open->committed on %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	s.OpenPosition = s.OpenPosition.Sub(shares)
	s.CommittedOnSell = s.CommittedOnSell.Add(shares)
	return nil
}

// ReleaseOpenPosition returns shares from openPosition to free without a
// sale, used when a position is closed by a merge instead of an exit sell.
func (l *Ledger) ReleaseOpenPosition(tokenID string, shares decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(tokenID)
	if s.OpenPosition.LessThan(shares) {
		return fmt.Errorf("ledger: release %s open on %s: %w", shares, tokenID, ErrInsufficientFree)
	}
	s.OpenPosition = s.OpenPosition.Sub(shares)
	return nil
}

// Slot returns a copy of the per-token bookkeeping row.
func (l *Ledger) Slot(tokenID string) types.InventorySlot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.slots[tokenID]; ok {
		return *s
	}
	return types.InventorySlot{TokenID: tokenID}
}

// Snapshot returns a copy of every tracked token's bookkeeping row.
func (l *Ledger) Snapshot() map[string]types.InventorySlot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]types.InventorySlot, len(l.slots))
	for k, v := range l.slots {
		out[k] = *v
	}
	return out
}

// MarkUnreconciled records tokenID as unreconciled until ClearUnreconciled
// removes the mark. Nothing in the engine sets the mark or consults
// IsUnreconciled, so a mark does not by itself stop trading on tokenID.
func (l *Ledger) MarkUnreconciled(tokenID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unreconciled[tokenID] = true
}

// ClearUnreconciled is the operator-triggered clear of an UNRECONCILED mark.
func (l *Ledger) ClearUnreconciled(tokenID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.unreconciled, tokenID)
}

// IsUnreconciled reports whether tokenID currently carries an unreconciled mark.
func (l *Ledger) IsUnreconciled(tokenID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unreconciled[tokenID]
}

// CheckInvariant verifies held = free + committedOnSell + openPosition for
// every tracked token; used by the randomized property test in §8 after
// every applied event, and as a defensive assertion the engine can call
// after reconciliation.
func (l *Ledger) CheckInvariant() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for tokenID, s := range l.slots {
		sum := s.Free().Add(s.CommittedOnSell).Add(s.OpenPosition)
		if !sum.Equal(s.Held) {
			return fmt.Errorf("ledger: invariant violated for %s: held=%s free=%s committed=%s open=%s",
				tokenID, s.Held, s.Free(), s.CommittedOnSell, s.OpenPosition)
		}
		if s.Free().IsNegative() || s.CommittedOnSell.IsNegative() || s.OpenPosition.IsNegative() {
			return fmt.Errorf("ledger: negative bucket for %s: free=%s committed=%s open=%s",
				tokenID, s.Free(), s.CommittedOnSell, s.OpenPosition)
		}
	}
	return nil
}
