// Package paper implements the paper execution path (§9 Open Question,
// resolved): a faithful mirror of the live Venue against the real order
// book instead of a broadcast venue, so every admission-gated entry point
// in internal/engine exercises the identical code path under
// TradingMode=paper. It satisfies engine.VenueClient and engine.FillSource
// so it can be wired in place of the live venue.Client and
// stream.UserChannel without the Trade Engine branching on mode.
//
// Grounded on the teacher's internal/paper/simulator.go (balance/fee/
// slippage bookkeeping, sequence-numbered synthetic order/trade IDs),
// generalized from its one-shot ExecuteMarket/ExecuteLimit calls to
// resting-GTC-order simulation against internal/stream.Book, since this
// domain's ladder orders rest until the book crosses them or they expire.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/engine"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/stream"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

var (
	_ engine.VenueClient = (*Simulator)(nil)
	_ engine.FillSource  = (*Simulator)(nil)
)

// pollInterval is how often a resting order checks the book for a cross.
// Paper mode has no real matching engine, so this stands in for the
// venue's own order book evaluation latency.
const pollInterval = 250 * time.Millisecond

// Config tunes the simulated account (§6 "paper" in the config tree).
type Config struct {
	InitialBalanceUSDC float64
	FeeBps             float64
	SlippageBps        float64
}

// Snapshot is a point-in-time view of the simulated account, for the
// Dashboard Adapter.
type Snapshot struct {
	InitialBalanceUSDC float64
	BalanceUSDC        float64
	FeesPaidUSDC       float64
	TotalVolumeUSDC    float64
	TotalTrades        int
}

type restingOrder struct {
	id      string
	tokenID string
	side    types.Side
	price   decimal.Decimal
	size    decimal.Decimal
	negRisk bool
	cancel  chan struct{}
}

// Simulator is a paper Venue+User Channel: PlaceOrder/CancelOrder drive
// resting-order bookkeeping against a live internal/stream.Book, and
// Fills/Updates deliver the same OrderFill/OrderUpdate shapes the real
// User Channel would, one CONFIRMED stage per fill since paper trades
// never need the triple-delivery staging a real settlement does.
type Simulator struct {
	cfg    Config
	book   *stream.Book
	logger *slog.Logger

	mu              sync.Mutex
	sequence        int64
	balanceUSDC     decimal.Decimal
	feesPaidUSDC    decimal.Decimal
	totalVolumeUSDC decimal.Decimal
	totalTrades     int
	orders          map[string]*restingOrder

	fills   chan types.OrderFill
	updates chan types.OrderUpdate
	wg      sync.WaitGroup
}

// NewSimulator builds a Simulator reading top-of-book from book.
func NewSimulator(cfg Config, book *stream.Book, logger *slog.Logger) *Simulator {
	initial := cfg.InitialBalanceUSDC
	if initial <= 0 {
		initial = 1000
	}
	return &Simulator{
		cfg:         cfg,
		book:        book,
		logger:      logger,
		balanceUSDC: decimal.NewFromFloat(initial),
		orders:      make(map[string]*restingOrder),
		fills:       make(chan types.OrderFill, 64),
		updates:     make(chan types.OrderUpdate, 64),
	}
}

// Fills implements engine.FillSource.
func (s *Simulator) Fills() <-chan types.OrderFill { return s.fills }

// Updates implements engine.FillSource.
func (s *Simulator) Updates() <-chan types.OrderUpdate { return s.updates }

// PlaceOrder implements engine.VenueClient: it fills immediately against
// the current book if the limit price already crosses, otherwise it rests
// and spawns a watcher that polls the book until a cross, a cancel, or ctx
// cancellation.
func (s *Simulator) PlaceOrder(ctx context.Context, tokenID string, side types.Side, kind types.OrderKind, price, size decimal.Decimal, negRisk bool) (string, error) {
	if size.IsZero() || size.IsNegative() {
		return "", fmt.Errorf("paper: order size must be positive")
	}
	orderID := s.nextID("order")

	if snap, ok := s.book.Snapshot(tokenID); ok && crosses(side, price, snap) {
		s.settle(orderID, tokenID, side, price, size)
		return orderID, nil
	}

	ro := &restingOrder{id: orderID, tokenID: tokenID, side: side, price: price, size: size, negRisk: negRisk, cancel: make(chan struct{})}
	s.mu.Lock()
	s.orders[orderID] = ro
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watch(ctx, ro)

	return orderID, nil
}

// CancelOrder implements engine.VenueClient: it stops the resting order's
// watcher and, mirroring the live venue's async confirmation, delivers an
// OrderEventCancellation on Updates() so handleOrderUpdate releases the
// ledger commitment the same way it would for a live cancel.
func (s *Simulator) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	ro, ok := s.orders[orderID]
	if ok {
		delete(s.orders, orderID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}
	close(ro.cancel)

	upd := types.OrderUpdate{OrderID: orderID, Type: types.OrderEventCancellation, Ts: time.Now().UTC()}
	select {
	case s.updates <- upd:
	case <-ctx.Done():
	}
	return nil
}

func (s *Simulator) watch(ctx context.Context, ro *restingOrder) {
	defer s.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ro.cancel:
			return
		case <-ticker.C:
			snap, ok := s.book.Snapshot(ro.tokenID)
			if !ok {
				continue
			}
			if !crosses(ro.side, ro.price, snap) {
				continue
			}
			s.mu.Lock()
			_, stillResting := s.orders[ro.id]
			delete(s.orders, ro.id)
			s.mu.Unlock()
			if !stillResting {
				return
			}
			s.settle(ro.id, ro.tokenID, ro.side, ro.price, ro.size)
			return
		}
	}
}

// crosses reports whether a resting order at price would execute against
// snap: a SELL needs a bid at or above price, a BUY needs an ask at or
// below price.
func crosses(side types.Side, price decimal.Decimal, snap types.BookSnapshot) bool {
	switch side {
	case types.SELL:
		bid := snap.BestBid()
		return !bid.IsZero() && bid.GreaterThanOrEqual(price)
	case types.BUY:
		ask := snap.BestAsk()
		return !ask.IsZero() && ask.LessThanOrEqual(price)
	default:
		return false
	}
}

func (s *Simulator) settle(orderID, tokenID string, side types.Side, price, size decimal.Decimal) {
	execPrice := applySlippage(price, side, s.cfg.SlippageBps)
	notional := execPrice.Mul(size)
	fee := notional.Mul(decimal.NewFromFloat(s.cfg.FeeBps)).Div(decimal.NewFromInt(10000))

	s.mu.Lock()
	if side == types.SELL {
		s.balanceUSDC = s.balanceUSDC.Add(notional).Sub(fee)
	} else {
		s.balanceUSDC = s.balanceUSDC.Sub(notional).Sub(fee)
	}
	s.feesPaidUSDC = s.feesPaidUSDC.Add(fee)
	s.totalVolumeUSDC = s.totalVolumeUSDC.Add(notional)
	s.totalTrades++
	s.mu.Unlock()

	fill := types.OrderFill{
		OrderID: orderID,
		Stage:   types.StageConfirmed,
		Price:   execPrice,
		Shares:  size,
		Status:  types.OrderFilled,
		Side:    side,
		Ts:      time.Now().UTC(),
	}
	select {
	case s.fills <- fill:
	default:
		s.logger.Warn("paper: fills channel full, dropping fill", "order", orderID)
	}
	_ = tokenID
}

func applySlippage(price decimal.Decimal, side types.Side, slippageBps float64) decimal.Decimal {
	if slippageBps <= 0 {
		return price
	}
	multiplier := decimal.NewFromFloat(slippageBps).Div(decimal.NewFromInt(10000))
	if side == types.BUY {
		return price.Mul(decimal.NewFromInt(1).Add(multiplier))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(multiplier))
}

func (s *Simulator) nextID(kind string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return fmt.Sprintf("paper-%s-%06d", kind, s.sequence)
}

// Snapshot returns a point-in-time copy of the simulated account.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		InitialBalanceUSDC: s.cfg.InitialBalanceUSDC,
		BalanceUSDC:        s.balanceUSDC.InexactFloat64(),
		FeesPaidUSDC:       s.feesPaidUSDC.InexactFloat64(),
		TotalVolumeUSDC:    s.totalVolumeUSDC.InexactFloat64(),
		TotalTrades:        s.totalTrades,
	}
}

// Wait blocks until every resting order's watcher goroutine has returned,
// for graceful shutdown.
func (s *Simulator) Wait() {
	s.wg.Wait()
}
