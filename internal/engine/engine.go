// Package engine implements the Trade Engine (§4.5, §4.6): the single
// dispatcher that turns classified Shocks into entry ladders, tracks their
// fills through the Position State Machine, and drives take-profit and
// event-exit closes.
//
// Grounded on the teacher's internal/app/app.go: one goroutine owns a
// select loop over heterogeneous event channels (book updates, user order
// events, user trade events, periodic tickers), exactly the shape this
// package generalizes from maker/taker strategy dispatch to shock/cycle
// dispatch.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/classifier"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/config"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/detector"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/execution"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/ledger"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/notify"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/risk"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/stream"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Notifier is the subset of notify.Notifier the engine calls; an interface
// so tests can stub it.
type Notifier interface {
	NotifyFill(ctx context.Context, assetID, side string, price, size float64) error
	NotifyEventExit(ctx context.Context, marketSlug, heldTokenID string, exitPrice float64) error
	NotifyChainFatal(ctx context.Context, reason string) error
	NotifyDailySummary(ctx context.Context, pnl float64, fills int, volume float64) error
}

var _ Notifier = (*notify.Notifier)(nil)

// Engine wires the Price Stream, User Channel, Shock Detector, Classifier,
// Score Feed, Risk Manager, Inventory Ledger, and order/position
// bookkeeping into the single dispatcher described in §4.
type Engine struct {
	cfg atomic.Pointer[config.Config]

	logger *slog.Logger

	book        *stream.Book
	priceStream *stream.PriceStream
	userChannel FillSource
	markets     *MarketRegistry

	venue VenueClient
	chain ChainClient

	detector   *detector.Detector
	classifier *classifier.Classifier

	risk      *risk.Manager
	ledger    *ledger.Ledger
	orders    *execution.OrderBook
	positions *execution.PositionBook

	notifier Notifier

	shocks *history[types.Shock]
	events *history[Event]

	wg sync.WaitGroup
}

// Deps bundles everything New needs; built by cmd/engine's wiring.
type Deps struct {
	Logger      *slog.Logger
	Book        *stream.Book
	PriceStream *stream.PriceStream
	UserChannel FillSource
	Markets     *MarketRegistry
	Venue       VenueClient
	Chain       ChainClient
	Detector    *detector.Detector
	Classifier  *classifier.Classifier
	Risk        *risk.Manager
	Ledger      *ledger.Ledger
	Orders      *execution.OrderBook
	Positions   *execution.PositionBook
	Notifier    Notifier
}

// New builds an Engine from cfg and deps. cfg is held behind an atomic
// pointer so ApplyConfig (driven by SIGHUP, §4.9) can hot-swap it; every
// dependency is constructed once by the caller and is not itself swapped.
func New(cfg config.Config, d Deps) *Engine {
	e := &Engine{
		logger:      d.Logger,
		book:        d.Book,
		priceStream: d.PriceStream,
		userChannel: d.UserChannel,
		markets:     d.Markets,
		venue:       d.Venue,
		chain:       d.Chain,
		detector:    d.Detector,
		classifier:  d.Classifier,
		risk:        d.Risk,
		ledger:      d.Ledger,
		orders:      d.Orders,
		positions:   d.Positions,
		notifier:    d.Notifier,
		shocks:      newHistory[types.Shock](recentHistoryCap),
		events:      newHistory[Event](recentHistoryCap),
	}
	e.cfg.Store(&cfg)
	return e
}

// ApplyConfig hot-swaps the live config (§4.9). Open cycles are unaffected;
// they carry the cycleConfig snapshot captured at OpenCycle time.
func (e *Engine) ApplyConfig(cfg config.Config) {
	e.cfg.Store(&cfg)
}

func (e *Engine) config() config.Config {
	return *e.cfg.Load()
}

// Run starts the dispatcher loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	positionTicker := time.NewTicker(time.Second)
	defer positionTicker.Stop()

	dailyResetTimer := time.NewTimer(timeUntilMidnightUTC())
	defer dailyResetTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case update, ok := <-e.priceStream.Updates():
			if !ok {
				return nil
			}
			e.handlePriceUpdate(ctx, update)

		case fill, ok := <-e.userChannel.Fills():
			if !ok {
				return nil
			}
			e.handleFill(ctx, fill)

		case upd, ok := <-e.userChannel.Updates():
			if !ok {
				return nil
			}
			e.handleOrderUpdate(ctx, upd)

		case <-positionTicker.C:
			e.watchPositions(ctx)
			e.watchExpiries(ctx)

		case <-dailyResetTimer.C:
			e.risk.ResetDaily()
			e.logger.Info("daily risk state reset")
			dailyResetTimer.Reset(timeUntilMidnightUTC())
		}
	}
}

func timeUntilMidnightUTC() time.Duration {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.Sub(now)
}

// handlePriceUpdate feeds the book and the Shock Detector, dispatching any
// emitted Shock to the classifier in its own goroutine so the dispatch
// loop never blocks on the classification window (§4.4 step 2 is a
// multi-second burst-poll).
func (e *Engine) handlePriceUpdate(ctx context.Context, update types.PriceUpdate) {
	market, ok := e.markets.ByToken(update.TokenID)
	if !ok {
		return
	}
	shock, fired := e.detector.Observe(market.Slug, update)
	if !fired {
		return
	}
	e.logger.Info("shock detected", "market", market.Slug, "token", shock.TokenID, "z", shock.ZScore, "magnitude", shock.Magnitude)
	e.shocks.push(shock)
	e.logEvent("shock detected: market=%s token=%s z=%.2f magnitude=%s", market.Slug, shock.TokenID, shock.ZScore, shock.Magnitude.String())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatchShock(ctx, market, shock)
	}()
}

// dispatchShock runs the bounded classification window and, on
// single_event, attempts an entry.
func (e *Engine) dispatchShock(ctx context.Context, market types.Market, shock types.Shock) {
	result := e.classifier.Classify(ctx, shock)
	shock.Classification = result.Classification

	switch result.Classification {
	case types.ClassSingleEvent:
		if err := e.tryEnter(ctx, market, shock, result); err != nil {
			e.logger.Warn("entry attempt rejected", "market", market.Slug, "shock", shock.ID, "err", err)
		}
	case types.ClassScoringRun:
		e.triggerEventExit(ctx, market, "scoring_run detected on "+market.Slug)
	case types.ClassNoise, types.ClassUnclassified:
		e.logger.Debug("shock not actionable", "shock", shock.ID, "classification", result.Classification)
	}
}

// Wait blocks until every in-flight classification/entry goroutine has
// returned, for graceful shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}
