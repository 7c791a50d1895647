// Package scorefeed polls free league data sources for scoring events and
// exposes a per-market burst-poll mode the Classifier drives during its
// bounded classification window (§3, §4.4).
//
// The periodic sync/Run(ctx) ticker-loop shape is grounded on the teacher's
// internal/builder/tracker.go VolumeTracker; the pluggable-adapter-per-sport
// design and the burst/background dual cadence are new, since no pack repo
// polls a sports scoring feed.
package scorefeed

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Adapter fetches the current scoring events for one market from an
// external league data source. Implementations are per-sport (NBA, NFL,
// soccer, ...); FetchEvents should be side-effect free and safe to call at
// a 1s burst cadence.
type Adapter interface {
	FetchEvents(ctx context.Context, marketSlug string) ([]types.ScoringEvent, error)
}

// Feed polls Adapter at a background cadence for all subscribed markets and
// supports a faster burst-poll mode for markets currently in a
// classification window.
type Feed struct {
	adapter          Adapter
	backgroundPeriod time.Duration
	burstPeriod      time.Duration
	logger           *slog.Logger

	mu      sync.RWMutex
	events  map[string][]types.ScoringEvent // marketSlug -> recent events, newest last
	maxKeep int
}

// New builds a Feed backed by adapter, polling subscribed markets at
// backgroundPeriod and burst-polling at burstPeriod during classification.
func New(adapter Adapter, backgroundPeriod, burstPeriod time.Duration, logger *slog.Logger) *Feed {
	return &Feed{
		adapter:          adapter,
		backgroundPeriod: backgroundPeriod,
		burstPeriod:      burstPeriod,
		logger:           logger.With("component", "scorefeed"),
		events:           make(map[string][]types.ScoringEvent),
		maxKeep:          200,
	}
}

func (f *Feed) record(marketSlug string, events []types.ScoringEvent) {
	if len(events) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool, len(f.events[marketSlug]))
	for _, e := range f.events[marketSlug] {
		seen[eventKey(e)] = true
	}
	for _, e := range events {
		if seen[eventKey(e)] {
			continue
		}
		f.events[marketSlug] = append(f.events[marketSlug], e)
		seen[eventKey(e)] = true
	}
	if n := len(f.events[marketSlug]); n > f.maxKeep {
		f.events[marketSlug] = f.events[marketSlug][n-f.maxKeep:]
	}
}

func eventKey(e types.ScoringEvent) string {
	return e.Team + "|" + strconv.Itoa(e.Period) + "|" + e.Clock + "|" + e.Description
}

// RecentEvents returns every event recorded for marketSlug since cutoff.
func (f *Feed) RecentEvents(marketSlug string, cutoff time.Time) []types.ScoringEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []types.ScoringEvent
	for _, e := range f.events[marketSlug] {
		if !e.Ts.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Poll fetches and records events for marketSlug once.
func (f *Feed) Poll(ctx context.Context, marketSlug string) error {
	events, err := f.adapter.FetchEvents(ctx, marketSlug)
	if err != nil {
		return err
	}
	f.record(marketSlug, events)
	return nil
}

// Run background-polls every subscribed market at backgroundPeriod until
// ctx is cancelled.
func (f *Feed) Run(ctx context.Context, marketSlugs func() []string) {
	ticker := time.NewTicker(f.backgroundPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, slug := range marketSlugs() {
				if err := f.Poll(ctx, slug); err != nil {
					f.logger.Warn("background poll failed", "market", slug, "error", err)
				}
			}
		}
	}
}

// BurstPoll polls marketSlug at f.burstPeriod for duration, used by the
// Classifier's bounded classification window (§4.4 step 2). It returns once
// duration elapses or ctx is cancelled.
func (f *Feed) BurstPoll(ctx context.Context, marketSlug string, duration time.Duration) {
	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(f.burstPeriod)
	defer ticker.Stop()
	if err := f.Poll(ctx, marketSlug); err != nil {
		f.logger.Warn("burst poll failed", "market", marketSlug, "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				return
			}
			if err := f.Poll(ctx, marketSlug); err != nil {
				f.logger.Warn("burst poll failed", "market", marketSlug, "error", err)
			}
		}
	}
}
