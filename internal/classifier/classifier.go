// Package classifier implements the two-phase shock classifier (§4.4): each
// Shock opens a bounded classification window that burst-polls the Score
// Feed and tracks a per-market recent-shocks deque, then labels the shock
// single_event / scoring_run / noise / unclassified.
//
// The ticker-driven window shape is grounded on the teacher's
// internal/builder/tracker.go Run(ctx) loop (adapted from an unbounded
// background sync to a one-shot bounded window per shock); the
// recent-shocks deque eviction is grounded on
// internal/strategy/flow.go's bounded-window eviction style.
package classifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/scorefeed"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Config holds the Classifier's tunables (§4.4, §9 defaults).
type Config struct {
	ClassificationWindow time.Duration // e.g. 10s
	EventLookback        time.Duration // ±15s around shock.Ts
	RecentShockWindow     time.Duration // 60s
	RunThreshold         int           // N, e.g. 2
}

// Result is the Classifier's verdict, emitted at window close (§4.4 step 5).
type Result struct {
	ShockID        string
	Classification types.Classification
	LatencyMs      int64
	ShockTeam      string // the team whose scoring matched the shock direction, if resolvable
}

type shockRecord struct {
	id string
	ts time.Time
}

// Classifier tracks recent shocks per market and classifies each new Shock
// against the Score Feed.
type Classifier struct {
	cfg   Config
	feed  *scorefeed.Feed
	clock func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	recent map[string][]shockRecord // marketSlug -> deque, oldest first
}

// New builds a Classifier backed by feed.
func New(cfg Config, feed *scorefeed.Feed, logger *slog.Logger) *Classifier {
	return &Classifier{
		cfg:    cfg,
		feed:   feed,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "classifier"),
		recent: make(map[string][]shockRecord),
	}
}

func (c *Classifier) recordShock(shock types.Shock) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := shock.Ts.Add(-c.cfg.RecentShockWindow)
	deque := c.recent[shock.MarketSlug]
	i := 0
	for i < len(deque) && deque[i].ts.Before(cutoff) {
		i++
	}
	deque = deque[i:]
	deque = append(deque, shockRecord{id: shock.ID, ts: shock.Ts})
	c.recent[shock.MarketSlug] = deque
	return len(deque)
}

// Classify runs the full two-phase protocol for shock: records it in the
// recent-shocks deque, burst-polls the Score Feed for cfg.ClassificationWindow,
// and returns the verdict. Blocks for up to cfg.ClassificationWindow unless
// ctx is cancelled first.
func (c *Classifier) Classify(ctx context.Context, shock types.Shock) Result {
	start := c.clock()
	deque := c.recordShock(shock)

	windowCtx, cancel := context.WithTimeout(ctx, c.cfg.ClassificationWindow)
	defer cancel()
	c.feed.BurstPoll(windowCtx, shock.MarketSlug, c.cfg.ClassificationWindow)

	lowCutoff := shock.Ts.Add(-c.cfg.EventLookback)
	highCutoff := shock.Ts.Add(c.cfg.EventLookback)
	var inWindow []types.ScoringEvent
	for _, e := range c.feed.RecentEvents(shock.MarketSlug, lowCutoff) {
		if !e.Ts.After(highCutoff) {
			inWindow = append(inWindow, e)
		}
	}

	label, shockTeam := c.decide(shock, deque, inWindow)
	return Result{
		ShockID:        shock.ID,
		Classification: label,
		LatencyMs:      c.clock().Sub(start).Milliseconds(),
		ShockTeam:      shockTeam,
	}
}

func (c *Classifier) decide(shock types.Shock, recentShockCount int, eventsInWindow []types.ScoringEvent) (types.Classification, string) {
	if len(eventsInWindow) == 1 && recentShockCount <= c.cfg.RunThreshold {
		return types.ClassSingleEvent, eventsInWindow[0].Team
	}
	if recentShockCount >= c.cfg.RunThreshold+1 && len(eventsInWindow) >= 1 {
		return types.ClassScoringRun, ""
	}
	if len(eventsInWindow) == 0 {
		return types.ClassNoise, ""
	}
	return types.ClassUnclassified, ""
}
