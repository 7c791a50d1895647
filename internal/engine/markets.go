package engine

import (
	"sync"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// MarketRegistry resolves a token ID to its Market (for Complement lookup,
// NegRisk flag, and state checks) and enumerates tracked token IDs for the
// Price Stream subscription. It is populated by discovery/config, not by
// the engine itself.
type MarketRegistry struct {
	mu       sync.RWMutex
	byToken  map[string]types.Market
	bySlug   map[string]types.Market
}

// NewMarketRegistry returns an empty registry.
func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		byToken: make(map[string]types.Market),
		bySlug:  make(map[string]types.Market),
	}
}

// Upsert adds or replaces a tracked market.
func (r *MarketRegistry) Upsert(m types.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySlug[m.Slug] = m
	r.byToken[m.TokenIDs[0]] = m
	r.byToken[m.TokenIDs[1]] = m
}

// ByToken looks up the market owning tokenID.
func (r *MarketRegistry) ByToken(tokenID string) (types.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byToken[tokenID]
	return m, ok
}

// BySlug looks up a market by its slug.
func (r *MarketRegistry) BySlug(slug string) (types.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.bySlug[slug]
	return m, ok
}

// SetState updates a tracked market's lifecycle state, e.g. on a
// resolution or discovery rescan event.
func (r *MarketRegistry) SetState(slug string, state types.MarketState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.bySlug[slug]
	if !ok {
		return
	}
	m.State = state
	r.bySlug[slug] = m
	r.byToken[m.TokenIDs[0]] = m
	r.byToken[m.TokenIDs[1]] = m
}

// TokenIDs returns every token ID currently tracked, for subscription.
func (r *MarketRegistry) TokenIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byToken))
	for id := range r.byToken {
		out = append(out, id)
	}
	return out
}

// Slugs returns every tracked market slug, for Score Feed polling targets.
func (r *MarketRegistry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bySlug))
	for s := range r.bySlug {
		out = append(out, s)
	}
	return out
}
