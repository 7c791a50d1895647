// Package stream maintains per-token order book state from the venue's
// real-time Price Stream and decodes the authenticated User Channel's order
// lifecycle events (§4.1, §4.2). Both feeds reconnect independently with
// exponential backoff. The Price Stream marks its tokens "cold" in the Book
// across a reconnect; nothing forwards that mark to the Shock Detector, whose
// windows and warm-up carry over the reconnect.
package stream

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Book tracks the latest snapshot per tokenId and publishes a priceUpdate
// only when top-of-book actually changes, per §4.1's contract.
type Book struct {
	mu     sync.RWMutex
	books  map[string]types.BookSnapshot
	cold   map[string]bool // true immediately after (re)connect, until first frame
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{
		books: make(map[string]types.BookSnapshot),
		cold:  make(map[string]bool),
	}
}

// MarkCold flags tokenId's state as post-reconnect until the next Update for
// it arrives. Update replaces the whole snapshot whether or not the token is
// cold, and nothing outside this package reads the flag.
func (b *Book) MarkCold(tokenID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cold[tokenID] = true
}

// IsCold reports whether tokenID has not yet received a post-reconnect frame.
func (b *Book) IsCold(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cold[tokenID]
}

// Update replaces the snapshot for a token and reports whether top-of-book
// changed relative to the previous snapshot (nil previous counts as a
// change). The cold flag, if set, is cleared.
func (b *Book) Update(snap types.BookSnapshot) (changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, had := b.books[snap.TokenID]
	b.books[snap.TokenID] = snap
	delete(b.cold, snap.TokenID)

	if !had {
		return true
	}
	return !prev.BestBid().Equal(snap.BestBid()) || !prev.BestAsk().Equal(snap.BestAsk())
}

// Snapshot returns the current BookSnapshot for tokenID, or false if none
// has arrived yet.
func (b *Book) Snapshot(tokenID string) (types.BookSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.books[tokenID]
	return s, ok
}

// Mid returns the current midpoint price for tokenID, or zero decimal if
// unknown.
func (b *Book) Mid(tokenID string) decimal.Decimal {
	s, ok := b.Snapshot(tokenID)
	if !ok {
		return decimal.Zero
	}
	return s.Mid()
}

// TokenIDs returns the set of tokens with at least one snapshot.
func (b *Book) TokenIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.books))
	for id := range b.books {
		ids = append(ids, id)
	}
	return ids
}

// ToPriceUpdate derives a PriceUpdate event from a snapshot, for callers
// that need to publish one to the Shock Detector.
func ToPriceUpdate(snap types.BookSnapshot) types.PriceUpdate {
	return types.PriceUpdate{
		TokenID: snap.TokenID,
		Bid:     snap.BestBid(),
		Ask:     snap.BestAsk(),
		Ts:      snap.Timestamp,
	}
}
