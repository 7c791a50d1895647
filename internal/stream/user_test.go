package stream

import (
	"log/slog"
	"os"
	"testing"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestUserChannelDedupTripleDelivery exercises scenario 4 from §8: the
// venue emits MATCHED → MINED → CONFIRMED for the same fill, and the
// engine must see exactly one admitted event per stage, with nothing
// admitted once CONFIRMED has been seen.
func TestUserChannelDedupTripleDelivery(t *testing.T) {
	u := NewUserChannel("wss://example.invalid", nil, testLogger())

	matched := types.OrderFill{OrderID: "ord1", Stage: types.StageMatched}
	mined := types.OrderFill{OrderID: "ord1", Stage: types.StageMined}
	confirmed := types.OrderFill{OrderID: "ord1", Stage: types.StageConfirmed}

	if !u.admit(matched) {
		t.Fatal("expected first MATCHED to be admitted")
	}
	if !u.admit(mined) {
		t.Fatal("expected first MINED to be admitted")
	}
	if !u.admit(confirmed) {
		t.Fatal("expected first CONFIRMED to be admitted")
	}

	// Re-delivery of all three stages must now be fully suppressed.
	if u.admit(matched) {
		t.Fatal("re-delivered MATCHED must be suppressed once CONFIRMED is resolved")
	}
	if u.admit(mined) {
		t.Fatal("re-delivered MINED must be suppressed once CONFIRMED is resolved")
	}
	if u.admit(confirmed) {
		t.Fatal("re-delivered CONFIRMED must be suppressed")
	}
}

func TestUserChannelDedupDistinctOrdersIndependent(t *testing.T) {
	u := NewUserChannel("wss://example.invalid", nil, testLogger())

	if !u.admit(types.OrderFill{OrderID: "a", Stage: types.StageConfirmed}) {
		t.Fatal("expected order a to be admitted")
	}
	if !u.admit(types.OrderFill{OrderID: "b", Stage: types.StageConfirmed}) {
		t.Fatal("expected order b to be admitted independently of order a")
	}
}
