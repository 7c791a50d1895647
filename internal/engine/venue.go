package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// VenueClient is the subset of venue.Client the Trade Engine drives
// directly, narrowed to an interface so paper.Simulator can stand in for
// it under TradingMode=paper (§9 Open Question, resolved in DESIGN.md).
type VenueClient interface {
	PlaceOrder(ctx context.Context, tokenID string, side types.Side, kind types.OrderKind, price, size decimal.Decimal, negRisk bool) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// ChainClient is the subset of chain.Client the Trade Engine drives to
// keep the spiked token's free inventory above the ladder notional (§4.8).
type ChainClient interface {
	Split(ctx context.Context, conditionID common.Hash, collateralAmount decimal.Decimal) (common.Hash, error)
	Merge(ctx context.Context, conditionID common.Hash, shareAmount decimal.Decimal) (common.Hash, error)
}

// FillSource is the subset of stream.UserChannel the dispatcher reads from.
// Narrowed to an interface, like VenueClient/ChainClient, so paper.Simulator
// can stand in for the live User Channel under TradingMode=paper: its
// PlaceOrder/CancelOrder both drive the fill and feed this same source.
type FillSource interface {
	Fills() <-chan types.OrderFill
	Updates() <-chan types.OrderUpdate
}
