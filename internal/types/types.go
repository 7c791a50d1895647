// Package types is the common vocabulary for the trading engine: market
// metadata, order book snapshots, and the entity shapes described by the
// data model. It has no dependencies on other internal packages so any
// layer can import it.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order. The engine only ever sells.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderKind distinguishes resting GTC orders from fill-or-kill last resorts.
type OrderKind string

const (
	GTC OrderKind = "GTC"
	FAK OrderKind = "FAK"
)

// MarketState tracks a Market's lifecycle as reported by discovery.
type MarketState string

const (
	MarketUpcoming MarketState = "upcoming"
	MarketActive   MarketState = "active"
	MarketSettled  MarketState = "settled"
)

// Sport enumerates the score-feed adapters the classifier can address.
type Sport string

const (
	SportBasketball Sport = "basketball"
	SportFootball   Sport = "football"
	SportBaseball   Sport = "baseball"
	SportHockey     Sport = "hockey"
	SportSoccer     Sport = "soccer"
)

// Direction is the sign of a shock's price move.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
)

// Classification is the Classifier's verdict on a Shock.
type Classification string

const (
	ClassSingleEvent  Classification = "single_event"
	ClassScoringRun   Classification = "scoring_run"
	ClassNoise        Classification = "noise"
	ClassUnclassified Classification = "unclassified"
)

// LadderOrderStatus is the lifecycle of a single ladder leg.
type LadderOrderStatus string

const (
	OrderPending   LadderOrderStatus = "PENDING"
	OrderFilled    LadderOrderStatus = "FILLED"
	OrderCancelled LadderOrderStatus = "CANCELLED"
	OrderExpired   LadderOrderStatus = "EXPIRED"
)

// Leg distinguishes a ladder's entry orders from its exit orders.
type Leg string

const (
	LegEntry Leg = "ENTRY"
	LegExit  Leg = "EXIT"
)

// PositionStatus is the FadePosition state machine (§4.6).
type PositionStatus string

const (
	PositionOpen        PositionStatus = "OPEN"
	PositionTakeProfit  PositionStatus = "TAKE_PROFIT"
	PositionHedged      PositionStatus = "HEDGED"
	PositionEventExit   PositionStatus = "EVENT_EXIT"
	PositionClosed      PositionStatus = "CLOSED"
	PositionUnreconciled PositionStatus = "UNRECONCILED"
)

// CumulativeTPStatus is the per-cycle take-profit tracker's status.
type CumulativeTPStatus string

const (
	TPWatching  CumulativeTPStatus = "WATCHING"
	TPPartial   CumulativeTPStatus = "PARTIAL"
	TPHit       CumulativeTPStatus = "HIT"
	TPEventExit CumulativeTPStatus = "EVENT_EXIT"
	TPTimeout   CumulativeTPStatus = "TIMEOUT"
)

// CycleState is derived from its member orders/positions, never stored directly.
type CycleState string

const (
	CycleActive   CycleState = "ACTIVE"
	CycleTerminal CycleState = "TERMINAL"
)

// Market is a binary moneyline contract: a pair of complementary outcome tokens.
type Market struct {
	Slug          string
	Sport         Sport
	ConditionID   string // 32-byte hex
	TokenIDs      [2]string
	Outcomes      [2]string
	NegRisk       bool
	GameStartTime time.Time
	State         MarketState
}

// Complement returns the other tokenId in the pair, or "" if tokenID is unknown.
func (m Market) Complement(tokenID string) string {
	switch tokenID {
	case m.TokenIDs[0]:
		return m.TokenIDs[1]
	case m.TokenIDs[1]:
		return m.TokenIDs[0]
	default:
		return ""
	}
}

// Shock is a detected, statistically unusual price move on one outcome token.
type Shock struct {
	ID             string
	TokenID        string
	MarketSlug     string
	Direction      Direction
	Magnitude      decimal.Decimal
	ZScore         float64
	PrePrice       decimal.Decimal
	PostPrice      decimal.Decimal
	Ts             time.Time
	Classification Classification // set once, by the Classifier
}

// ScoringEvent is a single play reported by a Score Feed adapter.
type ScoringEvent struct {
	Team        string
	Period      int
	Clock       string
	Description string
	Ts          time.Time
}

// LadderOrder is one leg (entry or exit) of a trading cycle's sell ladder.
type LadderOrder struct {
	ID         string // venue-assigned
	TokenID    string
	MarketSlug string
	Side       Side
	Leg        Leg
	Level      int
	Price      decimal.Decimal
	Shares     decimal.Decimal
	Status     LadderOrderStatus
	CreatedAt  time.Time
	FillPrice  decimal.Decimal
	FilledAt   time.Time
	ShockID    string
	SplitCost  decimal.Decimal
}

// FadePosition is the held-token side opened when an entry LadderOrder fills.
type FadePosition struct {
	ID              string
	MarketSlug      string
	SoldTokenID     string
	SoldPrice       decimal.Decimal
	SoldShares      decimal.Decimal
	HeldTokenID     string
	HeldShares      decimal.Decimal
	SplitCost       decimal.Decimal
	EntryTime       time.Time
	TakeProfitPrice decimal.Decimal
	Status          PositionStatus
	ExitPrice       decimal.Decimal
	ExitTime        time.Time
	RealizedPnl     decimal.Decimal
	ShockID         string
	OrderID         string // the entry LadderOrder whose fill opened this position
	ExitOrderID     string // the EXIT LadderOrder placed to close it, once triggered
}

// CumulativeTakeProfit is the size-weighted exit target for a cycle's entries.
type CumulativeTakeProfit struct {
	CycleID          string
	HeldTokenID      string
	ShockTeam        string // team whose scoring caused the shock, if resolvable
	TPPrice          decimal.Decimal
	TotalEntryShares decimal.Decimal
	FilledTPShares   decimal.Decimal
	Status           CumulativeTPStatus
}

// Cycle groups the LadderOrders and FadePositions born from one Shock in one market.
type Cycle struct {
	ID         string
	ShockID    string
	MarketSlug string
	OrderIDs   []string
	PositionID string // at most one, per the at-most-one-cycle-per-shock invariant
	OpenedAt   time.Time
	// ConfigSnapshot pins the config this cycle was opened under (§4.9, §9).
	ConfigSnapshot interface{}
}

// InventorySlot is the per-token bookkeeping row owned exclusively by the
// Trade Engine: held = free + committedOnSell + openPosition.
type InventorySlot struct {
	TokenID         string
	Held            decimal.Decimal
	CommittedOnSell decimal.Decimal
	OpenPosition    decimal.Decimal
}

// Free returns held shares that are neither resting on a sell order nor
// locked inside an OPEN FadePosition awaiting its take-profit trigger.
func (s InventorySlot) Free() decimal.Decimal {
	return s.Held.Sub(s.CommittedOnSell).Sub(s.OpenPosition)
}

// PriceLevel is one resting book level; price/size as decimals, following
// the venue convention of representing both as exact decimal strings.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSnapshot is a point-in-time best-bid/best-ask/top-K view for one token.
type BookSnapshot struct {
	TokenID   string
	Bids      []PriceLevel // sorted descending by price
	Asks      []PriceLevel // sorted ascending by price
	Timestamp time.Time
}

// BestBid returns the top bid price, or zero if the book has no bids.
func (b BookSnapshot) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, or zero if the book has no asks.
func (b BookSnapshot) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// Mid returns the midpoint of best bid and best ask, or zero if either side is empty.
func (b BookSnapshot) Mid() decimal.Decimal {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.BestBid().Add(b.BestAsk()).Div(decimal.NewFromInt(2))
}

// PriceUpdate is emitted only when top-of-book changes for a token.
type PriceUpdate struct {
	TokenID string
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	Ts      time.Time
}

// Mid returns the midpoint of bid and ask.
func (p PriceUpdate) Mid() decimal.Decimal {
	return p.Bid.Add(p.Ask).Div(decimal.NewFromInt(2))
}

// Trade is a public tape print on a token, not necessarily ours.
type Trade struct {
	TokenID string
	Price   decimal.Decimal
	Size    decimal.Decimal
	Side    Side
	Ts      time.Time
}

// OrderEventType enumerates the User Channel's order-lifecycle notifications.
type OrderEventType string

const (
	OrderEventPlaced      OrderEventType = "PLACEMENT"
	OrderEventCancellation OrderEventType = "CANCELLATION"
	OrderEventExpired     OrderEventType = "EXPIRED"
)

// OrderUpdate is a non-fill lifecycle notification from the User Channel.
type OrderUpdate struct {
	OrderID      string
	Type         OrderEventType
	SizeMatched  decimal.Decimal
	OriginalSize decimal.Decimal
	Ts           time.Time
}

// FillStage is the venue's triple-delivery lifecycle stage for a single fill.
type FillStage string

const (
	StageMatched   FillStage = "MATCHED"
	StageMined     FillStage = "MINED"
	StageConfirmed FillStage = "CONFIRMED"
)

// OrderFill is a fill notification, possibly re-delivered across stages.
type OrderFill struct {
	OrderID   string
	Stage     FillStage
	Price     decimal.Decimal
	Shares    decimal.Decimal
	Remaining decimal.Decimal
	Status    LadderOrderStatus
	Side      Side
	Ts        time.Time
}
