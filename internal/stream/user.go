package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

type wireFillEvent struct {
	EventType string `json:"event_type"`
	OrderID   string `json:"order_id"`
	Stage     string `json:"stage"` // MATCHED | MINED | CONFIRMED
	Price     string `json:"price"`
	Size      string `json:"size"`
	Remaining string `json:"remaining"`
	Status    string `json:"status"`
	Side      string `json:"side"`
}

type wireOrderEvent struct {
	EventType    string `json:"event_type"`
	OrderID      string `json:"order_id"`
	Type         string `json:"type"` // PLACEMENT | CANCELLATION | EXPIRED
	SizeMatched  string `json:"size_matched"`
	OriginalSize string `json:"original_size"`
}

// UserChannel is the authenticated connection delivering order-lifecycle
// events (§4.2). It is authoritative for fill confirmation and applies the
// dedup guard against the venue's MATCHED → MINED → CONFIRMED triple
// delivery for a single fill, so downstream consumers see each fill's
// terminal transition exactly once.
type UserChannel struct {
	url        string
	authHeader func() map[string]string
	logger     *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	dedupMu sync.Mutex
	seen    map[dedupKey]struct{}
	order   []dedupKey
	maxSeen int

	fills   chan types.OrderFill
	updates chan types.OrderUpdate
}

type dedupKey struct {
	orderID string
	stage   types.FillStage
}

// NewUserChannel creates a UserChannel. authHeader, if non-nil, is called
// once per connection attempt to produce the L2 auth header for the
// subscribe frame.
func NewUserChannel(wsURL string, authHeader func() map[string]string, logger *slog.Logger) *UserChannel {
	return &UserChannel{
		url:        wsURL,
		authHeader: authHeader,
		logger:     logger.With("component", "user_channel"),
		seen:       make(map[dedupKey]struct{}),
		maxSeen:    4096,
		fills:      make(chan types.OrderFill, eventBufferSize),
		updates:    make(chan types.OrderUpdate, eventBufferSize),
	}
}

// Fills returns the channel of orderFill events, already deduplicated.
func (u *UserChannel) Fills() <-chan types.OrderFill { return u.fills }

// Updates returns the channel of non-fill orderUpdate events.
func (u *UserChannel) Updates() <-chan types.OrderUpdate { return u.updates }

// Run connects and maintains the connection with exponential backoff.
// Blocks until ctx is cancelled.
func (u *UserChannel) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := u.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		u.logger.Warn("user channel disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (u *UserChannel) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	u.connMu.Lock()
	u.conn = conn
	u.connMu.Unlock()
	defer func() {
		u.connMu.Lock()
		conn.Close()
		u.conn = nil
		u.connMu.Unlock()
	}()

	auth := map[string]string{}
	if u.authHeader != nil {
		auth = u.authHeader()
	}
	if err := u.writeJSON(map[string]interface{}{"type": "user", "auth": auth}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	u.logger.Info("user channel connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go u.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		u.dispatch(msg)
	}
}

func (u *UserChannel) dispatch(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		u.logger.Debug("ignoring non-json frame")
		return
	}

	switch envelope.EventType {
	case "trade", "fill":
		var evt wireFillEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			u.logger.Error("unmarshal fill event", "error", err)
			return
		}
		fill := decodeFill(evt)
		if !u.admit(fill) {
			return
		}
		select {
		case u.fills <- fill:
		default:
			u.logger.Warn("fill channel full, dropping", "order", fill.OrderID)
		}

	case "order":
		var evt wireOrderEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			u.logger.Error("unmarshal order event", "error", err)
			return
		}
		matched, _ := decimal.NewFromString(evt.SizeMatched)
		original, _ := decimal.NewFromString(evt.OriginalSize)
		update := types.OrderUpdate{
			OrderID:      evt.OrderID,
			Type:         types.OrderEventType(evt.Type),
			SizeMatched:  matched,
			OriginalSize: original,
			Ts:           time.Now().UTC(),
		}
		select {
		case u.updates <- update:
		default:
			u.logger.Warn("order update channel full, dropping", "order", evt.OrderID)
		}

	default:
		u.logger.Debug("unknown event type", "type", envelope.EventType)
	}
}

func decodeFill(evt wireFillEvent) types.OrderFill {
	price, _ := decimal.NewFromString(evt.Price)
	size, _ := decimal.NewFromString(evt.Size)
	remaining, _ := decimal.NewFromString(evt.Remaining)
	side := types.SELL
	if evt.Side == "BUY" {
		side = types.BUY
	}
	return types.OrderFill{
		OrderID:   evt.OrderID,
		Stage:     types.FillStage(evt.Stage),
		Price:     price,
		Shares:    size,
		Remaining: remaining,
		Status:    types.LadderOrderStatus(evt.Status),
		Side:      side,
		Ts:        time.Now().UTC(),
	}
}

// admit applies the (orderId, stage) dedup guard from §4.2: a fill is
// resolved the first time a terminal stage (CONFIRMED) is seen for an
// order, and re-deliveries of any stage for an already-resolved order are
// dropped. Non-terminal stages (MATCHED, MINED) for an order not yet
// resolved are still admitted once each so callers can track intermediate
// progress, but never more than once per (orderId, stage) pair.
func (u *UserChannel) admit(fill types.OrderFill) bool {
	u.dedupMu.Lock()
	defer u.dedupMu.Unlock()

	key := dedupKey{orderID: fill.OrderID, stage: fill.Stage}
	if _, dup := u.seen[key]; dup {
		return false
	}
	resolvedKey := dedupKey{orderID: fill.OrderID, stage: types.StageConfirmed}
	if _, resolved := u.seen[resolvedKey]; resolved {
		return false
	}

	u.seen[key] = struct{}{}
	u.order = append(u.order, key)
	if len(u.order) > u.maxSeen {
		oldest := u.order[0]
		u.order = u.order[1:]
		delete(u.seen, oldest)
	}
	return true
}

func (u *UserChannel) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				u.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (u *UserChannel) writeJSON(v interface{}) error {
	u.connMu.Lock()
	defer u.connMu.Unlock()
	if u.conn == nil {
		return fmt.Errorf("user channel not connected")
	}
	u.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return u.conn.WriteJSON(v)
}

func (u *UserChannel) writeMessage(msgType int, data []byte) error {
	u.connMu.Lock()
	defer u.connMu.Unlock()
	if u.conn == nil {
		return fmt.Errorf("user channel not connected")
	}
	u.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return u.conn.WriteMessage(msgType, data)
}

// Close tears down the connection.
func (u *UserChannel) Close() error {
	u.connMu.Lock()
	defer u.connMu.Unlock()
	if u.conn != nil {
		return u.conn.Close()
	}
	return nil
}
