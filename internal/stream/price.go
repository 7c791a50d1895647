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

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// wireBookLevel mirrors the venue's level shape on the wire.
type wireBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireBookEvent struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Bids      []wireBookLevel `json:"bids"`
	Asks      []wireBookLevel `json:"asks"`
}

type wireTradeEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
}

// PriceStream is the real-time connection to the venue's public market
// channel (§4.1): best bid/ask/top-of-book depth per subscribed token,
// with transparent reconnect-with-backoff.
type PriceStream struct {
	url    string
	book   *Book
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	updates chan types.PriceUpdate
	trades  chan types.Trade
}

// NewPriceStream creates a PriceStream bound to wsURL, publishing into book.
func NewPriceStream(wsURL string, book *Book, logger *slog.Logger) *PriceStream {
	return &PriceStream{
		url:        wsURL,
		book:       book,
		logger:     logger.With("component", "price_stream"),
		subscribed: make(map[string]bool),
		updates:    make(chan types.PriceUpdate, eventBufferSize),
		trades:     make(chan types.Trade, eventBufferSize),
	}
}

// Updates returns the channel of priceUpdate events: emitted only when
// top-of-book changes, per §4.1.
func (p *PriceStream) Updates() <-chan types.PriceUpdate { return p.updates }

// Trades returns the channel of public tape prints.
func (p *PriceStream) Trades() <-chan types.Trade { return p.trades }

// Subscribe adds tokenIds to the live subscription set and, if connected,
// sends a subscribe frame immediately.
func (p *PriceStream) Subscribe(ids []string) error {
	p.subscribedMu.Lock()
	for _, id := range ids {
		p.subscribed[id] = true
	}
	p.subscribedMu.Unlock()
	return p.writeJSON(map[string]interface{}{"type": "subscribe", "assets_ids": ids})
}

// Run connects and maintains the connection with exponential backoff,
// capped at 30s (§4.1). Blocks until ctx is cancelled.
func (p *PriceStream) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := p.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.logger.Warn("price stream disconnected, reconnecting", "error", err, "backoff", backoff)
		p.markAllCold()

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

// markAllCold flags every subscribed token as cold in the Book after a
// disconnect. The Shock Detector is not told; its windows carry over the
// reconnect.
func (p *PriceStream) markAllCold() {
	p.subscribedMu.RLock()
	defer p.subscribedMu.RUnlock()
	for id := range p.subscribed {
		p.book.MarkCold(id)
	}
}

func (p *PriceStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	p.connMu.Lock()
	p.conn = conn
	p.connMu.Unlock()

	defer func() {
		p.connMu.Lock()
		conn.Close()
		p.conn = nil
		p.connMu.Unlock()
	}()

	if err := p.resubscribeAll(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	p.logger.Info("price stream connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go p.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		p.dispatch(msg)
	}
}

func (p *PriceStream) resubscribeAll() error {
	p.subscribedMu.RLock()
	ids := make([]string, 0, len(p.subscribed))
	for id := range p.subscribed {
		ids = append(ids, id)
	}
	p.subscribedMu.RUnlock()
	if len(ids) == 0 {
		return nil
	}
	return p.writeJSON(map[string]interface{}{"type": "market", "assets_ids": ids})
}

func (p *PriceStream) dispatch(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		p.logger.Debug("ignoring non-json frame")
		return
	}

	switch envelope.EventType {
	case "book", "price_change":
		var evt wireBookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			p.logger.Error("unmarshal book event", "error", err)
			return
		}
		snap := types.BookSnapshot{
			TokenID:   evt.AssetID,
			Bids:      decodeLevels(evt.Bids),
			Asks:      decodeLevels(evt.Asks),
			Timestamp: time.Now().UTC(),
		}
		if p.book.Update(snap) {
			select {
			case p.updates <- ToPriceUpdate(snap):
			default:
				p.logger.Warn("price update channel full, dropping", "token", evt.AssetID)
			}
		}

	case "trade", "last_trade_price":
		var evt wireTradeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			p.logger.Error("unmarshal trade event", "error", err)
			return
		}
		price, _ := decimal.NewFromString(evt.Price)
		size, _ := decimal.NewFromString(evt.Size)
		side := types.BUY
		if evt.Side == "SELL" {
			side = types.SELL
		}
		select {
		case p.trades <- types.Trade{TokenID: evt.AssetID, Price: price, Size: size, Side: side, Ts: time.Now().UTC()}:
		default:
			p.logger.Warn("trade channel full, dropping", "token", evt.AssetID)
		}

	case "tick_size_change", "best_bid_ask", "new_market", "market_resolved":
		p.logger.Debug("ignoring informational event", "type", envelope.EventType)
	default:
		p.logger.Debug("unknown event type", "type", envelope.EventType)
	}
}

func decodeLevels(levels []wireBookLevel) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			continue
		}
		out = append(out, types.PriceLevel{Price: price, Size: size})
	}
	return out
}

func (p *PriceStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				p.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (p *PriceStream) writeJSON(v interface{}) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn == nil {
		return fmt.Errorf("price stream not connected")
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(v)
}

func (p *PriceStream) writeMessage(msgType int, data []byte) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn == nil {
		return fmt.Errorf("price stream not connected")
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteMessage(msgType, data)
}

// Close tears down the connection.
func (p *PriceStream) Close() error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
