package venue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Client is the REST client for the off-chain limit order book (§6 Venue
// order API: placeOrder, cancelOrder, cancelAll, getOrder).
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient builds a rate-limited, retrying REST client against host.
func NewClient(host string, timeout time.Duration, rateLimitPerSec int, auth *Auth, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(rateLimitPerSec),
		dryRun: dryRun,
		logger: logger.With("component", "venue_client"),
	}
}

// orderPayload is the wire shape the venue expects for order placement.
type orderPayload struct {
	TokenID    string `json:"token_id"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	OrderType  string `json:"order_type"`
	NegRisk    bool   `json:"neg_risk"`
	Expiration string `json:"expiration,omitempty"`
}

type orderResponse struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"orderID"`
	Status    string `json:"status"`
	ErrorMsg  string `json:"errorMsg"`
}

// PlaceOrder submits a single GTC or FAK SELL order and returns the
// venue-assigned orderId synchronously; terminal state arrives later via
// the User Channel (§6).
func (c *Client) PlaceOrder(ctx context.Context, tokenID string, side types.Side, kind types.OrderKind, price, size decimal.Decimal, negRisk bool) (string, error) {
	if c.dryRun {
		id := fmt.Sprintf("dry-run-%s-%s", tokenID, price.String())
		c.logger.Info("dry-run place order", "token", tokenID, "side", side, "price", price, "size", size)
		return id, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	payload := orderPayload{
		TokenID:   tokenID,
		Side:      string(side),
		Price:     price.String(),
		Size:      size.String(),
		OrderType: string(kind),
		NegRisk:   negRisk,
	}
	headers, err := c.auth.L2Headers(http.MethodPost, "/order", "")
	if err != nil {
		return "", fmt.Errorf("venue: l2 headers: %w", err)
	}

	var result orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", ErrRateLimited, resp.String())
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), resp.String())
	}
	if !result.Success {
		return "", fmt.Errorf("%w: %s", ErrRejected, result.ErrorMsg)
	}
	return result.OrderID, nil
}

// CancelOrder cancels a single resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("dry-run cancel order", "order", orderID)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}
	headers, err := c.auth.L2Headers(http.MethodDelete, "/order", "")
	if err != nil {
		return fmt.Errorf("venue: l2 headers: %w", err)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(map[string]string{"orderID": orderID}).
		Delete("/order")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), resp.String())
	}
	return nil
}

// CancelAll cancels every open order across all markets (used on graceful
// shutdown, §5).
func (c *Client) CancelAll(ctx context.Context) (int, error) {
	if c.dryRun {
		c.logger.Info("dry-run cancel all")
		return 0, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return 0, err
	}
	headers, err := c.auth.L2Headers(http.MethodDelete, "/cancel-all", "")
	if err != nil {
		return 0, fmt.Errorf("venue: l2 headers: %w", err)
	}
	var result struct {
		Canceled []string `json:"canceled"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= 400 {
		return 0, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), resp.String())
	}
	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return len(result.Canceled), nil
}

// OrderSnapshot is the fallback polling shape for §6's getOrder, used when
// the User Channel is lagging.
type OrderSnapshot struct {
	OrderID   string
	Status    types.LadderOrderStatus
	FillPrice decimal.Decimal
	Remaining decimal.Decimal
}

// GetOrder polls the current state of an order directly, bypassing the
// User Channel.
func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return OrderSnapshot{}, err
	}
	var wire struct {
		OrderID   string `json:"orderID"`
		Status    string `json:"status"`
		FillPrice string `json:"price"`
		Remaining string `json:"size_remaining"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("order_id", orderID).
		SetResult(&wire).
		Get("/order")
	if err != nil {
		return OrderSnapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= 400 {
		return OrderSnapshot{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), resp.String())
	}
	fillPrice, _ := decimal.NewFromString(wire.FillPrice)
	remaining, _ := decimal.NewFromString(wire.Remaining)
	return OrderSnapshot{
		OrderID:   wire.OrderID,
		Status:    types.LadderOrderStatus(wire.Status),
		FillPrice: fillPrice,
		Remaining: remaining,
	}, nil
}

// GetOrderBook fetches the current L2 book for a token over REST. Nothing
// in the repository calls it.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (types.BookSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.BookSnapshot{}, err
	}
	var wire struct {
		Bids []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"asks"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&wire).
		Get("/book")
	if err != nil {
		return types.BookSnapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= 400 {
		return types.BookSnapshot{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), resp.String())
	}

	snap := types.BookSnapshot{TokenID: tokenID, Timestamp: time.Now().UTC()}
	for _, b := range wire.Bids {
		p, _ := decimal.NewFromString(b.Price)
		s, _ := decimal.NewFromString(b.Size)
		snap.Bids = append(snap.Bids, types.PriceLevel{Price: p, Size: s})
	}
	for _, a := range wire.Asks {
		p, _ := decimal.NewFromString(a.Price)
		s, _ := decimal.NewFromString(a.Size)
		snap.Asks = append(snap.Asks, types.PriceLevel{Price: p, Size: s})
	}
	return snap, nil
}

// DeriveAPIKey bootstraps L2 credentials from the L1 wallet signature
// (used by cmd/setup-keys).
func (c *Client) DeriveAPIKey(ctx context.Context) (Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return Credentials{}, fmt.Errorf("venue: l1 headers: %w", err)
	}
	var result struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= 400 {
		return Credentials{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), resp.String())
	}
	creds := Credentials{APIKey: result.APIKey, Secret: result.Secret, Passphrase: result.Passphrase}
	c.auth.SetCredentials(creds)
	return creds, nil
}
