package venue

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testAuth(t *testing.T) *Auth {
	t.Helper()
	a, err := NewAuth("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", 137, Credentials{APIKey: "k", Secret: "c2VjcmV0", Passphrase: "p"})
	if err != nil {
		t.Fatalf("test auth: %v", err)
	}
	return a
}

func TestPlaceOrderDryRunNeverHitsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("dry-run must never call the network")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 10, testAuth(t), true, testLogger())
	id, err := c.PlaceOrder(context.Background(), "tok1", types.SELL, types.GTC, decimal.NewFromFloat(0.58), decimal.NewFromInt(5), false)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id == "" {
		t.Fatal("expected a synthesized dry-run order id")
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "orderID": "ord-1", "status": "live"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 10, testAuth(t), false, testLogger())
	id, err := c.PlaceOrder(context.Background(), "tok1", types.SELL, types.GTC, decimal.NewFromFloat(0.58), decimal.NewFromInt(5), false)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != "ord-1" {
		t.Fatalf("expected orderID ord-1, got %s", id)
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "errorMsg": "invalid price"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 10, testAuth(t), false, testLogger())
	_, err := c.PlaceOrder(context.Background(), "tok1", types.SELL, types.GTC, decimal.NewFromFloat(0.58), decimal.NewFromInt(5), false)
	if err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestPlaceOrderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 10, testAuth(t), false, testLogger())
	_, err := c.PlaceOrder(context.Background(), "tok1", types.SELL, types.GTC, decimal.NewFromFloat(0.58), decimal.NewFromInt(5), false)
	if err == nil {
		t.Fatal("expected rate-limited error")
	}
}

func TestCancelAllDryRun(t *testing.T) {
	c := NewClient("https://example.invalid", time.Second, 10, testAuth(t), true, testLogger())
	n, err := c.CancelAll(context.Background())
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 cancellations in dry-run, got %d", n)
	}
}

func TestTokenBucketBlocksThenAdmits(t *testing.T) {
	tb := NewTokenBucket(1, 1000) // capacity 1, fast refill for test speed
	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("second wait should succeed after fast refill: %v", err)
	}
}
