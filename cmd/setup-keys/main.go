// Command setup-keys derives a venue L2 API key triplet (key, secret,
// passphrase) from a wallet's L1 private key, by signing the venue's
// EIP-712 ClobAuth message and submitting it over Client.DeriveAPIKey. Run
// this once per wallet before starting cmd/engine in live mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/venue"
)

// polygonChainID is the chain the venue's EIP-712 domain signs against.
const polygonChainID = 137

func main() {
	host := flag.String("host", "https://clob.example.com", "venue REST host")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	pk := strings.TrimSpace(os.Getenv("POLYMARKET_PK"))
	if pk == "" {
		log.Fatal("POLYMARKET_PK environment variable (your wallet private key) is required")
	}

	auth, err := venue.NewAuth(pk, polygonChainID, venue.Credentials{})
	if err != nil {
		log.Fatalf("invalid private key: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	client := venue.NewClient(*host, *timeout, 1, auth, false, logger)

	creds, err := client.DeriveAPIKey(context.Background())
	if err != nil {
		log.Fatalf("derive API key: %v", err)
	}

	fmt.Println("=== venue API credentials derived ===")
	fmt.Println()
	fmt.Printf("export ENGINE_VENUE_API_KEY=%q\n", creds.APIKey)
	fmt.Printf("export ENGINE_VENUE_API_SECRET=%q\n", creds.Secret)
	fmt.Printf("export ENGINE_VENUE_API_PASSPHRASE=%q\n", creds.Passphrase)
	fmt.Println()
	fmt.Println("Export the three lines above alongside POLYMARKET_PK, then run: ./engine -config config.yaml")
}
