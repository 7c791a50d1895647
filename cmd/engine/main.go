// Command engine is the shock-and-fade trading engine's entrypoint: it
// wires config, market data streams, the venue/chain clients (or the
// paper execution path under trading_mode=paper), the Trade Engine
// dispatcher, the Dashboard Adapter, the periodic state snapshotter, and
// the Telegram notifier, then runs until SIGINT/SIGTERM. SIGHUP reloads
// the config file in place (§4.9).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/chain"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/classifier"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/config"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/dashboard"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/detector"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/engine"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/execution"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/ledger"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/notify"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/paper"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/persistence"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/risk"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/scorefeed"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/stream"
	"github.com/ic-nightfury/shock-and-fade-sub002/internal/venue"
)

// polygonChainID is the chain the venue's L1 signatures and the Chain
// Client's on-chain submissions target.
const polygonChainID = 137

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	marketsPath := flag.String("markets", "markets.yaml", "path to the static market roster file")
	flag.Parse()

	loader := config.NewLoader(*cfgPath)
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("shock-and-fade engine starting", "trading_mode", cfg.TradingMode, "dry_run", cfg.DryRun)

	if cfg.TradingMode != "paper" && strings.TrimSpace(cfg.Venue.PrivateKey) == "" {
		logger.Error("live trading_mode requires venue.private_key")
		os.Exit(1)
	}

	markets, err := loadRoster(*marketsPath)
	if err != nil {
		logger.Error("market roster load failed", "err", err)
		os.Exit(1)
	}
	registry := engine.NewMarketRegistry()
	for _, m := range markets {
		registry.Upsert(m)
	}
	logger.Info("market roster loaded", "markets", len(markets))

	book := stream.NewBook()
	priceStream := stream.NewPriceStream(wsURL(cfg.Venue.Host, "/ws/market"), book, logger)
	// Subscribe records the desired token set even while disconnected;
	// Run's resubscribeAll replays it once the websocket connects.
	if err := priceStream.Subscribe(registry.TokenIDs()); err != nil {
		logger.Debug("initial subscribe deferred until connect", "err", err)
	}

	var auth *venue.Auth
	if cfg.TradingMode != "paper" {
		auth, err = venue.NewAuth(cfg.Venue.PrivateKey, polygonChainID, venue.Credentials{
			APIKey:     cfg.Venue.APIKey,
			Secret:     cfg.Venue.APISecret,
			Passphrase: cfg.Venue.APIPassphrase,
		})
		if err != nil {
			logger.Error("venue auth setup failed", "err", err)
			os.Exit(1)
		}
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	var venueClient engine.VenueClient
	var fillSource engine.FillSource
	var chainClient engine.ChainClient
	var simulator *paper.Simulator

	switch cfg.TradingMode {
	case "paper":
		simulator = paper.NewSimulator(paper.Config{
			InitialBalanceUSDC: cfg.Paper.InitialBalanceUSDC,
			FeeBps:             cfg.Paper.FeeBps,
			SlippageBps:        cfg.Paper.SlippageBps,
		}, book, logger)
		venueClient = simulator
		fillSource = simulator
	default:
		venueClient = venue.NewClient(cfg.Venue.Host, cfg.Venue.RequestTimeout, cfg.Venue.RateLimitPerSec, auth, cfg.DryRun, logger)

		userChannel := stream.NewUserChannel(wsURL(cfg.Venue.Host, "/ws/user"), auth.WSAuthPayload, logger)
		fillSource = userChannel
		go runStream(runCtx, "user channel", userChannel.Run, logger)

		rpc, err := ethclient.Dial(cfg.Chain.RPCURL)
		if err != nil {
			logger.Error("chain rpc dial failed", "err", err)
			os.Exit(1)
		}
		cc, err := chain.NewClient(rpc, cfg.Venue.PrivateKey, polygonChainID,
			common.HexToAddress(cfg.Chain.SafeAddress),
			common.HexToAddress(cfg.Chain.CTFAddress),
			common.HexToAddress(cfg.Chain.SettlementToken),
			logger)
		if err != nil {
			logger.Error("chain client setup failed", "err", err)
			os.Exit(1)
		}
		chainClient = cc
	}

	feed := scorefeed.New(unimplementedAdapter{}, cfg.ScoreFeed.PollInterval, msDuration(cfg.Classifier.ClassifyIntervalMs), logger)

	det := detector.New(detector.Config{
		RollingWindow:    msDuration(cfg.Detector.RollingWindowMs),
		WarmupMinSamples: cfg.Detector.MinSamples,
		SigmaThreshold:   cfg.Detector.SigmaThreshold,
		MinAbsoluteMove:  decimal.NewFromFloat(cfg.Detector.MinAbsoluteMove),
		CooldownMs:       msDuration(cfg.Detector.CooldownMs),
		TargetPriceLow:   decimal.NewFromFloat(cfg.Detector.TargetPriceLow),
		TargetPriceHigh:  decimal.NewFromFloat(cfg.Detector.TargetPriceHigh),
		StdDevFloor:      cfg.Detector.SigmaFloor,
	})

	clsf := classifier.New(classifier.Config{
		ClassificationWindow: msDuration(cfg.Classifier.ClassifyWindowMs),
		EventLookback:        msDuration(cfg.Classifier.EventMatchWindowMs),
		RecentShockWindow:    msDuration(cfg.Classifier.RecentShocksMaxAge),
		RunThreshold:         cfg.Classifier.RunThreshold,
	}, feed, logger)

	riskMgr := risk.New(risk.Config{
		MaxCyclesPerMarket:      cfg.Ladder.MaxCyclesPerMarket,
		MaxGlobalCycles:         cfg.Ladder.MaxGlobalCycles,
		MaxClassifyMs:           cfg.Classifier.MaxClassifyMs,
		MaxConsecutiveLosses:    cfg.Risk.MaxConsecutiveLosses,
		ConsecutiveLossCooldown: cfg.Risk.ConsecutiveLossCooldown,
		MaxDailyLossUSDC:        decimal.NewFromFloat(cfg.Risk.MaxDailyLossUSDC),
	})
	if cfg.Risk.EmergencyStop {
		riskMgr.SetEmergencyStop(true)
	}

	notifier := notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)

	eng := engine.New(cfg, engine.Deps{
		Logger:      logger,
		Book:        book,
		PriceStream: priceStream,
		UserChannel: fillSource,
		Markets:     registry,
		Venue:       venueClient,
		Chain:       chainClient,
		Detector:    det,
		Classifier:  clsf,
		Risk:        riskMgr,
		Ledger:      ledger.New(),
		Orders:      execution.NewOrderBook(),
		Positions:   execution.NewPositionBook(),
		Notifier:    notifier,
	})

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(cfg.Dashboard.Addr, eng, logger)
		if err := dash.Start(context.Background()); err != nil {
			logger.Error("dashboard start failed", "err", err)
			os.Exit(1)
		}
	}

	store, err := persistence.Open(cfg.Persistence.SnapshotPath)
	if err != nil {
		logger.Error("persistence store setup failed", "err", err)
		os.Exit(1)
	}
	if prior, err := store.Load(); err != nil {
		logger.Warn("previous snapshot unreadable", "err", err)
	} else if !prior.WrittenAt.IsZero() {
		logger.Info("previous snapshot found", "written_at", prior.WrittenAt,
			"open_positions", len(prior.OpenPositions), "closed_positions", len(prior.ClosedPositions))
	}

	go runStream(runCtx, "price stream", priceStream.Run, logger)
	go store.Run(runCtx, eng, cfg.Persistence.SnapshotInterval, logger)

	engineErrCh := make(chan error, 1)
	go func() { engineErrCh <- eng.Run(runCtx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

loop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloaded, err := loader.Reload()
				if err != nil {
					logger.Warn("config reload failed, keeping current config", "err", err)
					continue
				}
				eng.ApplyConfig(reloaded)
				logger.Info("config reloaded")
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			break loop
		case err := <-engineErrCh:
			if err != nil {
				logger.Error("engine stopped unexpectedly", "err", err)
			}
			break loop
		}
	}

	cancelRun()
	eng.Wait()
	if simulator != nil {
		simulator.Wait()
	}
	if err := store.Save(eng); err != nil {
		logger.Warn("final snapshot save failed", "err", err)
	}
	if dash != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dash.Shutdown(shutdownCtx); err != nil {
			logger.Warn("dashboard shutdown failed", "err", err)
		}
	}

	stats := eng.Stats()
	logger.Info("engine shutdown complete", "closed_trades", stats.ClosedTrades, "realized_pnl", stats.RealizedPnL)
}

// runStream runs a stream.Run(ctx)-shaped loop and logs a non-nil,
// non-context-cancellation error; used for both the Price Stream and the
// User Channel, which share this exact signature.
func runStream(ctx context.Context, name string, run func(context.Context) error, logger *slog.Logger) {
	if err := run(ctx); err != nil && ctx.Err() == nil {
		logger.Error(name+" stopped unexpectedly", "err", err)
	}
}

// wsURL derives a websocket URL from the venue's REST host by swapping the
// scheme and appending path.
func wsURL(host, path string) string {
	u := strings.TrimSuffix(host, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + path
}

// msDuration converts a millisecond count from config into a time.Duration.
func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func newLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
