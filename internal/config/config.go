// Package config defines engine configuration. Config is loaded from a YAML
// file with sensitive fields overridable via ENGINE_* environment variables,
// and can be hot-reloaded in place without restarting the process (§4.9):
// only detector thresholds, ladder sizing, classifier timings, and exit
// policies are hot-swappable. Open cycles keep the *Config they captured at
// birth; new cycles read the current pointer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level immutable configuration value. A new one is
// produced on every successful reload; nothing in this tree is mutated
// in place.
type Config struct {
	DryRun      bool   `mapstructure:"dry_run"`
	TradingMode string `mapstructure:"trading_mode"` // paper | live
	LogLevel    string `mapstructure:"log_level"`

	Venue     VenueConfig     `mapstructure:"venue"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Ladder    LadderConfig    `mapstructure:"ladder"`
	Exit      ExitConfig      `mapstructure:"exit"`
	Risk      RiskConfig      `mapstructure:"risk"`
	ScoreFeed ScoreFeedConfig `mapstructure:"score_feed"`
	Paper     PaperConfig     `mapstructure:"paper"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// VenueConfig addresses the off-chain limit order book (§6 Venue order API).
type VenueConfig struct {
	Host          string        `mapstructure:"host"`
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	APIPassphrase string        `mapstructure:"api_passphrase"`
	PrivateKey    string        `mapstructure:"private_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimitPerSec int         `mapstructure:"rate_limit_per_sec"`
}

// ChainConfig addresses the on-chain Safe wallet (§4.8, §6 Chain API).
type ChainConfig struct {
	AuthMode       string        `mapstructure:"auth_mode"` // EOA | PROXY
	RPCURL         string        `mapstructure:"rpc_url"`
	SafeAddress    string        `mapstructure:"safe_address"`
	CTFAddress     string        `mapstructure:"ctf_address"`
	NegRiskAddress string        `mapstructure:"neg_risk_address"`
	SettlementToken string       `mapstructure:"settlement_token"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
}

// DetectorConfig tunes the Shock Detector (§4.3).
type DetectorConfig struct {
	RollingWindowMs    int64   `mapstructure:"rolling_window_ms"`
	MinSamples         int     `mapstructure:"min_samples"`
	MinAbsoluteMove    float64 `mapstructure:"min_absolute_move"`
	SigmaThreshold     float64 `mapstructure:"sigma_threshold"`
	SigmaFloor         float64 `mapstructure:"sigma_floor"`
	CooldownMs         int64   `mapstructure:"cooldown_ms"`
	TargetPriceLow     float64 `mapstructure:"target_price_low"`
	TargetPriceHigh    float64 `mapstructure:"target_price_high"`
}

// ClassifierConfig tunes the Classifier (§4.4).
type ClassifierConfig struct {
	ClassifyWindowMs   int64 `mapstructure:"classify_window_ms"`
	ClassifyIntervalMs int64 `mapstructure:"classify_interval_ms"`
	MaxClassifyMs      int64 `mapstructure:"max_classify_ms"`
	RecentShocksMaxAge int64 `mapstructure:"recent_shocks_max_age_ms"`
	RunThreshold       int   `mapstructure:"run_threshold"` // N: >= N+1 recent shocks plus a scoring event => scoring_run
	EventMatchWindowMs int64 `mapstructure:"event_match_window_ms"`
}

// LadderConfig tunes entry-ladder placement (§4.5).
type LadderConfig struct {
	Levels           int       `mapstructure:"levels"`
	Spacing          float64   `mapstructure:"spacing"`
	Shares           []float64 `mapstructure:"shares"`
	FadeWindowMs     int64     `mapstructure:"fade_window_ms"`
	FadeTargetCents  float64   `mapstructure:"fade_target_cents"`
	MaxCyclesPerMarket int     `mapstructure:"max_cycles_per_market"`
	MaxGlobalCycles    int     `mapstructure:"max_global_cycles"`
}

// ExitConfig tunes the position state machine (§4.6).
type ExitConfig struct {
	PositionTimeoutMs  int64   `mapstructure:"position_timeout_ms"`
	ExitSecondaryTimeoutMs int64 `mapstructure:"exit_secondary_timeout_ms"`
	NearSettlementHigh float64 `mapstructure:"near_settlement_high"`
	NearSettlementLow  float64 `mapstructure:"near_settlement_low"`
	TickSize           float64 `mapstructure:"tick_size"`
}

// RiskConfig is the admission gate (§4.5 admission checks, §7).
type RiskConfig struct {
	EmergencyStop           bool          `mapstructure:"emergency_stop"`
	MaxDailyLossUSDC        float64       `mapstructure:"max_daily_loss_usdc"`
	MaxDrawdownPct          float64       `mapstructure:"max_drawdown_pct"`
	AccountCapitalUSDC      float64       `mapstructure:"account_capital_usdc"`
	MaxConsecutiveLosses    int           `mapstructure:"max_consecutive_losses"`
	ConsecutiveLossCooldown time.Duration `mapstructure:"consecutive_loss_cooldown"`
	RiskSyncInterval        time.Duration `mapstructure:"risk_sync_interval"`
}

// ScoreFeedConfig tunes Score Feed polling (§4.4, §6).
type ScoreFeedConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

// PaperConfig tunes the paper execution path (§9 Open Question, resolved).
type PaperConfig struct {
	InitialBalanceUSDC float64 `mapstructure:"initial_balance_usdc"`
	FeeBps             float64 `mapstructure:"fee_bps"`
	SlippageBps        float64 `mapstructure:"slippage_bps"`
}

// DashboardConfig tunes the Dashboard Adapter HTTP surface (§6).
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// TelegramConfig tunes operator notifications.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// PersistenceConfig tunes periodic snapshotting (§6 Persisted state).
type PersistenceConfig struct {
	SnapshotPath     string        `mapstructure:"snapshot_path"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// Default returns the built-in defaults, matching the numeric defaults
// listed in §6 "Environment configuration".
func Default() Config {
	return Config{
		DryRun:      true,
		TradingMode: "paper",
		LogLevel:    "info",
		Venue: VenueConfig{
			Host:            "https://clob.example.com",
			RequestTimeout:  10 * time.Second,
			RateLimitPerSec: 10,
		},
		Chain: ChainConfig{
			AuthMode:      "EOA",
			SubmitTimeout: 60 * time.Second,
		},
		Detector: DetectorConfig{
			RollingWindowMs: 60_000,
			MinSamples:      5,
			MinAbsoluteMove: 0.03,
			SigmaThreshold:  2.0,
			SigmaFloor:      0.002,
			CooldownMs:      30_000,
			TargetPriceLow:  0.07,
			TargetPriceHigh: 0.91,
		},
		Classifier: ClassifierConfig{
			ClassifyWindowMs:   10_000,
			ClassifyIntervalMs: 1_000,
			MaxClassifyMs:      15_000,
			RecentShocksMaxAge: 60_000,
			RunThreshold:       2,
			EventMatchWindowMs: 15_000,
		},
		Ladder: LadderConfig{
			Levels:             3,
			Spacing:            0.03,
			Shares:             []float64{5, 10, 20},
			FadeWindowMs:       120_000,
			FadeTargetCents:    0.04,
			MaxCyclesPerMarket: 2,
			MaxGlobalCycles:    10,
		},
		Exit: ExitConfig{
			PositionTimeoutMs:      600_000,
			ExitSecondaryTimeoutMs: 30_000,
			NearSettlementHigh:     0.99,
			NearSettlementLow:      0.01,
			TickSize:               0.01,
		},
		Risk: RiskConfig{
			MaxDailyLossUSDC:        0,
			MaxDrawdownPct:          0.30,
			AccountCapitalUSDC:      1000,
			MaxConsecutiveLosses:    3,
			ConsecutiveLossCooldown: 30 * time.Minute,
			RiskSyncInterval:        5 * time.Second,
		},
		ScoreFeed: ScoreFeedConfig{
			PollInterval: time.Second,
			HTTPTimeout:  5 * time.Second,
		},
		Paper: PaperConfig{
			InitialBalanceUSDC: 1000,
			FeeBps:             10,
			SlippageBps:        10,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Persistence: PersistenceConfig{
			SnapshotPath:     "snapshot.json",
			SnapshotInterval: 30 * time.Second,
		},
	}
}

// Loader loads Config from a file on disk, applying environment overrides,
// and supports re-reading the same file on demand for hot reload.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader bound to path. Every ENGINE_* environment
// variable overrides its corresponding mapstructure key (nested keys use
// underscores, e.g. ENGINE_DETECTOR_SIGMA_THRESHOLD).
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only consults keys viper already knows, so bind every
	// mapstructure key explicitly; keys absent from the file still resolve.
	var bind func(t reflect.Type, prefix string)
	bind = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			key := prefix + f.Tag.Get("mapstructure")
			if f.Type.Kind() == reflect.Struct {
				bind(f.Type, key+".")
				continue
			}
			_ = v.BindEnv(key)
		}
	}
	bind(reflect.TypeOf(Config{}), "")
	return &Loader{v: v}
}

// Load reads the config file over the defaults and validates the result.
// A missing file is not fatal: defaults plus environment overrides are
// used, matching the teacher's "warn and fall back" behavior.
func (l *Loader) Load() (Config, error) {
	cfg := Default()
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: read: %w", err)
		}
	}
	if err := l.v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Reload re-reads the bound file from disk and returns a fresh, validated
// Config. Callers publish the result as a new *Config pointer; existing
// Cycles keep the snapshot they captured at birth (§4.9, §9).
func (l *Loader) Reload() (Config, error) {
	return l.Load()
}
