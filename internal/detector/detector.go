// Package detector implements the Shock Detector (§4.3): per-token rolling
// windows of mid-prices, flagged as a Shock when the current mid deviates
// from the window by both an absolute minimum and a population z-score
// threshold, subject to a warm-up period and a per-token cooldown.
//
// The rolling-window/stddev shape is grounded on the teacher pack's
// volatility filter (sdibella-kalshi-btc15m/internal/strategy/volatility.go),
// generalized from a single global BTC series to per-tokenId windows, from
// sample to population variance, and extended with the dual absolute+z
// threshold, target-price band, warm-up, and cooldown this spec requires.
package detector

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Config holds the Detector's tunables (§9 defaults: sigmaThreshold=2.0,
// minAbsoluteMove=0.03, rollingWindowMs=60000, cooldownMs=30000,
// targetPriceRange=[0.07, 0.91]).
type Config struct {
	RollingWindow     time.Duration
	WarmupMinSamples  int
	SigmaThreshold    float64
	MinAbsoluteMove   decimal.Decimal
	CooldownMs        time.Duration
	TargetPriceLow    decimal.Decimal
	TargetPriceHigh   decimal.Decimal
	StdDevFloor       float64
}

type sample struct {
	ts  time.Time
	mid float64
}

type tokenWindow struct {
	mu           sync.Mutex
	samples      []sample
	lastEmission time.Time
	cold         bool
}

// Detector tracks one rolling window per tokenId and emits Shocks on
// qualifying price updates.
type Detector struct {
	cfg Config

	mu      sync.Mutex
	windows map[string]*tokenWindow
}

// New builds a Detector with cfg.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, windows: make(map[string]*tokenWindow)}
}

func (d *Detector) window(tokenID string) *tokenWindow {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[tokenID]
	if !ok {
		w = &tokenWindow{}
		d.windows[tokenID] = w
	}
	return w
}

// MarkCold clears tokenID's window after a reconnect; the Detector must
// re-accumulate warm-up before it may emit again (§4.2 failure semantics).
func (d *Detector) MarkCold(tokenID string) {
	w := d.window(tokenID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = nil
	w.cold = true
}

// Observe feeds a priceUpdate into tokenID's window and returns the emitted
// Shock, if the trigger conditions in §4.3 all hold. marketSlug is carried
// through to the emitted Shock for the Classifier/Trade Engine.
func (d *Detector) Observe(marketSlug string, update types.PriceUpdate) (types.Shock, bool) {
	w := d.window(update.TokenID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) > 0 && update.Ts.Before(w.samples[len(w.samples)-1].ts) {
		return types.Shock{}, false // out-of-order frame, dropped (§4.3)
	}

	mid, _ := update.Mid().Float64()
	w.samples = append(w.samples, sample{ts: update.Ts, mid: mid})
	d.trim(w, update.Ts)
	w.cold = false

	if !d.isWarm(w) {
		return types.Shock{}, false
	}

	mean, stddev := meanAndPopStdDev(w.samples)
	delta := mid - mean
	sigmaFloor := d.cfg.StdDevFloor
	if sigmaFloor <= 0 {
		sigmaFloor = 0.002
	}
	z := delta / math.Max(stddev, sigmaFloor)

	minMove, _ := d.cfg.MinAbsoluteMove.Float64()
	if math.Abs(delta) < minMove {
		return types.Shock{}, false
	}
	if math.Abs(z) < d.cfg.SigmaThreshold {
		return types.Shock{}, false
	}
	if update.Mid().LessThan(d.cfg.TargetPriceLow) || update.Mid().GreaterThan(d.cfg.TargetPriceHigh) {
		return types.Shock{}, false
	}
	if !w.lastEmission.IsZero() && update.Ts.Sub(w.lastEmission) < d.cfg.CooldownMs {
		return types.Shock{}, false
	}

	direction := types.DirUp
	if delta < 0 {
		direction = types.DirDown
	}
	w.lastEmission = update.Ts

	shock := types.Shock{
		ID:         uuid.NewString(),
		TokenID:    update.TokenID,
		MarketSlug: marketSlug,
		Direction:  direction,
		Magnitude:  decimal.NewFromFloat(math.Abs(delta)),
		ZScore:     z,
		PrePrice:   decimal.NewFromFloat(mean),
		PostPrice:  update.Mid(),
		Ts:         update.Ts,
	}
	return shock, true
}

func (d *Detector) trim(w *tokenWindow, now time.Time) {
	cutoff := now.Add(-d.cfg.RollingWindow)
	i := 0
	for i < len(w.samples) && w.samples[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = w.samples[i:]
	}
}

// isWarm requires at least M samples spanning at least W/2 of wall-time
// (§4.3's warm-up counter).
func (d *Detector) isWarm(w *tokenWindow) bool {
	if len(w.samples) < d.cfg.WarmupMinSamples {
		return false
	}
	span := w.samples[len(w.samples)-1].ts.Sub(w.samples[0].ts)
	return span >= d.cfg.RollingWindow/2
}

func meanAndPopStdDev(samples []sample) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.mid
	}
	mean = sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		diff := s.mid - mean
		variance += diff * diff
	}
	variance /= float64(len(samples)) // population variance, not sample
	return mean, math.Sqrt(variance)
}
