// Package risk implements the Trade Engine's admission gate: the
// all-must-pass checks in front of every new cycle, plus the
// CHAIN_FATAL/emergency-stop halting that blocks new entries without
// touching resting orders or open positions.
//
// Grounded on the teacher's internal/risk/manager.go (Allow, SetEmergencyStop,
// consecutive-loss cooldown, daily-loss tracking), generalized from
// percentage-drawdown/PnL gating to the admission-check list this spec
// names: cycle caps, free inventory, market state, classification staleness.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// Config holds the tunable admission thresholds (§4.5, §4.9).
type Config struct {
	MaxCyclesPerMarket int
	MaxGlobalCycles    int
	MaxClassifyMs      int64

	MaxConsecutiveLosses    int
	ConsecutiveLossCooldown time.Duration
	MaxDailyLossUSDC        decimal.Decimal
}

// CycleCounter is the subset of execution.OrderBook the admission gate
// needs to read current cycle concurrency; kept as an interface so risk
// has no import-time dependency on execution.
type CycleCounter interface {
	ActiveCyclesForMarket(marketSlug string) int
	ActiveCyclesGlobal() int
}

// Snapshot is a point-in-time view of the Manager's mutable state, for the
// Dashboard Adapter.
type Snapshot struct {
	EmergencyStop     bool
	ChainFatal        bool
	ConsecutiveLosses int
	CooldownUntil     time.Time
	DailyPnL          decimal.Decimal
}

// Manager gates cycle admission and tracks the rolling daily-loss and
// consecutive-loss state that can trip a cooldown or the emergency stop.
type Manager struct {
	cfg Config

	mu                sync.RWMutex
	emergencyStop     bool
	chainFatal        bool
	consecutiveLosses int
	cooldownUntil     time.Time
	dailyPnL          decimal.Decimal
	dailyStartPnL     decimal.Decimal
}

// New builds a Manager with no cooldown or halts in effect.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// AdmissionInput bundles everything Allow needs to evaluate one candidate
// cycle (§4.5's five admission checks).
type AdmissionInput struct {
	MarketSlug        string
	MarketState       types.MarketState
	FreeInventory     decimal.Decimal
	LadderNotional    decimal.Decimal
	ClassificationAge time.Duration
	Cycles            CycleCounter
}

// Allow evaluates the §4.5 admission checks in order, returning the first
// failure. A nil return means every check passed and a cycle may open.
func (m *Manager) Allow(in AdmissionInput) error {
	m.mu.RLock()
	emergencyStop := m.emergencyStop
	chainFatal := m.chainFatal
	inCooldown := time.Now().Before(m.cooldownUntil)
	dailyBreached := m.cfg.MaxDailyLossUSDC.IsPositive() && m.dailyPnL.LessThan(m.cfg.MaxDailyLossUSDC.Neg())
	m.mu.RUnlock()

	if emergencyStop {
		return fmt.Errorf("risk: emergency stop engaged")
	}
	if chainFatal {
		return fmt.Errorf("risk: CHAIN_FATAL halt in effect")
	}
	if inCooldown {
		return fmt.Errorf("risk: consecutive-loss cooldown in effect")
	}
	if m.cfg.MaxCyclesPerMarket > 0 && in.Cycles.ActiveCyclesForMarket(in.MarketSlug) >= m.cfg.MaxCyclesPerMarket {
		return fmt.Errorf("risk: market %s at maxCyclesPerMarket (%d)", in.MarketSlug, m.cfg.MaxCyclesPerMarket)
	}
	if m.cfg.MaxGlobalCycles > 0 && in.Cycles.ActiveCyclesGlobal() >= m.cfg.MaxGlobalCycles {
		return fmt.Errorf("risk: at maxGlobalCycles (%d)", m.cfg.MaxGlobalCycles)
	}
	if in.FreeInventory.LessThan(in.LadderNotional) {
		return fmt.Errorf("risk: free inventory %s below ladder notional %s, split required", in.FreeInventory, in.LadderNotional)
	}
	if in.MarketState != types.MarketActive {
		return fmt.Errorf("risk: market %s not active (state=%s)", in.MarketSlug, in.MarketState)
	}
	if m.cfg.MaxClassifyMs > 0 && in.ClassificationAge.Milliseconds() > m.cfg.MaxClassifyMs {
		return fmt.Errorf("risk: classification stale (%dms > %dms)", in.ClassificationAge.Milliseconds(), m.cfg.MaxClassifyMs)
	}
	if dailyBreached {
		return fmt.Errorf("risk: daily loss limit breached (pnl=%s)", m.dailyPnL)
	}

	return nil
}

// SetEmergencyStop halts all new cycle admission until cleared. Resting
// orders and open positions are untouched; only Allow is affected.
func (m *Manager) SetEmergencyStop(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = on
}

// EmergencyStop reports whether the emergency stop is currently engaged.
func (m *Manager) EmergencyStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyStop
}

// SetChainFatal records a CHAIN_FATAL escalation from the Chain Client
// (§4.8): new entries are halted, but this never cancels resting orders —
// those remain the Venue's responsibility until an operator intervenes.
func (m *Manager) SetChainFatal(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainFatal = on
}

// ChainFatal reports whether a CHAIN_FATAL halt is currently in effect.
func (m *Manager) ChainFatal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chainFatal
}

// RecordTradeResult updates consecutive-loss state from one closed cycle's
// realized PnL delta. Returns true if this call tripped the cooldown.
func (m *Manager) RecordTradeResult(realizedDelta decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dailyPnL = m.dailyPnL.Add(realizedDelta)

	if realizedDelta.IsNegative() {
		m.consecutiveLosses++
	} else if realizedDelta.IsPositive() {
		m.consecutiveLosses = 0
	}

	if m.cfg.MaxConsecutiveLosses <= 0 || m.consecutiveLosses < m.cfg.MaxConsecutiveLosses {
		return false
	}

	cooldown := m.cfg.ConsecutiveLossCooldown
	if cooldown <= 0 {
		return false
	}
	m.cooldownUntil = time.Now().Add(cooldown)
	return true
}

// ResetDaily clears the daily PnL counter and consecutive-loss cooldown,
// called by the Trade Engine's midnight-UTC reset.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyStartPnL = m.dailyPnL
	m.dailyPnL = decimal.Zero
	m.consecutiveLosses = 0
	m.cooldownUntil = time.Time{}
}

// DailyPnL returns the running realized PnL since the last ResetDaily.
func (m *Manager) DailyPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

// Snapshot returns a point-in-time copy of the manager's mutable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		EmergencyStop:     m.emergencyStop,
		ChainFatal:        m.chainFatal,
		ConsecutiveLosses: m.consecutiveLosses,
		CooldownUntil:     m.cooldownUntil,
		DailyPnL:          m.dailyPnL,
	}
}
