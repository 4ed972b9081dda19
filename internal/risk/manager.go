// Package risk enforces portfolio-level risk limits across all assets in a
// run.
//
// The risk manager runs as a standalone goroutine that receives
// PositionReports from each asset's strategy loop and checks them against
// configured limits:
//
//   - Per-asset exposure:   caps USD exposure in any single asset
//   - Global exposure:      caps total USD exposure across all assets
//   - Daily loss:           triggers kill switch if realized+unrealized PnL exceeds threshold
//   - Rapid price movement: triggers kill switch if mid-price moves more than
//     KillSwitchDropPct within KillSwitchWindowSec seconds
//
// When a limit is breached, the manager emits a KillSignal on KillCh() and
// the kill switch stays active for CooldownAfterKillNs, during which each
// strategy's IsKillSwitchActive check cancels its orders and skips
// quoting. internal/engine.Runner only logs the signals it reads.
//
// Timestamps on PositionReport are logical-clock nanoseconds (see
// pkg/bot.Bot.CurrentTimestamp), not wall-clock, so the same Manager code
// drives kill-switch timing identically whether the run is a backtest or
// live.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hftsim/internal/config"
)

// PositionReport is sent by each asset's strategy goroutine every quote
// cycle. It contains the current position and PnL for risk evaluation.
type PositionReport struct {
	Asset         string
	Position      float64 // signed contract position
	MidPrice      float64 // current mid price (used for price-movement detection)
	ExposureUSD   float64 // |Position| * MidPrice
	UnrealizedPnL float64
	RealizedPnL   float64
	Timestamp     int64 // logical-clock nanoseconds
}

// KillSignal reports a tripped limit to whoever reads KillCh(). An empty
// Asset marks a run-wide limit (global exposure or daily loss).
type KillSignal struct {
	Asset  string
	Reason string
}

// priceAnchor stores a reference price at a point in time for detecting
// rapid price movements within a rolling window.
type priceAnchor struct {
	price     float64
	timestamp int64
}

// Manager enforces risk limits across all active assets. It aggregates
// position reports, checks limits, and emits kill signals when breached.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu               sync.RWMutex
	positions        map[string]PositionReport // latest report per asset
	totalExposure    float64
	totalRealizedPnL float64
	killSwitchActive bool
	killSwitchUntil  int64 // logical-clock nanoseconds
	priceAnchors     map[string]priceAnchor

	reportCh chan PositionReport
	killCh   chan KillSignal
}

// NewManager creates a risk manager.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		logger:       logger.With("component", "risk"),
		positions:    make(map[string]PositionReport),
		priceAnchors: make(map[string]priceAnchor),
		reportCh:     make(chan PositionReport, 100),
		killCh:       make(chan KillSignal, 10),
	}
}

// Run drains reports until ctx is canceled. now is polled periodically to
// expire a time-bounded kill switch even when no new reports arrive; the
// caller passes bot.Bot.CurrentTimestamp so expiry tracks the logical clock
// rather than wall time.
func (rm *Manager) Run(ctx context.Context, now func() int64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case report := <-rm.reportCh:
			rm.processReport(report)
		case <-ticker.C:
			rm.clearExpiredKillSwitch(now())
		}
	}
}

// Report submits a position report (non-blocking).
func (rm *Manager) Report(report PositionReport) {
	select {
	case rm.reportCh <- report:
	default:
		rm.logger.Warn("risk report channel full, dropping report", "asset", report.Asset)
	}
}

// KillCh returns the channel for reading kill signals.
func (rm *Manager) KillCh() <-chan KillSignal {
	return rm.killCh
}

// RemoveMarket cleans up state for a stopped asset.
func (rm *Manager) RemoveMarket(asset string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delete(rm.positions, asset)
	delete(rm.priceAnchors, asset)

	rm.totalExposure = 0
	rm.totalRealizedPnL = 0
	for _, pos := range rm.positions {
		rm.totalExposure += pos.ExposureUSD
		rm.totalRealizedPnL += pos.RealizedPnL
	}
}

// IsKillSwitchActive returns whether the kill switch is engaged. now is the
// current logical-clock value, used to lazily expire a cooldown that has
// elapsed since the last Run tick.
func (rm *Manager) IsKillSwitchActive(now int64) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.killSwitchActive {
		return false
	}
	if now >= rm.killSwitchUntil {
		rm.killSwitchActive = false
		rm.logger.Info("kill switch cooldown expired")
		return false
	}
	return true
}

// RemainingBudget returns how much additional USD exposure is allowed for
// the given asset. It takes the minimum of:
//   - per-asset headroom: MaxPositionPerAsset − current asset exposure
//   - global headroom:    MaxGlobalExposure − total exposure across all assets
//
// Returns 0 if either limit is already exceeded (the strategy should skip
// quoting).
func (rm *Manager) RemainingBudget(asset string) float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	var currentExposure float64
	if pos, ok := rm.positions[asset]; ok {
		currentExposure = pos.ExposureUSD
	}

	perAsset := rm.cfg.MaxPositionPerAsset - currentExposure
	global := rm.cfg.MaxGlobalExposure - rm.totalExposure

	remaining := perAsset
	if global < remaining {
		remaining = global
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot represents aggregate risk metrics at a point in time.
type Snapshot struct {
	GlobalExposure       float64
	MaxGlobalExposure    float64
	ExposurePct          float64
	KillSwitchActive     bool
	KillSwitchUntil      int64
	KillSwitchReason     string
	TotalRealizedPnL     float64
	TotalUnrealizedPnL   float64
	MaxPositionPerAsset  float64
	MaxDailyLoss         float64
	CurrentAssetsActive  int
}

// GetSnapshot returns current aggregate risk metrics.
func (rm *Manager) GetSnapshot() Snapshot {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	var totalUnrealizedPnL float64
	for _, pos := range rm.positions {
		totalUnrealizedPnL += pos.UnrealizedPnL
	}

	var exposurePct float64
	if rm.cfg.MaxGlobalExposure > 0 {
		exposurePct = (rm.totalExposure / rm.cfg.MaxGlobalExposure) * 100
	}

	var killReason string
	if rm.killSwitchActive {
		killReason = "cooldown"
	}

	return Snapshot{
		GlobalExposure:      rm.totalExposure,
		MaxGlobalExposure:   rm.cfg.MaxGlobalExposure,
		ExposurePct:         exposurePct,
		KillSwitchActive:    rm.killSwitchActive,
		KillSwitchUntil:     rm.killSwitchUntil,
		KillSwitchReason:    killReason,
		TotalRealizedPnL:    rm.totalRealizedPnL,
		TotalUnrealizedPnL:  totalUnrealizedPnL,
		MaxPositionPerAsset: rm.cfg.MaxPositionPerAsset,
		MaxDailyLoss:        rm.cfg.MaxDailyLoss,
		CurrentAssetsActive: len(rm.positions),
	}
}

func (rm *Manager) processReport(report PositionReport) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.positions[report.Asset] = report

	rm.totalExposure = 0
	rm.totalRealizedPnL = 0
	totalUnrealizedPnL := 0.0
	for _, pos := range rm.positions {
		rm.totalExposure += pos.ExposureUSD
		rm.totalRealizedPnL += pos.RealizedPnL
		totalUnrealizedPnL += pos.UnrealizedPnL
	}

	if report.ExposureUSD > rm.cfg.MaxPositionPerAsset {
		rm.emitKill(report.Asset, "per-asset position limit breached", report.Timestamp)
	}

	if rm.totalExposure > rm.cfg.MaxGlobalExposure {
		rm.emitKill("", "global exposure limit breached", report.Timestamp)
	}

	totalPnL := rm.totalRealizedPnL + totalUnrealizedPnL
	if totalPnL < -rm.cfg.MaxDailyLoss {
		rm.emitKill("", "max daily loss breached", report.Timestamp)
	}

	rm.checkPriceMovement(report)
}

// checkPriceMovement detects rapid price swings using a rolling anchor. On
// each report, it compares mid-price to the anchor set at the start of the
// window. If the anchor is older than KillSwitchWindowSec, it resets. If
// price moved more than KillSwitchDropPct from anchor, kill switch fires.
func (rm *Manager) checkPriceMovement(report PositionReport) {
	window := int64(rm.cfg.KillSwitchWindowSec) * int64(time.Second)

	anchor, ok := rm.priceAnchors[report.Asset]
	if !ok || report.Timestamp-anchor.timestamp > window {
		rm.priceAnchors[report.Asset] = priceAnchor{price: report.MidPrice, timestamp: report.Timestamp}
		return
	}

	if anchor.price == 0 {
		return
	}

	pctChange := (report.MidPrice - anchor.price) / anchor.price
	if pctChange < 0 {
		pctChange = -pctChange
	}

	if pctChange > rm.cfg.KillSwitchDropPct {
		rm.emitKill(report.Asset, fmt.Sprintf(
			"rapid price movement: %.1f%% in %ds",
			pctChange*100, rm.cfg.KillSwitchWindowSec,
		), report.Timestamp)
	}
}

func (rm *Manager) clearExpiredKillSwitch(now int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.killSwitchActive && now >= rm.killSwitchUntil {
		rm.killSwitchActive = false
		rm.logger.Info("kill switch cooldown expired")
	}
}

// emitKill activates the kill switch, starts the cooldown timer, and sends
// a KillSignal to the runner. If the kill channel is full, it drains the
// stale signal first to ensure the latest kill reason is always delivered.
// Must be called with mu held.
func (rm *Manager) emitKill(asset, reason string, now int64) {
	rm.killSwitchActive = true
	rm.killSwitchUntil = now + int64(rm.cfg.CooldownAfterKillNs)

	rm.logger.Error("kill switch tripped",
		"asset", asset,
		"reason", reason,
		"cooldown_until_ns", rm.killSwitchUntil,
	)

	sig := KillSignal{Asset: asset, Reason: reason}
	select {
	case rm.killCh <- sig:
	default:
		select {
		case <-rm.killCh:
		default:
		}
		rm.killCh <- sig
	}
}
