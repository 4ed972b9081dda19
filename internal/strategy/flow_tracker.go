// Package strategy implements toxic flow detection for market making.
// FlowTracker monitors recent fills to detect adverse selection and inform
// spread adjustments.
package strategy

import (
	"math"
	"sync"

	"hftsim/internal/backtest/order"
)

// ToxicityMetrics contains calculated adverse selection indicators.
type ToxicityMetrics struct {
	DirectionalImbalance float64 // [0, 1]: % of fills in dominant direction
	FillVelocity         float64 // fills per second of logical time
	ToxicityScore        float64 // [0, 1]: composite toxicity score
	IsAverse             bool    // true if likely getting adversely selected
}

// FlowTracker tracks recent fills in a rolling window (measured on the
// logical clock, in nanoseconds) to detect toxic flow patterns: fills that
// consistently go in one direction, suggesting informed traders are
// picking off stale quotes right before price moves. Grounded on the
// teacher's strategy.FlowTracker, with wall-clock time.Time replaced by
// logical-clock nanoseconds throughout so toxicity detection runs
// identically in a backtest and in live mode.
type FlowTracker struct {
	mu sync.RWMutex

	windowNs int64
	fills    []Fill

	toxicityThreshold float64
	cooldownNs        int64
	maxSpreadMultiple float64

	lastToxicNs int64
}

// NewFlowTracker creates a flow tracker with the given configuration.
func NewFlowTracker(windowNs int64, toxicityThreshold float64, cooldownNs int64, maxSpreadMultiple float64) *FlowTracker {
	return &FlowTracker{
		windowNs:          windowNs,
		fills:             make([]Fill, 0, 100),
		toxicityThreshold: toxicityThreshold,
		cooldownNs:        cooldownNs,
		maxSpreadMultiple: maxSpreadMultiple,
		// No toxicity seen yet: start outside the cooldown window.
		lastToxicNs: -cooldownNs,
	}
}

// AddFill adds a new fill to the tracker and evicts stale entries outside
// the window.
func (ft *FlowTracker) AddFill(fill Fill) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.fills = append(ft.fills, fill)
	ft.evictStaleLocked(fill.TimestampNs)
}

// evictStaleLocked removes fills older than the window, relative to now.
// Must be called with the lock held.
func (ft *FlowTracker) evictStaleLocked(now int64) {
	if len(ft.fills) == 0 {
		return
	}

	cutoff := now - ft.windowNs
	validIdx := -1
	for i, fill := range ft.fills {
		if fill.TimestampNs > cutoff {
			validIdx = i
			break
		}
	}

	if validIdx == -1 {
		ft.fills = ft.fills[:0]
		return
	}
	if validIdx > 0 {
		ft.fills = ft.fills[validIdx:]
	}
}

// CalculateToxicity computes adverse selection metrics from recent fills,
// evaluated as of now (the logical clock).
func (ft *FlowTracker) CalculateToxicity(now int64) ToxicityMetrics {
	ft.mu.Lock()
	ft.evictStaleLocked(now)
	ft.mu.Unlock()

	ft.mu.RLock()
	defer ft.mu.RUnlock()

	if len(ft.fills) == 0 {
		return ToxicityMetrics{}
	}

	var buyCount, sellCount int
	for _, fill := range ft.fills {
		if fill.Side == order.Buy {
			buyCount++
		} else {
			sellCount++
		}
	}

	totalFills := len(ft.fills)
	dominant := math.Max(float64(buyCount), float64(sellCount))
	directionalImbalance := dominant / float64(totalFills)

	if len(ft.fills) < 2 {
		return ToxicityMetrics{
			DirectionalImbalance: directionalImbalance,
			FillVelocity:         0,
			ToxicityScore:        directionalImbalance * 0.6,
			IsAverse:             directionalImbalance > ft.toxicityThreshold,
		}
	}

	windowSeconds := float64(ft.windowNs) / 1e9
	fillVelocity := float64(totalFills) / windowSeconds

	// Normalize velocity: >3 fills/sec of logical time is treated as very
	// high (score 1.0).
	velocityFactor := math.Min(fillVelocity/3.0, 1.0)

	toxicityScore := 0.6*directionalImbalance + 0.4*velocityFactor

	return ToxicityMetrics{
		DirectionalImbalance: directionalImbalance,
		FillVelocity:         fillVelocity,
		ToxicityScore:        toxicityScore,
		IsAverse:             toxicityScore > ft.toxicityThreshold,
	}
}

// GetSpreadMultiplier returns the spread multiplier to apply based on
// current toxicity, as of now. Returns 1.0 (no change) under normal
// conditions, up to maxSpreadMultiple when toxic.
func (ft *FlowTracker) GetSpreadMultiplier(now int64) float64 {
	metrics := ft.CalculateToxicity(now)

	if metrics.IsAverse {
		ft.mu.Lock()
		ft.lastToxicNs = now
		ft.mu.Unlock()
	}

	ft.mu.RLock()
	inCooldown := now-ft.lastToxicNs < ft.cooldownNs
	ft.mu.RUnlock()

	if !metrics.IsAverse && !inCooldown {
		return 1.0
	}

	if metrics.ToxicityScore < ft.toxicityThreshold {
		timeSinceToxic := float64(now - ft.lastToxicNs)
		cooldownProgress := math.Min(timeSinceToxic/float64(ft.cooldownNs), 1.0)
		return 1.0 + (ft.maxSpreadMultiple-1.0)*(1.0-cooldownProgress)
	}

	normalizedScore := (metrics.ToxicityScore - ft.toxicityThreshold) / (1.0 - ft.toxicityThreshold)
	return 1.0 + (ft.maxSpreadMultiple-1.0)*math.Min(normalizedScore*2.0, 1.0)
}

// GetFillCount returns the number of fills in the current window.
func (ft *FlowTracker) GetFillCount() int {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	return len(ft.fills)
}
