package api

import (
	"time"

	"hftsim/internal/config"
	"hftsim/internal/risk"
)

// StatusProvider gives the API server read access to a running backtest.
// internal/engine.Runner implements this directly.
type StatusProvider interface {
	AssetStatuses() []AssetStatus
	RiskManager() *risk.Manager
}

// BuildStatus aggregates state from the runner and risk manager into a
// single RunStatus document.
func BuildStatus(provider StatusProvider, cfg config.Config) RunStatus {
	assets := provider.AssetStatuses()

	var totalRealized, totalUnrealized float64
	for _, a := range assets {
		totalRealized += a.Position.RealizedPnL
		totalUnrealized += a.Position.UnrealizedPnL
	}

	riskSnap := provider.RiskManager().GetSnapshot()

	return RunStatus{
		Timestamp:       time.Now(),
		Assets:          assets,
		TotalRealized:   totalRealized,
		TotalUnrealized: totalUnrealized,
		TotalPnL:        totalRealized + totalUnrealized,
		Risk:            convertRiskSnapshot(riskSnap),
		Config:          NewRunConfigSummary(cfg),
	}
}

// convertRiskSnapshot maps risk.Snapshot (logical-clock nanoseconds) to the
// API's wall-clock RiskSnapshot. KillSwitchUntil is left zero when no kill
// switch is active.
func convertRiskSnapshot(snap risk.Snapshot) RiskSnapshot {
	out := RiskSnapshot{
		GlobalExposure:       snap.GlobalExposure,
		MaxGlobalExposure:    snap.MaxGlobalExposure,
		ExposurePct:          snap.ExposurePct,
		KillSwitchActive:     snap.KillSwitchActive,
		KillSwitchReason:     snap.KillSwitchReason,
		TotalRealizedPnL:     snap.TotalRealizedPnL,
		TotalUnrealizedPnL:   snap.TotalUnrealizedPnL,
		MaxPositionPerAsset:  snap.MaxPositionPerAsset,
		MaxDailyLoss:         snap.MaxDailyLoss,
		CurrentAssetsActive:  snap.CurrentAssetsActive,
	}
	if snap.KillSwitchActive {
		out.KillSwitchUntil = time.Unix(0, snap.KillSwitchUntil)
	}
	return out
}
