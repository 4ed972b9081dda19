package api

import (
	"time"

	"hftsim/internal/config"
)

// RunStatus is the complete live status of a backtest run, served at
// /api/status and broadcast over /ws.
type RunStatus struct {
	Timestamp time.Time `json:"timestamp"`

	Assets []AssetStatus `json:"assets"`

	TotalRealized   float64 `json:"total_realized"`
	TotalUnrealized float64 `json:"total_unrealized"`
	TotalPnL        float64 `json:"total_pnl"`

	Risk RiskSnapshot `json:"risk"`

	Config RunConfigSummary `json:"config"`
}

// AssetStatus is per-asset book, position, and quote state.
type AssetStatus struct {
	Name string `json:"name"`

	MidPrice  float64 `json:"mid_price"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Spread    float64 `json:"spread"`
	SpreadBps float64 `json:"spread_bps"`

	Position PositionSnapshot `json:"position"`

	ActiveBid        *QuoteInfo `json:"active_bid,omitempty"`
	ActiveAsk        *QuoteInfo `json:"active_ask,omitempty"`
	ReservationPrice float64    `json:"reservation_price"`
	OptimalSpread    float64    `json:"optimal_spread"`

	TickSize float64 `json:"tick_size"`
}

// PositionSnapshot is the position and P&L for a single asset.
type PositionSnapshot struct {
	Qty           float64   `json:"qty"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	ExposureUSD   float64   `json:"exposure_usd"`
	Skew          float64   `json:"skew"` // NetDelta in [-1, 1]
	LastUpdated   time.Time `json:"last_updated"`
}

// QuoteInfo is a single resting quote (bid or ask).
type QuoteInfo struct {
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	OrderID   string    `json:"order_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskSnapshot is aggregate risk state across all assets.
type RiskSnapshot struct {
	GlobalExposure    float64 `json:"global_exposure"`
	MaxGlobalExposure float64 `json:"max_global_exposure"`
	ExposurePct       float64 `json:"exposure_pct"`

	KillSwitchActive bool      `json:"kill_switch_active"`
	KillSwitchUntil  time.Time `json:"kill_switch_until,omitempty"`
	KillSwitchReason string    `json:"kill_switch_reason,omitempty"`

	TotalRealizedPnL   float64 `json:"total_realized_pnl"`
	TotalUnrealizedPnL float64 `json:"total_unrealized_pnl"`

	MaxPositionPerAsset float64 `json:"max_position_per_asset"`
	MaxDailyLoss        float64 `json:"max_daily_loss"`
	CurrentAssetsActive int     `json:"current_assets_active"`
}

// RunConfigSummary is the strategy/risk parameters a run was started with.
type RunConfigSummary struct {
	Gamma             float64 `json:"gamma"`
	Sigma             float64 `json:"sigma"`
	K                 float64 `json:"k"`
	T                 float64 `json:"t"`
	DefaultSpreadBps  float64 `json:"default_spread_bps"`
	OrderQty          float64 `json:"order_qty"`
	RefreshIntervalNs int64   `json:"refresh_interval_ns"`

	MaxPositionPerAsset float64 `json:"max_position_per_asset"`
	MaxGlobalExposure   float64 `json:"max_global_exposure"`
	KillSwitchDropPct   float64 `json:"kill_switch_drop_pct"`
	KillSwitchWindowSec int64   `json:"kill_switch_window_sec"`
	MaxDailyLoss        float64 `json:"max_daily_loss"`
	CooldownAfterKillNs int64   `json:"cooldown_after_kill_ns"`
}

// NewRunConfigSummary builds a RunConfigSummary from the run's config.
func NewRunConfigSummary(cfg config.Config) RunConfigSummary {
	return RunConfigSummary{
		Gamma:             cfg.Strategy.Gamma,
		Sigma:             cfg.Strategy.Sigma,
		K:                 cfg.Strategy.K,
		T:                 cfg.Strategy.T,
		DefaultSpreadBps:  cfg.Strategy.DefaultSpreadBps,
		OrderQty:          cfg.Strategy.OrderQty,
		RefreshIntervalNs: cfg.Strategy.RefreshIntervalNs,

		MaxPositionPerAsset: cfg.Risk.MaxPositionPerAsset,
		MaxGlobalExposure:   cfg.Risk.MaxGlobalExposure,
		KillSwitchDropPct:   cfg.Risk.KillSwitchDropPct,
		KillSwitchWindowSec: cfg.Risk.KillSwitchWindowSec,
		MaxDailyLoss:        cfg.Risk.MaxDailyLoss,
		CooldownAfterKillNs: cfg.Risk.CooldownAfterKillNs,
	}
}
