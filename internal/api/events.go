package api

import (
	"time"

	"hftsim/internal/strategy"
)

// DashboardEvent wraps every event sent to a connected status client.
type DashboardEvent struct {
	Type      string      `json:"type"` // "status", "fill", "order", "position", "kill"
	Timestamp time.Time   `json:"timestamp"`
	Asset     string      `json:"asset,omitempty"`
	Data      interface{} `json:"data"`
}

// FillEvent is a trade fill notification.
type FillEvent struct {
	Side  string  `json:"side"` // "BUY" or "SELL"
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
	Asset string  `json:"asset"`

	Qty           float64 `json:"qty"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// OrderEvent is an order placement or cancellation notification.
type OrderEvent struct {
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"` // "PLACED", "CANCELLED", "FILLED"
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
}

// PositionEvent is emitted whenever an asset's position changes.
type PositionEvent struct {
	Asset         string  `json:"asset"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	ExposureUSD   float64 `json:"exposure_usd"`
	MidPrice      float64 `json:"mid_price"`
}

// KillEvent is emitted when the risk manager's kill switch activates.
type KillEvent struct {
	Reason  string    `json:"reason"`
	Details string    `json:"details"`
	Until   time.Time `json:"until"`
	Asset   string    `json:"asset,omitempty"`
}

// QuoteEvent is the current bid/ask quotes for an asset.
type QuoteEvent struct {
	Asset            string  `json:"asset"`
	BidPrice         float64 `json:"bid_price"`
	BidSize          float64 `json:"bid_size"`
	AskPrice         float64 `json:"ask_price"`
	AskSize          float64 `json:"ask_size"`
	ReservationPrice float64 `json:"reservation_price"`
	OptimalSpread    float64 `json:"optimal_spread"`
	MidPrice         float64 `json:"mid_price"`
}

// NewFillEvent builds a FillEvent from an applied strategy.Fill and the
// position it produced.
func NewFillEvent(fill strategy.Fill, pos PositionSnapshot, asset string) FillEvent {
	return FillEvent{
		Side:          fill.Side.String(),
		Price:         fill.Price,
		Size:          fill.Qty,
		Asset:         asset,
		Qty:           pos.Qty,
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: pos.UnrealizedPnL,
	}
}

// NewPositionEvent builds a PositionEvent from a position snapshot.
func NewPositionEvent(pos PositionSnapshot, asset string, midPrice float64) PositionEvent {
	return PositionEvent{
		Asset:         asset,
		Qty:           pos.Qty,
		AvgEntryPrice: pos.AvgEntryPrice,
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: pos.UnrealizedPnL,
		ExposureUSD:   pos.ExposureUSD,
		MidPrice:      midPrice,
	}
}

// NewKillEvent builds a KillEvent.
func NewKillEvent(reason, details string, until time.Time, asset string) KillEvent {
	return KillEvent{Reason: reason, Details: details, Until: until, Asset: asset}
}
