// Package bot defines the uniform strategy-facing interface implemented by
// both the deterministic backtest driver (internal/backtest/hbt) and the
// live trading shim (internal/live). Strategy code is written once against
// this interface and never needs to know which side it is running on.
package bot

import (
	"time"

	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/order"
	"hftsim/internal/backtest/state"
)

// Asset identifies one of the instruments a Bot tracks. Assets are assigned
// small dense indices by whoever builds the Bot (the multi-asset driver or
// the live connector set), not by the strategy.
type Asset int

// Trade is a single execution observed on an asset's Local view, appended to
// the trade ring for the strategy to inspect.
type Trade struct {
	Timestamp time.Time
	PriceTick int64
	Qty       float64
	Side      order.Side
}

// Bot is the operation set a strategy drives the simulation or a live
// connection through. All timestamps are nanoseconds on the shared logical
// clock; see internal/backtest/hbt for the backtest implementation and
// internal/live for the live shim.
type Bot interface {
	// CurrentTimestamp returns the current value of the logical clock.
	CurrentTimestamp() int64

	// Depth returns the current order book view for an asset.
	Depth(asset Asset) depth.MarketDepth

	// Position returns the signed contract position for an asset.
	Position(asset Asset) float64

	// StateValues returns a snapshot of position/balance/fee/counters.
	StateValues(asset Asset) state.Values

	// Orders returns the strategy's live orders for an asset, keyed by id.
	Orders(asset Asset) map[uint64]*order.Order

	// LastTrades returns the trades accumulated since the last
	// ClearLastTrades call for an asset.
	LastTrades(asset Asset) []Trade

	// ClearLastTrades empties the trade ring for an asset.
	ClearLastTrades(asset Asset)

	// ClearInactiveOrders drops orders in a terminal status (Filled,
	// Canceled, Expired) from the tracked order map for an asset.
	ClearInactiveOrders(asset Asset)

	// SubmitBuyOrder and SubmitSellOrder place a new order. When wait is
	// true the call blocks the logical clock until the corresponding
	// exchange response arrives (or the run's data is exhausted).
	SubmitBuyOrder(asset Asset, orderID uint64, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error
	SubmitSellOrder(asset Asset, orderID uint64, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error

	// Cancel requests cancellation of a resting order.
	Cancel(asset Asset, orderID uint64, wait bool) error

	// Elapse advances the logical clock by exactly duration nanoseconds,
	// processing every event whose arrival timestamp falls within
	// [now, now+duration]. Returns false once all data sources are
	// exhausted with nothing left to process.
	Elapse(duration int64) bool

	// ElapseBt is identical to Elapse in the backtest driver; in the live
	// shim it is a no-op (there is no recorded data to fast-forward
	// through).
	ElapseBt(duration int64) bool

	// Close flushes any recorder state and releases readers/connections.
	// Idempotent.
	Close() error
}
