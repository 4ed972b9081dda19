// Package depth reconstructs a limit order book from market events and
// answers best bid/ask, qty-at-tick queries, and snapshot application. Two
// backends share one implementation (Book): L2HashMap, which recomputes the
// best price by scanning when the cached best level is removed, and
// L2BTree, which keeps each side's occupied ticks in sorted order for a
// constant-time best-price lookup. Both satisfy MarketDepth.
package depth

import (
	"math"

	"hftsim/internal/backtest/order"
)

// InvalidMinTick and InvalidMaxTick are the sentinel best-price ticks used
// when a side of the book is empty (spec §4.2).
const (
	InvalidMinTick = math.MinInt64
	InvalidMaxTick = math.MaxInt64
)

// Level is one (price, qty) pair used when applying a snapshot.
type Level struct {
	Side      order.Side
	PriceTick int64
	Qty       float64
}

// FusedEvent is a synthetic depth deletion emitted to keep the book
// monotone: when a new best price on one side would cross the other
// side's existing levels, those crossed levels are evicted and reported
// here so callers (e.g. the Exchange processor) can react to the implied
// cancellation the way they would a real depth-clear event.
type FusedEvent struct {
	Side      order.Side
	PriceTick int64
	Ts        int64
}

// MarketDepth is the capability set both L2HashMap and L2BTree implement
// (spec §4.2).
type MarketDepth interface {
	UpdateBidDepth(priceTick int64, qty float64, ts int64) []FusedEvent
	UpdateAskDepth(priceTick int64, qty float64, ts int64) []FusedEvent
	ClearDepth(side order.Side, priceTick int64, ts int64)
	ApplySnapshot(levels []Level, clearFirst bool, ts int64) []FusedEvent

	BestBidTick() int64
	BestAskTick() int64
	BestBid() float64
	BestAsk() float64
	BidQtyAtTick(priceTick int64) float64
	AskQtyAtTick(priceTick int64) float64
	TickSize() float64
	LotSize() float64

	// WalkBid and WalkAsk visit occupied ticks on their side best-to-worst
	// (bid: highest first, ask: lowest first), stopping early if visit
	// returns false. Used by the Exchange processor to match an aggressive
	// order against paper liquidity without mutating the book itself.
	WalkBid(visit func(tick int64, qty float64) bool)
	WalkAsk(visit func(tick int64, qty float64) bool)
}
