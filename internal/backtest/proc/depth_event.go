package proc

import (
	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/event"
	"hftsim/internal/backtest/order"
)

// applyDepthEvent folds one event flagged Depth, DepthClear, DepthSnapshot,
// or DepthBBO into d, returning any fused eviction events the update
// produced. Shared between Local.ProcessData (the strategy-facing feed) and
// the Exchange processors (the exchange-time feed that drives matching):
// both consume the same on-disk record shape, just on different flag
// directions.
func applyDepthEvent(d depth.MarketDepth, e event.Event, tickSize float64) []depth.FusedEvent {
	side := order.Buy
	if e.Ev.Has(event.Sell) {
		side = order.Sell
	}
	tick := e.PriceTick(tickSize)

	switch {
	case e.Ev.Has(event.DepthSnapshot):
		lvl := depth.Level{Side: side, PriceTick: tick, Qty: e.Qty}
		return d.ApplySnapshot([]depth.Level{lvl}, e.Ev.Has(event.DepthClear), e.ExchTs)

	case e.Ev.Has(event.DepthClear):
		d.ClearDepth(side, tick, e.ExchTs)
		return nil

	case e.Ev.Has(event.Depth), e.Ev.Has(event.DepthBBO):
		if side == order.Buy {
			return d.UpdateBidDepth(tick, e.Qty, e.ExchTs)
		}
		return d.UpdateAskDepth(tick, e.Qty, e.ExchTs)
	}
	return nil
}
