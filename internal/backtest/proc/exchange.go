package proc

import (
	"math"

	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/event"
	"hftsim/internal/backtest/latency"
	"hftsim/internal/backtest/order"
	"hftsim/internal/backtest/queue"
)

// ExchangeProcessor is the exchange-time half of one asset (spec §4.4): it
// consumes EXCH-flagged feed events to drive matching against its resting
// order book, and consumes inbound requests from the Local side to create,
// rest, fill, or cancel orders.
type ExchangeProcessor interface {
	ProcessData(e event.Event)
	ProcessOrder(o order.Order, now int64)
	Depth() depth.MarketDepth
}

type levelKey struct {
	side order.Side
	tick int64
}

type restingEntry struct {
	order *order.Order
	pos   queue.Position
}

// exchangeCore is the matching logic shared by NoPartialFillExchange and
// PartialFillExchange; the two variants differ only in whether a queue-model
// fill smaller than an order's remaining quantity is credited (partial) or
// discarded until a later trade completes it in full (spec §4.4).
type exchangeCore struct {
	depth   depth.MarketDepth
	resting map[levelKey][]*restingEntry
	orders  map[uint64]*order.Order

	queueModel   queue.Model
	latencyModel latency.Model
	toLocal      *order.Bus

	partialFillAllowed bool
}

func newExchangeCore(d depth.MarketDepth, qm queue.Model, lat latency.Model, toLocal *order.Bus, partialFillAllowed bool) *exchangeCore {
	return &exchangeCore{
		depth:              d,
		resting:            make(map[levelKey][]*restingEntry),
		orders:             make(map[uint64]*order.Order),
		queueModel:         qm,
		latencyModel:       lat,
		toLocal:            toLocal,
		partialFillAllowed: partialFillAllowed,
	}
}

func (c *exchangeCore) Depth() depth.MarketDepth { return c.depth }

func (c *exchangeCore) respond(o order.Order, exchTs int64) {
	arrival := exchTs + c.latencyModel.Response(exchTs)
	c.toLocal.Append(o, arrival)
}

// ProcessData applies one EXCH-flagged feed event: the depth side of it
// first (so resting queue positions see the post-update visible qty), then,
// if it is a trade print, matching against resting orders at that price.
func (c *exchangeCore) ProcessData(e event.Event) {
	if !e.Ev.Has(event.Exch) {
		return
	}
	tickSize := c.depth.TickSize()
	side := order.Buy
	if e.Ev.Has(event.Sell) {
		side = order.Sell
	}
	tick := e.PriceTick(tickSize)

	trackDepthUpdate := e.Ev.Has(event.Depth) && !e.Ev.Has(event.DepthSnapshot) && !e.Ev.Has(event.DepthClear)
	var oldQty float64
	if trackDepthUpdate {
		oldQty = c.qtyAt(side, tick)
	}

	fused := applyDepthEvent(c.depth, e, tickSize)
	for _, fe := range fused {
		c.forceQueueEmpty(fe.Side, fe.PriceTick)
	}

	if trackDepthUpdate {
		newQty := c.qtyAt(side, tick)
		if newQty != oldQty {
			c.updateQueueForLevel(side, tick, oldQty, newQty)
		}
	}

	if e.Ev.Has(event.Trade) {
		c.onTrade(side, tick, e.Qty, e.ExchTs)
	}
}

func (c *exchangeCore) qtyAt(side order.Side, tick int64) float64 {
	if side == order.Buy {
		return c.depth.BidQtyAtTick(tick)
	}
	return c.depth.AskQtyAtTick(tick)
}

func (c *exchangeCore) updateQueueForLevel(side order.Side, tick int64, oldQty, newQty float64) {
	for _, re := range c.resting[levelKey{side, tick}] {
		c.queueModel.DepthUpdate(c.depth, re.order, &re.pos, oldQty, newQty)
	}
}

// forceQueueEmpty zeroes ahead_qty for every resting order at (side, tick):
// a fused eviction means the level was crossed out of existence, so nothing
// can remain ahead of any order still sitting there (spec §8 invariant 6).
func (c *exchangeCore) forceQueueEmpty(side order.Side, tick int64) {
	for _, re := range c.resting[levelKey{side, tick}] {
		re.pos.AheadQty = 0
	}
}

// onTrade matches a trade print of qty at tick against resting orders on the
// side opposite the aggressor's (a buyer-initiated print takes liquidity
// from resting asks, and vice versa), in the FIFO order they were rested.
func (c *exchangeCore) onTrade(aggressorSide order.Side, tick int64, qty float64, exchTs int64) {
	restingSide := order.Sell
	if aggressorSide == order.Sell {
		restingSide = order.Buy
	}
	key := levelKey{restingSide, tick}
	entries := c.resting[key]
	if len(entries) == 0 {
		return
	}

	remaining := qty
	kept := entries[:0]
	for _, re := range entries {
		if remaining <= 0 {
			kept = append(kept, re)
			continue
		}
		fillQty := c.queueModel.Trade(c.depth, re.order, &re.pos, remaining)
		if fillQty <= 0 {
			kept = append(kept, re)
			continue
		}
		if !c.partialFillAllowed && fillQty < re.order.LeavesQty {
			// Rounds the would-be partial fill back to zero: ahead_qty
			// already advanced via queueModel.Trade above, so the next
			// trade print at this price can complete it.
			kept = append(kept, re)
			continue
		}
		remaining -= fillQty
		c.commitFill(re.order, tick, fillQty, exchTs)
		if !re.order.Status.IsTerminal() {
			kept = append(kept, re)
		}
	}
	c.resting[key] = kept
}

func (c *exchangeCore) commitFill(o *order.Order, tick int64, fillQty float64, exchTs int64) {
	price := float64(tick) * c.depth.TickSize()
	o.ExecQty += fillQty
	o.ExecPrice = price
	o.LeavesQty -= fillQty
	o.Maker = true
	o.ExchTs = exchTs
	if o.LeavesQty <= 1e-12 {
		o.Status = order.Filled
	} else {
		o.Status = order.PartiallyFilled
	}
	c.respond(*o, exchTs)
}

// ProcessOrder handles one inbound request (New or Cancel) from the Local
// side, arriving now in exchange time.
func (c *exchangeCore) ProcessOrder(o order.Order, now int64) {
	if o.Req == order.ReqCancel {
		c.processCancel(o, now)
		return
	}
	o.ExchTs = now
	ptr := &o
	c.orders[o.OrderID] = ptr
	c.handleNew(ptr, now)
}

func (c *exchangeCore) processCancel(req order.Order, now int64) {
	existing, seen := c.orders[req.OrderID]
	if !seen {
		// Unknown to the exchange entirely: nothing to cancel, nothing
		// rested, report it as already gone rather than silently drop it.
		req.Status = order.Expired
		req.ExchTs = now
		c.respond(req, now)
		return
	}
	if existing.Status.IsTerminal() {
		// Idempotent: a cancel racing a fill echoes the terminal status
		// the exchange already recorded rather than erroring (spec §4.5's
		// duplicate request/response note).
		c.respond(*existing, now)
		return
	}
	c.removeResting(existing)
	existing.Status = order.Canceled
	existing.ExchTs = now
	existing.Req = order.ReqNone
	c.respond(*existing, now)
}

func (c *exchangeCore) removeResting(o *order.Order) {
	key := levelKey{o.Side, o.PriceTick}
	entries := c.resting[key]
	for i, re := range entries {
		if re.order.OrderID == o.OrderID {
			c.resting[key] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (c *exchangeCore) rest(o *order.Order) {
	pos := c.queueModel.NewOrder(c.depth, o)
	o.Q = pos
	key := levelKey{o.Side, o.PriceTick}
	c.resting[key] = append(c.resting[key], &restingEntry{order: o, pos: pos})
}

// wouldCross reports whether a new limit order at (side, tick) would match
// immediately against the opposite side's best price.
func (c *exchangeCore) wouldCross(side order.Side, tick int64) bool {
	if side == order.Buy {
		bestAsk := c.depth.BestAskTick()
		return bestAsk != depth.InvalidMaxTick && tick >= bestAsk
	}
	bestBid := c.depth.BestBidTick()
	return bestBid != depth.InvalidMinTick && tick <= bestBid
}

// visibleLiquidityUpTo sums the paper qty available to side between the best
// opposing price and limitTick inclusive, used for the FOK pre-check.
func (c *exchangeCore) visibleLiquidityUpTo(side order.Side, limitTick int64) float64 {
	var total float64
	visit := func(tick int64, qty float64) bool {
		if side == order.Buy && tick > limitTick {
			return false
		}
		if side == order.Sell && tick < limitTick {
			return false
		}
		total += qty
		return true
	}
	if side == order.Buy {
		c.depth.WalkAsk(visit)
	} else {
		c.depth.WalkBid(visit)
	}
	return total
}

// matchAggressive consumes paper liquidity from the book opposite side,
// from the best price outward, up to qty (and, if hasLimit, no worse than
// limitTick). It does not mutate the book: the book's own state evolves
// independently from subsequent TRADE/DEPTH feed events. Returns the filled
// quantity and the quantity-weighted average price tick.
func (c *exchangeCore) matchAggressive(side order.Side, limitTick int64, hasLimit bool, qty float64) (filled, vwapTick float64) {
	remaining := qty
	var notional float64
	visit := func(tick int64, levelQty float64) bool {
		if remaining <= 0 {
			return false
		}
		if hasLimit {
			if side == order.Buy && tick > limitTick {
				return false
			}
			if side == order.Sell && tick < limitTick {
				return false
			}
		}
		take := math.Min(remaining, levelQty)
		notional += take * float64(tick)
		remaining -= take
		filled += take
		return remaining > 0
	}
	if side == order.Buy {
		c.depth.WalkAsk(visit)
	} else {
		c.depth.WalkBid(visit)
	}
	if filled > 0 {
		vwapTick = notional / filled
	}
	return filled, vwapTick
}

func (c *exchangeCore) handleNew(o *order.Order, now int64) {
	o.Req = order.ReqNone
	tickSize := c.depth.TickSize()
	if o.OrdType == order.Market {
		filled, vwapTick := c.matchAggressive(o.Side, 0, false, o.Qty)
		o.ExecQty = filled
		if filled > 0 {
			o.ExecPrice = vwapTick * tickSize
		}
		o.LeavesQty = o.Qty - filled
		o.Maker = false
		if o.LeavesQty <= 1e-12 {
			o.Status = order.Filled
		} else {
			// A market order never rests; whatever it could not match
			// immediately simply expires.
			o.Status = order.Expired
		}
		c.respond(*o, now)
		return
	}

	switch o.TIF {
	case order.GTX:
		if c.wouldCross(o.Side, o.PriceTick) {
			o.Status = order.Expired
			c.respond(*o, now)
			return
		}
		o.Status = order.New
		c.rest(o)
		c.respond(*o, now)

	case order.FOK:
		if c.visibleLiquidityUpTo(o.Side, o.PriceTick) < o.Qty {
			o.Status = order.Expired
			c.respond(*o, now)
			return
		}
		filled, vwapTick := c.matchAggressive(o.Side, o.PriceTick, true, o.Qty)
		o.ExecQty = filled
		o.ExecPrice = vwapTick * tickSize
		o.LeavesQty = o.Qty - filled
		o.Maker = false
		o.Status = order.Filled
		c.respond(*o, now)

	case order.IOC:
		filled, vwapTick := c.matchAggressive(o.Side, o.PriceTick, true, o.Qty)
		o.ExecQty = filled
		if filled > 0 {
			o.ExecPrice = vwapTick * tickSize
		}
		o.LeavesQty = o.Qty - filled
		o.Maker = false
		switch {
		case o.LeavesQty <= 1e-12:
			o.Status = order.Filled
		case filled > 0:
			o.Status = order.PartiallyFilled
		default:
			o.Status = order.Expired
		}
		c.respond(*o, now)

	default: // GTC
		filled, vwapTick := c.matchAggressive(o.Side, o.PriceTick, true, o.Qty)
		o.ExecQty = filled
		if filled > 0 {
			o.ExecPrice = vwapTick * tickSize
		}
		o.LeavesQty = o.Qty - filled
		if o.LeavesQty <= 1e-12 {
			// Fully matched aggressively: the whole quantity is a taker
			// fill, nothing rests.
			o.Maker = false
			o.Status = order.Filled
			c.respond(*o, now)
			return
		}
		if filled > 0 {
			// Marketable portion consumed liquidity as a taker; report it
			// before flipping to a maker for the residual so State.ApplyFill
			// charges the taker rate on the exec so far (fee.rate keys off
			// o.Maker, and crediting the whole ExecQty under the later
			// Maker=true response would misprice it).
			o.Maker = false
			o.Status = order.PartiallyFilled
			c.respond(*o, now)
		}
		o.Maker = true
		o.Status = order.New
		if filled > 0 {
			o.Status = order.PartiallyFilled
		}
		c.rest(o)
		c.respond(*o, now)
	}
}

// NoPartialFillExchange is the ExchangeProcessor variant that only credits
// a queue-model fill once it covers an order's entire remaining quantity in
// a single trade print (spec §4.4).
type NoPartialFillExchange struct {
	*exchangeCore
}

var _ ExchangeProcessor = (*NoPartialFillExchange)(nil)

// NewNoPartialFillExchange constructs a NoPartialFillExchange for one asset.
func NewNoPartialFillExchange(d depth.MarketDepth, qm queue.Model, lat latency.Model, toLocal *order.Bus) *NoPartialFillExchange {
	return &NoPartialFillExchange{exchangeCore: newExchangeCore(d, qm, lat, toLocal, false)}
}

// PartialFillExchange is the ExchangeProcessor variant that credits
// whatever fraction of an order's remaining quantity the queue model
// computes, even if it does not exhaust the order (spec §4.4).
type PartialFillExchange struct {
	*exchangeCore
}

var _ ExchangeProcessor = (*PartialFillExchange)(nil)

// NewPartialFillExchange constructs a PartialFillExchange for one asset.
func NewPartialFillExchange(d depth.MarketDepth, qm queue.Model, lat latency.Model, toLocal *order.Bus) *PartialFillExchange {
	return &PartialFillExchange{exchangeCore: newExchangeCore(d, qm, lat, toLocal, true)}
}
