package depth

import (
	"sort"

	"hftsim/internal/backtest/order"
)

// levelSide holds one side's tick->qty map. When ordered is true it also
// keeps occupied ticks sorted ascending, giving the L2BTree backend a
// constant-time best-price lookup (the slice's first or last element)
// instead of the L2HashMap backend's linear rescan; insertion and removal
// locate the tick by binary search.
type levelSide struct {
	qty     map[int64]float64
	ordered bool
	ticks   []int64 // sorted ascending, only maintained when ordered
}

func newLevelSide(ordered bool) *levelSide {
	return &levelSide{qty: make(map[int64]float64), ordered: ordered}
}

func (s *levelSide) at(tick int64) float64 {
	return s.qty[tick]
}

// set applies an update; qty == 0 deletes the level (a no-op when the
// level is absent). The sorted tick slice is kept in step when ordered.
func (s *levelSide) set(tick int64, qty float64) {
	_, existed := s.qty[tick]
	if qty == 0 {
		if existed {
			delete(s.qty, tick)
			if s.ordered {
				s.removeTick(tick)
			}
		}
		return
	}
	s.qty[tick] = qty
	if s.ordered && !existed {
		s.insertTick(tick)
	}
}

func (s *levelSide) insertTick(tick int64) {
	i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i] >= tick })
	s.ticks = append(s.ticks, 0)
	copy(s.ticks[i+1:], s.ticks[i:])
	s.ticks[i] = tick
}

func (s *levelSide) removeTick(tick int64) {
	i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i] >= tick })
	if i < len(s.ticks) && s.ticks[i] == tick {
		s.ticks = append(s.ticks[:i], s.ticks[i+1:]...)
	}
}

// best returns the highest occupied tick when wantMax is true (bid side),
// or the lowest when false (ask side); ok is false if the side is empty.
func (s *levelSide) best(wantMax bool) (tick int64, ok bool) {
	if s.ordered {
		if len(s.ticks) == 0 {
			return 0, false
		}
		if wantMax {
			return s.ticks[len(s.ticks)-1], true
		}
		return s.ticks[0], true
	}
	first := true
	for t := range s.qty {
		if first || (wantMax && t > tick) || (!wantMax && t < tick) {
			tick = t
			ok = true
			first = false
		}
	}
	return tick, ok
}

// clearWorseThan removes every level strictly worse than px (or the whole
// side if px == 0), returning the removed ticks. "Worse" means lower than
// px for the bid side, higher than px for the ask side.
func (s *levelSide) clearWorseThan(px int64, isBid bool) []int64 {
	var removed []int64
	if px == 0 {
		for t := range s.qty {
			removed = append(removed, t)
		}
	} else {
		for t := range s.qty {
			if (isBid && t < px) || (!isBid && t > px) {
				removed = append(removed, t)
			}
		}
	}
	for _, t := range removed {
		s.set(t, 0)
	}
	return removed
}

// clearCrossed removes every level that has become crossed by the other
// side's new best price: ask ticks at or below threshold when isBid is
// false, or bid ticks at or above threshold when isBid is true. This is
// the direction fused-eviction resolution needs, the mirror image of
// clearWorseThan (which removes levels *away* from the touched price, not
// levels overtaken *by* it).
func (s *levelSide) clearCrossed(threshold int64, isBid bool) []int64 {
	var removed []int64
	for t := range s.qty {
		if (isBid && t >= threshold) || (!isBid && t <= threshold) {
			removed = append(removed, t)
		}
	}
	for _, t := range removed {
		s.set(t, 0)
	}
	return removed
}

// sortedTicks returns occupied ticks ordered ascending, or descending when
// desc is true.
func (s *levelSide) sortedTicks(desc bool) []int64 {
	var ticks []int64
	if s.ordered {
		ticks = append(ticks, s.ticks...)
	} else {
		for t := range s.qty {
			ticks = append(ticks, t)
		}
		sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	}
	if desc {
		for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
			ticks[i], ticks[j] = ticks[j], ticks[i]
		}
	}
	return ticks
}

func (s *levelSide) reset() {
	s.qty = make(map[int64]float64)
	s.ticks = nil
}

// Book is the shared MarketDepth implementation backing both L2HashMap and
// L2BTree (spec §4.2). Grounded on py-hftbacktest/src/fuse.rs's
// FuseMarketDepth for the fused-eviction semantics of update_best_*.
type Book struct {
	bid, ask   *levelSide
	bestBid    int64
	bestAsk    int64
	tickSize   float64
	lotSize    float64
}

func newBook(tickSize, lotSize float64, ordered bool) *Book {
	return &Book{
		bid:      newLevelSide(ordered),
		ask:      newLevelSide(ordered),
		bestBid:  InvalidMinTick,
		bestAsk:  InvalidMaxTick,
		tickSize: tickSize,
		lotSize:  lotSize,
	}
}

func (b *Book) TickSize() float64 { return b.tickSize }
func (b *Book) LotSize() float64  { return b.lotSize }

func (b *Book) BestBidTick() int64 { return b.bestBid }
func (b *Book) BestAskTick() int64 { return b.bestAsk }

func (b *Book) BestBid() float64 {
	if b.bestBid == InvalidMinTick {
		return 0
	}
	return float64(b.bestBid) * b.tickSize
}

func (b *Book) BestAsk() float64 {
	if b.bestAsk == InvalidMaxTick {
		return 0
	}
	return float64(b.bestAsk) * b.tickSize
}

func (b *Book) BidQtyAtTick(tick int64) float64 { return b.bid.at(tick) }
func (b *Book) AskQtyAtTick(tick int64) float64 { return b.ask.at(tick) }

// UpdateBidDepth applies a bid-side update and resolves any crossing it
// causes into the ask side, returning the resulting fused eviction events.
func (b *Book) UpdateBidDepth(priceTick int64, qty float64, ts int64) []FusedEvent {
	b.bid.set(priceTick, qty)
	b.recomputeBestBid(priceTick, qty)
	return b.resolveCrossing(ts)
}

// UpdateAskDepth applies an ask-side update and resolves any crossing it
// causes into the bid side, returning the resulting fused eviction events.
func (b *Book) UpdateAskDepth(priceTick int64, qty float64, ts int64) []FusedEvent {
	b.ask.set(priceTick, qty)
	b.recomputeBestAsk(priceTick, qty)
	return b.resolveCrossing(ts)
}

func (b *Book) recomputeBestBid(touchedTick int64, touchedQty float64) {
	if touchedQty > 0 {
		if b.bestBid == InvalidMinTick || touchedTick > b.bestBid {
			b.bestBid = touchedTick
			return
		}
		return
	}
	if touchedTick == b.bestBid {
		if t, ok := b.bid.best(true); ok {
			b.bestBid = t
		} else {
			b.bestBid = InvalidMinTick
		}
	}
}

func (b *Book) recomputeBestAsk(touchedTick int64, touchedQty float64) {
	if touchedQty > 0 {
		if b.bestAsk == InvalidMaxTick || touchedTick < b.bestAsk {
			b.bestAsk = touchedTick
			return
		}
		return
	}
	if touchedTick == b.bestAsk {
		if t, ok := b.ask.best(false); ok {
			b.bestAsk = t
		} else {
			b.bestAsk = InvalidMaxTick
		}
	}
}

// resolveCrossing evicts whichever side's levels have become crossed by the
// other side's new best price, repeating until the book is monotone again
// (best_bid_tick < best_ask_tick) or one side empties out.
func (b *Book) resolveCrossing(ts int64) []FusedEvent {
	var fused []FusedEvent
	for b.bestBid != InvalidMinTick && b.bestAsk != InvalidMaxTick && b.bestBid >= b.bestAsk {
		// Evict every ask level at or below the new best bid.
		removed := b.ask.clearCrossed(b.bestBid, false)
		if len(removed) == 0 {
			// Evict every bid level at or above the new best ask instead;
			// this direction occurs when the ask side moved down across a
			// resting bid rather than the bid moving up across an ask.
			removed = b.bid.clearCrossed(b.bestAsk, true)
			for _, t := range removed {
				fused = append(fused, FusedEvent{Side: order.Buy, PriceTick: t, Ts: ts})
			}
		} else {
			for _, t := range removed {
				fused = append(fused, FusedEvent{Side: order.Sell, PriceTick: t, Ts: ts})
			}
		}
		if t, ok := b.bid.best(true); ok {
			b.bestBid = t
		} else {
			b.bestBid = InvalidMinTick
		}
		if t, ok := b.ask.best(false); ok {
			b.bestAsk = t
		} else {
			b.bestAsk = InvalidMaxTick
		}
		if len(removed) == 0 {
			break
		}
	}
	return fused
}

// ClearDepth removes every level on side strictly worse than priceTick
// (inclusive of the entire side when priceTick == 0).
func (b *Book) ClearDepth(side order.Side, priceTick int64, ts int64) {
	if side == order.Buy {
		b.bid.clearWorseThan(priceTick, true)
		if t, ok := b.bid.best(true); ok {
			b.bestBid = t
		} else {
			b.bestBid = InvalidMinTick
		}
		return
	}
	b.ask.clearWorseThan(priceTick, false)
	if t, ok := b.ask.best(false); ok {
		b.bestAsk = t
	} else {
		b.bestAsk = InvalidMaxTick
	}
}

// WalkBid visits occupied bid ticks highest-first.
func (b *Book) WalkBid(visit func(tick int64, qty float64) bool) {
	for _, t := range b.bid.sortedTicks(true) {
		if !visit(t, b.bid.at(t)) {
			return
		}
	}
}

// WalkAsk visits occupied ask ticks lowest-first.
func (b *Book) WalkAsk(visit func(tick int64, qty float64) bool) {
	for _, t := range b.ask.sortedTicks(false) {
		if !visit(t, b.ask.at(t)) {
			return
		}
	}
}

// ApplySnapshot applies levels in order. When clearFirst is true both sides
// are wiped before applying (a DEPTH_SNAPSHOT with a DEPTH_CLEAR prefix
// rebuilds the book); otherwise levels are merged into the existing book,
// with qty == 0 acting as a deletion (spec §4.2).
func (b *Book) ApplySnapshot(levels []Level, clearFirst bool, ts int64) []FusedEvent {
	if clearFirst {
		b.bid.reset()
		b.ask.reset()
		b.bestBid = InvalidMinTick
		b.bestAsk = InvalidMaxTick
	}
	for _, lvl := range levels {
		if lvl.Side == order.Buy {
			b.bid.set(lvl.PriceTick, lvl.Qty)
			b.recomputeBestBid(lvl.PriceTick, lvl.Qty)
		} else {
			b.ask.set(lvl.PriceTick, lvl.Qty)
			b.recomputeBestAsk(lvl.PriceTick, lvl.Qty)
		}
	}
	return b.resolveCrossing(ts)
}
