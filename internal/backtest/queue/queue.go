// Package queue estimates the queue position of a resting limit order and
// updates it as the book evolves and trades occur (spec §4.7).
package queue

import (
	"math"

	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/order"
)

// Position is the opaque per-order queue state: the volume ahead of our
// order at the same price, and the volume behind it. Invariant (spec §8,
// invariant 6): 0 <= AheadQty <= visible qty at the order's tick; AheadQty
// is 0 once visible qty at that tick drops to 0.
type Position struct {
	AheadQty  float64
	BehindQty float64
}

// Model is the capability set every queue-position variant implements.
type Model interface {
	// NewOrder returns the initial queue position for o, which has just
	// been rested on d at o.PriceTick.
	NewOrder(d depth.MarketDepth, o *order.Order) Position

	// Trade applies a trade of traded Qty at o's price to q, returning how
	// much of o should fill as a result (0 if the trade does not reach our
	// position).
	Trade(d depth.MarketDepth, o *order.Order, q *Position, tradedQty float64) float64

	// DepthUpdate re-estimates q given that the visible qty at o's tick
	// changed from oldQty to newQty without an observed trade (a mix of
	// cancels and, depending on the model, unattributed fills).
	DepthUpdate(d depth.MarketDepth, o *order.Order, q *Position, oldQty, newQty float64)
}

// visibleQtyAt returns the current visible qty at o's tick on its own side.
func visibleQtyAt(d depth.MarketDepth, o *order.Order) float64 {
	if o.Side == order.Buy {
		return d.BidQtyAtTick(o.PriceTick)
	}
	return d.AskQtyAtTick(o.PriceTick)
}

// clampAhead enforces invariant 6: ahead_qty never exceeds the currently
// visible qty at the tick, and is exactly 0 once that visible qty is 0.
func clampAhead(ahead, visible float64) float64 {
	if visible <= 0 {
		return 0
	}
	if ahead > visible {
		return visible
	}
	if ahead < 0 {
		return 0
	}
	return ahead
}

// RiskAdverse assumes every depth decrease ahead of our order is a cancel,
// never a fill we should credit; only a trade explicitly reported at our
// price consumes ahead_qty (spec §4.7).
type RiskAdverse struct{}

var _ Model = RiskAdverse{}

func (RiskAdverse) NewOrder(d depth.MarketDepth, o *order.Order) Position {
	return Position{AheadQty: visibleQtyAt(d, o)}
}

// Trade consumes ahead_qty by at most tradedQty; once ahead_qty reaches
// zero, the order fills min(leaves_qty, tradedQty) from this same print
// (spec §8 scenario S4: a 10-qty print fully draining an ahead_qty of 10
// still fills a 2-qty order resting at the front of that same print, since
// the reported size is the total matched volume at the level, not merely
// what remained after clearing the queue ahead of us).
func (RiskAdverse) Trade(d depth.MarketDepth, o *order.Order, q *Position, tradedQty float64) float64 {
	if q.AheadQty > 0 {
		q.AheadQty -= math.Min(q.AheadQty, tradedQty)
	}
	if q.AheadQty > 0 {
		return 0
	}
	return math.Min(o.LeavesQty, tradedQty)
}

func (RiskAdverse) DepthUpdate(d depth.MarketDepth, o *order.Order, q *Position, oldQty, newQty float64) {
	q.AheadQty = clampAhead(q.AheadQty, newQty)
}

// ProbFunc estimates, given our fractional queue position x =
// ahead_qty/(ahead_qty+behind_qty), the probability that the next decrement
// observed at our price is a cancel rather than a fill.
type ProbFunc func(x float64) float64

// Power returns f(x) = x^n.
func Power(n float64) ProbFunc {
	return func(x float64) float64 { return math.Pow(x, n) }
}

// Power2 returns f(x) = 1 - (1-x)^n.
func Power2(n float64) ProbFunc {
	return func(x float64) float64 { return 1 - math.Pow(1-x, n) }
}

// Power3 returns f(x) = (1 - 2*min(x, 1-x))^n, signed so that the curve is
// antisymmetric around the midpoint x=0.5.
func Power3(n float64) ProbFunc {
	return func(x float64) float64 {
		base := 1 - 2*math.Min(x, 1-x)
		v := math.Pow(base, n)
		if x > 0.5 {
			return -v
		}
		return v
	}
}

// Log returns f(x) = ln(1+x)/ln(2), mapping [0,1] onto [0,1].
func Log() ProbFunc {
	return func(x float64) float64 { return math.Log1p(x) / math.Ln2 }
}

// Log2 returns f(x) = 1 - ln(2-x)/ln(2), the complementary curve to Log.
func Log2() ProbFunc {
	return func(x float64) float64 { return 1 - math.Log(2-x)/math.Ln2 }
}

// Probabilistic splits each observed depth shrink between ahead_qty and
// behind_qty using F, rather than RiskAdverse's all-or-nothing assumption
// (spec §4.7, "ProbabilisticQueue(f)").
type Probabilistic struct {
	F ProbFunc
}

var _ Model = Probabilistic{}

func (p Probabilistic) fractionalPosition(q *Position) float64 {
	total := q.AheadQty + q.BehindQty
	if total <= 0 {
		return 0
	}
	return q.AheadQty / total
}

func (p Probabilistic) NewOrder(d depth.MarketDepth, o *order.Order) Position {
	visible := visibleQtyAt(d, o)
	return Position{AheadQty: visible}
}

// Trade mirrors RiskAdverse.Trade's fill rule (see its comment); the two
// models only differ in DepthUpdate.
func (p Probabilistic) Trade(d depth.MarketDepth, o *order.Order, q *Position, tradedQty float64) float64 {
	if q.AheadQty > 0 {
		q.AheadQty -= math.Min(q.AheadQty, tradedQty)
	}
	if q.AheadQty > 0 {
		return 0
	}
	return math.Min(o.LeavesQty, tradedQty)
}

func (p Probabilistic) DepthUpdate(d depth.MarketDepth, o *order.Order, q *Position, oldQty, newQty float64) {
	delta := oldQty - newQty
	if delta <= 0 {
		q.AheadQty = clampAhead(q.AheadQty, newQty)
		return
	}
	x := p.fractionalPosition(q)
	fx := p.F(x)
	q.AheadQty -= (1 - fx) * delta
	q.BehindQty -= fx * delta
	if q.BehindQty < 0 {
		q.BehindQty = 0
	}
	q.AheadQty = clampAhead(q.AheadQty, newQty)
}
