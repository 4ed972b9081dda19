package queue

import (
	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/order"
)

// L3FIFO is the optional exact per-order queue variant for Market-By-Order
// feeds (spec §4.7): rather than estimating ahead_qty from aggregate
// depth, it tracks the exact set of resting order ids ahead of ours at the
// same price and removes them one at a time as the feed reports their
// trades or cancellations. AheadQty is still exposed (as the sum of the
// tracked ahead orders' quantities) so callers that only need the
// aggregate view can use L3FIFO interchangeably with the other variants.
type L3FIFO struct {
	// AheadOrderIDs maps each of our resting order ids to the FIFO list
	// of order ids resting ahead of it at the same price, oldest (most
	// ahead) first. The caller is responsible for keeping this populated
	// from the feed's full order-id stream; L3FIFO only consumes it.
	AheadOrderIDs map[uint64][]uint64
	AheadQty      map[uint64]float64
}

// NewL3FIFO constructs an empty L3FIFO tracker.
func NewL3FIFO() *L3FIFO {
	return &L3FIFO{
		AheadOrderIDs: make(map[uint64][]uint64),
		AheadQty:      make(map[uint64]float64),
	}
}

var _ Model = (*L3FIFO)(nil)

func (m *L3FIFO) NewOrder(d depth.MarketDepth, o *order.Order) Position {
	var ahead float64
	for _, qty := range m.AheadQty {
		ahead += qty
	}
	return Position{AheadQty: ahead}
}

// ResolveOrder removes a single exact order id from the ahead list (the
// feed reported it traded or was canceled), crediting its quantity out of
// the aggregate ahead_qty in q.
func (m *L3FIFO) ResolveOrder(ourOrderID, resolvedID uint64, qty float64, q *Position) {
	ids := m.AheadOrderIDs[ourOrderID]
	for i, id := range ids {
		if id == resolvedID {
			m.AheadOrderIDs[ourOrderID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if q.AheadQty >= qty {
		q.AheadQty -= qty
	} else {
		q.AheadQty = 0
	}
}

// Trade mirrors RiskAdverse.Trade's fill rule: once ahead_qty reaches zero,
// the order fills min(leaves_qty, tradedQty) from the same print.
func (m *L3FIFO) Trade(d depth.MarketDepth, o *order.Order, q *Position, tradedQty float64) float64 {
	if q.AheadQty > 0 {
		if tradedQty < q.AheadQty {
			q.AheadQty -= tradedQty
		} else {
			q.AheadQty = 0
		}
	}
	if q.AheadQty > 0 {
		return 0
	}
	if tradedQty > o.LeavesQty {
		return o.LeavesQty
	}
	return tradedQty
}

func (m *L3FIFO) DepthUpdate(d depth.MarketDepth, o *order.Order, q *Position, oldQty, newQty float64) {
	q.AheadQty = clampAhead(q.AheadQty, newQty)
}
