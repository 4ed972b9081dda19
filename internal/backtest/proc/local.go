// Package proc implements the Local and Exchange halves of a single asset's
// simulation (spec §4.3, §4.4): Local tracks the strategy's view of its own
// orders and the locally-observed book, forwarding requests across an
// order.Bus to an ExchangeProcessor variant that matches them against the
// exchange-observed feed and the resting order book it maintains.
package proc

import (
	"hftsim/internal/backtest/depth"
	backtesterrors "hftsim/internal/backtest/errors"
	"hftsim/internal/backtest/event"
	"hftsim/internal/backtest/latency"
	"hftsim/internal/backtest/order"
	"hftsim/internal/backtest/state"
)

// Trade is one locally-observed trade print, retained in a bounded ring for
// strategies that want recent prints (pkg/bot.Bot.LastTrades).
type Trade struct {
	Ts        int64
	PriceTick int64
	Qty       float64
	Side      order.Side
}

// Local is the strategy-facing view of one asset (spec §4.3): it holds the
// orders the strategy has submitted, the locally-observed depth (fed by
// LOCAL-flagged events), the accounting State, and the outbound bus carrying
// new/cancel requests to the Exchange side. It never matches orders itself;
// matching is entirely the Exchange processor's job.
type Local struct {
	depth    depth.MarketDepth
	orders   map[uint64]*order.Order
	trades   []Trade
	tradeCap int

	state   *state.State
	latency latency.Model

	// toExchange carries new/cancel requests; fromExchange carries
	// responses (acks, fills, rejections) back. Both are owned by the
	// asset's driver and shared with the matching Exchange processor.
	toExchange   *order.Bus
	fromExchange *order.Bus

	lastFeedExchTs  int64
	lastFeedLocalTs int64

	lastOrderReqTs  int64
	lastOrderExchTs int64
	lastOrderRespTs int64
}

// NewLocal constructs a Local for one asset.
func NewLocal(d depth.MarketDepth, st *state.State, lat latency.Model, toExchange, fromExchange *order.Bus, tradeCap int) *Local {
	return &Local{
		depth:        d,
		orders:       make(map[uint64]*order.Order),
		tradeCap:     tradeCap,
		state:        st,
		latency:      lat,
		toExchange:   toExchange,
		fromExchange: fromExchange,
	}
}

// Depth returns the locally-observed book.
func (l *Local) Depth() depth.MarketDepth { return l.depth }

// State returns the accounting ledger fills are credited to.
func (l *Local) State() *state.State { return l.state }

// Orders returns the strategy's live order map, keyed by order id.
func (l *Local) Orders() map[uint64]*order.Order { return l.orders }

// LastTrades returns the recent-trade ring, oldest first.
func (l *Local) LastTrades() []Trade { return l.trades }

// ClearLastTrades empties the recent-trade ring.
func (l *Local) ClearLastTrades() { l.trades = l.trades[:0] }

// ClearInactiveOrders removes every order in a terminal state from the
// tracked map.
func (l *Local) ClearInactiveOrders() {
	for id, o := range l.orders {
		if o.Status.IsTerminal() {
			delete(l.orders, id)
		}
	}
}

// Submit enqueues a new order request, returning an OrderError without
// mutating anything if orderID is already tracked (spec §4.3).
func (l *Local) Submit(orderID uint64, side order.Side, priceTick int64, qty float64, ordType order.Type, tif order.TIF, now int64) error {
	if _, exists := l.orders[orderID]; exists {
		return backtesterrors.NewOrderError(backtesterrors.OrderIdExists, orderID, "")
	}
	o := order.NewOrder(orderID, side, priceTick, qty, ordType, tif, now)
	l.orders[orderID] = &o
	arrival := now + l.latency.Entry(now)
	l.toExchange.Append(o, arrival)
	return nil
}

// Cancel enqueues a cancel request for orderID, returning an OrderError if
// it is unknown or already in a terminal state.
func (l *Local) Cancel(orderID uint64, now int64) error {
	o, exists := l.orders[orderID]
	if !exists || o.Status.IsTerminal() {
		return backtesterrors.NewOrderError(backtesterrors.OrderNotFound, orderID, "")
	}
	o.Req = order.ReqCancel
	o.LocalTs = now
	arrival := now + l.latency.Entry(now)
	l.toExchange.Append(*o, arrival)
	return nil
}

// NextRecvTs returns the arrival timestamp of the next pending response on
// fromExchange, or (0, false) if none is in flight. The hbt driver reads the
// same value from the fromExchange bus directly when it picks the earliest
// pending event.
func (l *Local) NextRecvTs() (int64, bool) {
	return l.fromExchange.FrontmostTs()
}

// ProcessRecvOrder drains every response on fromExchange with arrival
// timestamp <= ts, applying each to the locally-tracked order (and, on a
// fill, crediting State). waitRespOrderID, when nonzero, is the order id an
// ElapseBt-style wait is blocked on; arrived reports whether a response for
// it was among those drained.
func (l *Local) ProcessRecvOrder(ts int64, waitRespOrderID uint64) (arrived bool) {
	for {
		resp, arrivalTs, ok := l.fromExchange.PopBefore(ts)
		if !ok {
			return arrived
		}
		l.applyResponse(resp, arrivalTs)
		if waitRespOrderID != 0 && resp.OrderID == waitRespOrderID {
			arrived = true
		}
	}
}

func (l *Local) applyResponse(resp order.Order, arrivalTs int64) {
	l.lastOrderReqTs = resp.LocalTs
	l.lastOrderExchTs = resp.ExchTs
	l.lastOrderRespTs = arrivalTs

	o, tracked := l.orders[resp.OrderID]
	if !tracked {
		// A response for an order this Local no longer tracks (e.g. it was
		// already cleared via ClearInactiveOrders); nothing to update.
		return
	}

	prevExecQty := o.ExecQty
	*o = resp
	if o.ExecQty > prevExecQty {
		l.state.ApplyFill(o, o.ExecPrice, o.ExecQty-prevExecQty)
	}
}

// ProcessData applies a single feed event flagged Local: depth updates
// maintain l.depth, trade prints extend the recent-trade ring (evicting the
// oldest entry once tradeCap is reached), and both kinds advance the
// feed-latency bookkeeping used by FeedLatency.
func (l *Local) ProcessData(e event.Event) {
	if !e.Ev.Has(event.Local) {
		return
	}
	l.lastFeedExchTs = e.ExchTs
	l.lastFeedLocalTs = e.LocalTs

	tickSize := l.depth.TickSize()
	applyDepthEvent(l.depth, e, tickSize)

	if e.Ev.Has(event.Trade) {
		side := order.Buy
		if e.Ev.Has(event.Sell) {
			side = order.Sell
		}
		l.recordTrade(Trade{Ts: e.LocalTs, PriceTick: e.PriceTick(tickSize), Qty: e.Qty, Side: side})
	}
}

func (l *Local) recordTrade(t Trade) {
	l.trades = append(l.trades, t)
	if l.tradeCap > 0 && len(l.trades) > l.tradeCap {
		l.trades = l.trades[len(l.trades)-l.tradeCap:]
	}
}

// FeedLatency returns (exchTs, localTs) of the most recently processed feed
// event, the raw material for a strategy-side feed-latency estimate.
func (l *Local) FeedLatency() (exchTs, localTs int64) {
	return l.lastFeedExchTs, l.lastFeedLocalTs
}

// OrderLatency returns (reqTs, exchTs, respTs) of the most recently applied
// order response, the raw material for a strategy-side order-latency
// estimate.
func (l *Local) OrderLatency() (reqTs, exchTs, respTs int64) {
	return l.lastOrderReqTs, l.lastOrderExchTs, l.lastOrderRespTs
}
