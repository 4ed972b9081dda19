// Package strategy implements the Avellaneda-Stoikov market-making
// algorithm against pkg/bot.Bot, so the identical strategy code drives a
// backtest run (internal/backtest/hbt) or a live run (internal/live)
// without modification.
//
// The core idea: post a bid below and an ask above a "reservation price"
// that accounts for inventory risk. When the bot is long, it lowers quotes
// to attract sellers; when short, it raises quotes to attract buyers.
//
// Per-tick flow (every RefreshIntervalNs of logical time):
//  1. Check risk limits.
//  2. Compute reservation price:  r = mid - q * gamma * sigma^2 * T
//  3. Compute optimal spread:     delta = gamma * sigma^2 * T + (2/gamma) * ln(1 + gamma/k)
//  4. Derive bid = r - delta/2, ask = r + delta/2, clamped to a positive tick.
//  5. Reconcile: cancel stale orders, place new ones.
//
// Generalized from a bounded-[0,1] binary-outcome price domain to an
// arbitrary tick-priced instrument, and from a dual Yes/No token inventory
// to a single signed position.
package strategy

import (
	"context"
	"log/slog"
	"math"

	"hftsim/internal/backtest/order"
	"hftsim/internal/config"
	"hftsim/internal/risk"
	"hftsim/pkg/bot"
)

// Quote is one side of a desired two-sided market.
type Quote struct {
	PriceTick int64
	Qty       float64
}

// QuotePair is the pair of quotes computeQuotes derives for one tick.
type QuotePair struct {
	Bid         *Quote
	Ask         *Quote
	GeneratedAt int64
}

// Maker runs the Avellaneda-Stoikov strategy for a single asset. It reads
// its own resting orders back from bot.Bot.Orders rather than keeping a
// shadow copy, since the Bot already exposes authoritative order state.
type Maker struct {
	cfg    config.StrategyConfig
	name   string
	asset  bot.Asset
	bot    bot.Bot
	risk   *risk.Manager

	inventory   *Inventory
	flowTracker *FlowTracker

	nextOrderID uint64
	lastFills   []Fill

	logger *slog.Logger
}

// NewMaker creates a strategy instance for one asset.
func NewMaker(cfg config.StrategyConfig, name string, a bot.Asset, b bot.Bot, riskMgr *risk.Manager, logger *slog.Logger) *Maker {
	return &Maker{
		cfg:   cfg,
		name:  name,
		asset: a,
		bot:   b,
		risk:  riskMgr,
		inventory: NewInventory(name, cfg.MaxPosition),
		flowTracker: NewFlowTracker(cfg.FlowWindowNs, cfg.FlowToxicityThreshold, cfg.FlowCooldownNs, cfg.FlowMaxSpreadMultiplier),
		logger: logger.With("component", "maker", "asset", name),
	}
}

// SetPosition restores a persisted position (used on restart).
func (m *Maker) SetPosition(pos Position) { m.inventory.SetPosition(pos) }

// PositionSnapshot returns the current inventory snapshot, for persistence.
func (m *Maker) PositionSnapshot() Position { return m.inventory.Snapshot() }

// LastFills returns the fills applied during the most recent Tick, for a
// caller building a run-wide trade log (internal/engine.Runner). Cleared
// at the start of each Tick.
func (m *Maker) LastFills() []Fill { return m.lastFills }

// ExposureUSD returns the dollar value of the current position at mid,
// for external status reporting.
func (m *Maker) ExposureUSD(mid float64) float64 { return m.inventory.ExposureUSD(mid) }

// NetDelta returns the current inventory skew in [-1, 1].
func (m *Maker) NetDelta() float64 { return m.inventory.NetDelta() }

// Run is the main loop for this asset, for a Bot dedicated to a single
// strategy (e.g. internal/live with one asset). Blocks until ctx is
// canceled or the bot's data is exhausted. Each iteration advances the
// logical clock by RefreshIntervalNs via bot.Elapse, which also applies
// any feed/exchange events due in that window, then calls Tick.
//
// A multi-asset backtest run drives the shared clock itself instead
// (internal/engine.Runner), advancing it once per tick and calling Tick
// directly on every asset's Maker — concurrent Elapse calls from multiple
// goroutines would race on the driver's single logical clock.
func (m *Maker) Run(ctx context.Context) {
	m.logger.Info("strategy started", "order_qty", m.cfg.OrderQty)

	for {
		select {
		case <-ctx.Done():
			m.cancelAllMyOrders()
			m.logger.Info("strategy stopped")
			return
		default:
		}

		if !m.bot.Elapse(m.cfg.RefreshIntervalNs) {
			m.cancelAllMyOrders()
			m.logger.Info("strategy stopped: data exhausted")
			return
		}

		m.Tick()
	}
}

// Tick applies accumulated fills and recomputes/reconciles this asset's
// quotes. Callers that advance a shared logical clock themselves (rather
// than via Run) call Tick once per asset after each clock advance.
func (m *Maker) Tick() {
	m.handleFills()
	m.quoteUpdate()
}

// Stop cancels every resting order this Maker has placed. Called by a
// caller-owned shutdown sequence (internal/engine.Runner) instead of Run's
// own ctx.Done branch when the clock loop lives outside Maker.
func (m *Maker) Stop() {
	m.cancelAllMyOrders()
}

// handleFills drains trades accumulated since the last tick into the
// inventory and flow tracker.
func (m *Maker) handleFills() {
	m.lastFills = nil

	trades := m.bot.LastTrades(m.asset)
	if len(trades) == 0 {
		return
	}
	for _, t := range trades {
		tickSize := m.bot.Depth(m.asset).TickSize()
		fill := Fill{
			TimestampNs: t.Timestamp.UnixNano(),
			Side:        t.Side,
			Price:       float64(t.PriceTick) * tickSize,
			Qty:         t.Qty,
		}
		m.inventory.OnFill(fill)
		m.flowTracker.AddFill(fill)
		m.lastFills = append(m.lastFills, fill)
	}
	m.bot.ClearLastTrades(m.asset)

	pos := m.inventory.Snapshot()
	m.logger.Info("fills applied", "count", len(trades), "qty", pos.Qty, "realized_pnl", pos.RealizedPnL)
}

// quoteUpdate is the core per-tick logic.
func (m *Maker) quoteUpdate() {
	now := m.bot.CurrentTimestamp()
	d := m.bot.Depth(m.asset)

	bid, ask := d.BestBid(), d.BestAsk()
	if bid <= 0 || ask <= 0 {
		m.logger.Debug("no two-sided market available")
		return
	}
	mid := (bid + ask) / 2

	m.inventory.UpdateMarkToMarket(mid)
	pos := m.inventory.Snapshot()
	exposureUSD := m.inventory.ExposureUSD(mid)

	m.risk.Report(risk.PositionReport{
		Asset:         m.name,
		Position:      pos.Qty,
		MidPrice:      mid,
		ExposureUSD:   exposureUSD,
		UnrealizedPnL: pos.UnrealizedPnL,
		RealizedPnL:   pos.RealizedPnL,
		Timestamp:     now,
	})

	if m.risk.IsKillSwitchActive(now) {
		m.logger.Warn("kill switch active, cancelling all orders")
		m.cancelAllMyOrders()
		return
	}

	remaining := m.risk.RemainingBudget(m.name)
	if remaining <= 0 {
		m.logger.Info("risk budget exhausted")
		m.cancelAllMyOrders()
		return
	}

	quotes := m.computeQuotes(mid, remaining, d.TickSize(), now)
	m.reconcileOrders(quotes)
}

// computeQuotes implements the Avellaneda-Stoikov model.
//
// Variables:
//
//	q     = inventory skew in [-1, 1] from NetDelta()
//	gamma = risk aversion (scales the reservation price's inventory skew)
//	sigma = estimated volatility
//	k     = order arrival intensity
//	T     = time horizon
func (m *Maker) computeQuotes(mid, remainingBudget, tickSize float64, now int64) QuotePair {
	q := m.inventory.NetDelta()
	gamma, sigma, k, T := m.cfg.Gamma, m.cfg.Sigma, m.cfg.K, m.cfg.T
	minSpread := mid * float64(m.cfg.DefaultSpreadBps) / 10000.0

	flowMultiplier := m.flowTracker.GetSpreadMultiplier(now)
	minSpread *= flowMultiplier

	reservationPrice := mid - q*gamma*sigma*sigma*T

	optSpread := gamma*sigma*sigma*T + (2.0/gamma)*math.Log(1+gamma/k)
	optSpread *= flowMultiplier

	bidRaw := reservationPrice - optSpread/2
	askRaw := reservationPrice + optSpread/2

	if (askRaw - bidRaw) < minSpread {
		bidRaw = reservationPrice - minSpread/2
		askRaw = reservationPrice + minSpread/2
	}

	if bidRaw < tickSize {
		bidRaw = tickSize
	}
	if bidRaw >= askRaw {
		bidRaw = askRaw - tickSize
	}
	if bidRaw < tickSize {
		bidRaw = tickSize
	}

	bidTick := int64(math.Floor(bidRaw / tickSize))
	askTick := int64(math.Ceil(askRaw / tickSize))
	if bidTick >= askTick {
		askTick = bidTick + 1
	}

	absQ := math.Abs(q)
	sizeFactor := 1.0 - 0.5*absQ
	bidQty := m.cfg.OrderQty * sizeFactor
	askQty := m.cfg.OrderQty * sizeFactor

	bidPrice := float64(bidTick) * tickSize
	askPrice := float64(askTick) * tickSize
	maxBidQty := remainingBudget / bidPrice
	maxAskQty := remainingBudget / askPrice
	bidQty = math.Min(bidQty, maxBidQty)
	askQty = math.Min(askQty, maxAskQty)
	totalNotional := bidQty*bidPrice + askQty*askPrice
	if totalNotional > remainingBudget && totalNotional > 0 {
		scale := remainingBudget / totalNotional
		bidQty *= scale
		askQty *= scale
	}

	var out QuotePair
	out.GeneratedAt = now
	if bidQty >= m.cfg.MinOrderQty {
		out.Bid = &Quote{PriceTick: bidTick, Qty: bidQty}
	}
	if askQty >= m.cfg.MinOrderQty {
		out.Ask = &Quote{PriceTick: askTick, Qty: askQty}
	}

	toxicity := m.flowTracker.CalculateToxicity(now)
	m.logger.Debug("quotes computed",
		"mid", mid, "q", q, "reservation", reservationPrice,
		"bid_tick", bidTick, "ask_tick", askTick,
		"bid_qty", bidQty, "ask_qty", askQty,
		"toxicity_score", toxicity.ToxicityScore,
		"flow_spread_multiplier", flowMultiplier,
	)

	return out
}

// reconcileOrders diffs desired quotes against resting orders. A resting
// order is kept if its price is within one tick and its remaining size is
// within sizeTolerance of the desired size; everything else is canceled.
func (m *Maker) reconcileOrders(desired QuotePair) {
	const sizeTolerance = 0.10

	matchedBid, matchedAsk := false, false
	for id, o := range m.bot.Orders(m.asset) {
		if o.Status.IsTerminal() || o.Req != order.ReqNone {
			continue
		}
		if o.Side == order.Buy && desired.Bid != nil {
			if o.PriceTick == desired.Bid.PriceTick && withinTolerance(o.LeavesQty, desired.Bid.Qty, sizeTolerance) {
				matchedBid = true
				continue
			}
		}
		if o.Side == order.Sell && desired.Ask != nil {
			if o.PriceTick == desired.Ask.PriceTick && withinTolerance(o.LeavesQty, desired.Ask.Qty, sizeTolerance) {
				matchedAsk = true
				continue
			}
		}
		if err := m.bot.Cancel(m.asset, id, false); err != nil {
			m.logger.Error("cancel order failed", "order_id", id, "error", err)
		}
	}

	if !matchedBid && desired.Bid != nil {
		m.submit(order.Buy, desired.Bid)
	}
	if !matchedAsk && desired.Ask != nil {
		m.submit(order.Sell, desired.Ask)
	}
}

func withinTolerance(got, want, tolerance float64) bool {
	if want == 0 {
		return got == 0
	}
	return math.Abs(got-want)/want <= tolerance
}

func (m *Maker) submit(side order.Side, q *Quote) {
	m.nextOrderID++
	id := m.nextOrderID
	var err error
	if side == order.Buy {
		err = m.bot.SubmitBuyOrder(m.asset, id, q.PriceTick, q.Qty, order.Limit, order.GTC, false)
	} else {
		err = m.bot.SubmitSellOrder(m.asset, id, q.PriceTick, q.Qty, order.Limit, order.GTC, false)
	}
	if err != nil {
		m.logger.Error("submit order failed", "side", side, "price_tick", q.PriceTick, "qty", q.Qty, "error", err)
	}
}

func (m *Maker) cancelAllMyOrders() {
	for id, o := range m.bot.Orders(m.asset) {
		if o.Status.IsTerminal() || o.Req != order.ReqNone {
			continue
		}
		if err := m.bot.Cancel(m.asset, id, false); err != nil {
			m.logger.Error("cancel order failed", "order_id", id, "error", err)
		}
	}
}
