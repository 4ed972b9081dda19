package live

import (
	"context"
	"log/slog"
	"time"

	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/order"
	"hftsim/internal/backtest/proc"
	"hftsim/internal/backtest/state"
	"hftsim/pkg/bot"
)

// assetRuntime pairs one asset's Local with the Feed publishing its
// decoded market-data events.
type assetRuntime struct {
	name  string
	local *proc.Local
	feed  *Feed
}

// Bot is the live-mode pkg/bot.Bot implementation: each registered asset's
// Feed events are applied to its proc.Local exactly as the backtest driver
// would apply reader events, so depth/state/order bookkeeping is identical
// on both sides of the interface. Order submission has no connector behind
// it (SPEC_FULL.md §5): Submit/Cancel update the local order map so the
// strategy sees its own request immediately, but no acknowledgement will
// ever arrive on fromExchange, since nothing drains it here.
type Bot struct {
	assets []*assetRuntime
	cancel context.CancelFunc
	logger *slog.Logger
}

var _ bot.Bot = (*Bot)(nil)

// NewBot constructs an empty live Bot. Call AddAsset to register each
// instrument's Local/Feed pair, then Start to begin consuming feed events.
func NewBot(logger *slog.Logger) *Bot {
	return &Bot{logger: logger.With("component", "live_bot")}
}

// AddAsset registers one asset's already-constructed Local and Feed.
func (b *Bot) AddAsset(name string, local *proc.Local, feed *Feed) bot.Asset {
	b.assets = append(b.assets, &assetRuntime{name: name, local: local, feed: feed})
	return bot.Asset(len(b.assets) - 1)
}

// Start launches every registered asset's Feed.Run in the background. Stop
// (via Close) cancels them all.
func (b *Bot) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	for _, rt := range b.assets {
		go rt.feed.Run(ctx)
	}
}

func (b *Bot) asset(a bot.Asset) *assetRuntime { return b.assets[int(a)] }

// CurrentTimestamp returns the real wall clock in nanoseconds; there is no
// logical clock to advance in live mode.
func (b *Bot) CurrentTimestamp() int64 { return time.Now().UnixNano() }

func (b *Bot) Depth(a bot.Asset) depth.MarketDepth { return b.asset(a).local.Depth() }

func (b *Bot) Position(a bot.Asset) float64 { return b.asset(a).local.State().Values().Position }

func (b *Bot) StateValues(a bot.Asset) state.Values { return b.asset(a).local.State().Values() }

func (b *Bot) Orders(a bot.Asset) map[uint64]*order.Order { return b.asset(a).local.Orders() }

func (b *Bot) LastTrades(a bot.Asset) []bot.Trade {
	trades := b.asset(a).local.LastTrades()
	out := make([]bot.Trade, len(trades))
	for i, t := range trades {
		out[i] = bot.Trade{Timestamp: time.Unix(0, t.Ts), PriceTick: t.PriceTick, Qty: t.Qty, Side: t.Side}
	}
	return out
}

func (b *Bot) ClearLastTrades(a bot.Asset) { b.asset(a).local.ClearLastTrades() }

func (b *Bot) ClearInactiveOrders(a bot.Asset) { b.asset(a).local.ClearInactiveOrders() }

func (b *Bot) SubmitBuyOrder(a bot.Asset, orderID uint64, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error {
	return b.submit(a, orderID, order.Buy, priceTick, qty, ordType, tif, wait)
}

func (b *Bot) SubmitSellOrder(a bot.Asset, orderID uint64, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error {
	return b.submit(a, orderID, order.Sell, priceTick, qty, ordType, tif, wait)
}

func (b *Bot) submit(a bot.Asset, orderID uint64, side order.Side, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error {
	rt := b.asset(a)
	if err := rt.local.Submit(orderID, side, priceTick, qty, ordType, tif, b.CurrentTimestamp()); err != nil {
		return err
	}
	if wait {
		b.logger.Warn("wait=true has no effect in live mode: no connector acknowledges the request", "asset", rt.name, "order_id", orderID)
	}
	return nil
}

func (b *Bot) Cancel(a bot.Asset, orderID uint64, wait bool) error {
	rt := b.asset(a)
	if err := rt.local.Cancel(orderID, b.CurrentTimestamp()); err != nil {
		return err
	}
	if wait {
		b.logger.Warn("wait=true has no effect in live mode: no connector acknowledges the request", "asset", rt.name, "order_id", orderID)
	}
	return nil
}

// Elapse blocks for wall-clock duration nanoseconds, applying every feed
// event that arrives in the meantime to its asset's Local. It returns false
// only once every asset's feed has permanently closed its Events channel
// with nothing left to read.
func (b *Bot) Elapse(duration int64) bool {
	timer := time.NewTimer(time.Duration(duration))
	defer timer.Stop()

	open := make([]bool, len(b.assets))
	for i := range open {
		open[i] = true
	}

	for {
		anyOpen := false
		for _, o := range open {
			anyOpen = anyOpen || o
		}
		if !anyOpen {
			return false
		}

		select {
		case <-timer.C:
			return true
		default:
		}

		dispatched := false
		for i, rt := range b.assets {
			if !open[i] {
				continue
			}
			select {
			case e, ok := <-rt.feed.Events():
				if !ok {
					open[i] = false
					continue
				}
				rt.local.ProcessData(e)
				dispatched = true
			default:
			}
		}
		if !dispatched {
			select {
			case <-timer.C:
				return true
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// ElapseBt is a no-op in live mode: there is no recorded data to
// fast-forward through (spec.md §5).
func (b *Bot) ElapseBt(duration int64) bool { return true }

// Close stops every asset's feed and is idempotent.
func (b *Bot) Close() error {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	return nil
}
