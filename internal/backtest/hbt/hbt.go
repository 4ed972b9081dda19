// Package hbt implements the multi-asset backtest driver (spec §4.9): one
// reader/Local/Exchange/bus set per asset, advanced by a single shared
// logical clock that dispatches exactly one event per step, in the
// tie-break order exch→local response, then local→exch request, then feed
// event (ties across assets broken by ascending asset index).
package hbt

import (
	"math"
	"time"

	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/event"
	"hftsim/internal/backtest/order"
	"hftsim/internal/backtest/proc"
	"hftsim/internal/backtest/state"
	"hftsim/pkg/bot"
)

const (
	kindRecv = iota
	kindSend
	kindFeed
)

// assetRuntime is the fully-wired set of components serving one asset.
type assetRuntime struct {
	name         string
	reader       *event.Reader
	local        *proc.Local
	exch         proc.ExchangeProcessor
	toExchange   *order.Bus
	fromExchange *order.Bus
}

// MultiAssetHBT is the deterministic backtest driver implementing
// pkg/bot.Bot. It owns every asset's reader, Local, Exchange, and bus pair,
// advancing the shared clock synchronously with no goroutines (spec §5).
type MultiAssetHBT struct {
	now    int64
	assets []*assetRuntime
	err    error
}

var _ bot.Bot = (*MultiAssetHBT)(nil)

// New constructs an empty driver; call AddAsset (or Build, from a
// config.Config) to register assets before use.
func New() *MultiAssetHBT {
	return &MultiAssetHBT{}
}

// AddAsset registers one asset's already-wired components and returns the
// bot.Asset index assigned to it (assignment order is call order).
func (h *MultiAssetHBT) AddAsset(name string, reader *event.Reader, local *proc.Local, exch proc.ExchangeProcessor, toExchange, fromExchange *order.Bus) bot.Asset {
	h.assets = append(h.assets, &assetRuntime{
		name: name, reader: reader, local: local, exch: exch,
		toExchange: toExchange, fromExchange: fromExchange,
	})
	return bot.Asset(len(h.assets) - 1)
}

// Err returns the first fatal DataError encountered while reading feed
// data, if any. A DataError is always fatal to the run (spec §7); once set,
// Elapse/ElapseBt report false from then on.
func (h *MultiAssetHBT) Err() error { return h.err }

// NumAssets returns the number of assets registered via AddAsset/Build.
func (h *MultiAssetHBT) NumAssets() int { return len(h.assets) }

// AssetName returns the name an asset was registered under.
func (h *MultiAssetHBT) AssetName(a bot.Asset) string { return h.asset(a).name }

func (h *MultiAssetHBT) asset(a bot.Asset) *assetRuntime { return h.assets[int(a)] }

// CurrentTimestamp returns the current value of the logical clock.
func (h *MultiAssetHBT) CurrentTimestamp() int64 { return h.now }

func (h *MultiAssetHBT) Depth(a bot.Asset) depth.MarketDepth {
	return h.asset(a).local.Depth()
}

func (h *MultiAssetHBT) Position(a bot.Asset) float64 {
	return h.asset(a).local.State().Values().Position
}

func (h *MultiAssetHBT) StateValues(a bot.Asset) state.Values {
	return h.asset(a).local.State().Values()
}

func (h *MultiAssetHBT) Orders(a bot.Asset) map[uint64]*order.Order {
	return h.asset(a).local.Orders()
}

func (h *MultiAssetHBT) LastTrades(a bot.Asset) []bot.Trade {
	trades := h.asset(a).local.LastTrades()
	out := make([]bot.Trade, len(trades))
	for i, t := range trades {
		out[i] = bot.Trade{Timestamp: time.Unix(0, t.Ts), PriceTick: t.PriceTick, Qty: t.Qty, Side: t.Side}
	}
	return out
}

func (h *MultiAssetHBT) ClearLastTrades(a bot.Asset) {
	h.asset(a).local.ClearLastTrades()
}

func (h *MultiAssetHBT) ClearInactiveOrders(a bot.Asset) {
	h.asset(a).local.ClearInactiveOrders()
}

func (h *MultiAssetHBT) SubmitBuyOrder(a bot.Asset, orderID uint64, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error {
	return h.submit(a, orderID, order.Buy, priceTick, qty, ordType, tif, wait)
}

func (h *MultiAssetHBT) SubmitSellOrder(a bot.Asset, orderID uint64, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error {
	return h.submit(a, orderID, order.Sell, priceTick, qty, ordType, tif, wait)
}

func (h *MultiAssetHBT) submit(a bot.Asset, orderID uint64, side order.Side, priceTick int64, qty float64, ordType order.Type, tif order.TIF, wait bool) error {
	rt := h.asset(a)
	if err := rt.local.Submit(orderID, side, priceTick, qty, ordType, tif, h.now); err != nil {
		return err
	}
	if wait {
		h.waitFor(a, orderID)
	}
	return nil
}

func (h *MultiAssetHBT) Cancel(a bot.Asset, orderID uint64, wait bool) error {
	rt := h.asset(a)
	if err := rt.local.Cancel(orderID, h.now); err != nil {
		return err
	}
	if wait {
		h.waitFor(a, orderID)
	}
	return nil
}

// Elapse advances the clock by exactly duration ns, dispatching every event
// due within [now, now+duration] one at a time (spec §4.9's scheduling
// loop). Returns false once every data source is permanently exhausted
// with nothing left to process, ever.
func (h *MultiAssetHBT) Elapse(duration int64) bool {
	if h.err != nil {
		return false
	}
	target := h.now + duration
	for h.now < target {
		ts, idx, kind, ok := h.nextCandidate()
		if !ok {
			h.now = target
			return false
		}
		if ts > target {
			h.now = target
			return true
		}
		h.now = ts
		h.dispatch(idx, kind, ts, -1, 0)
		if h.err != nil {
			return false
		}
	}
	return true
}

// ElapseBt is identical to Elapse in the backtest driver (spec §4.9; the
// live shim makes it a no-op instead).
func (h *MultiAssetHBT) ElapseBt(duration int64) bool {
	return h.Elapse(duration)
}

// Close releases every asset's reader. Idempotent.
func (h *MultiAssetHBT) Close() error {
	var firstErr error
	for _, rt := range h.assets {
		if err := rt.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// waitFor advances the clock, dispatching events regardless of how far out
// they are due, until a response for (waitAsset, waitOrderID) arrives or
// every data source is exhausted.
func (h *MultiAssetHBT) waitFor(waitAsset bot.Asset, waitOrderID uint64) {
	for {
		ts, idx, kind, ok := h.nextCandidate()
		if !ok {
			return
		}
		h.now = ts
		arrived := h.dispatch(idx, kind, ts, int(waitAsset), waitOrderID)
		if h.err != nil || arrived {
			return
		}
	}
}

// nextCandidate finds the earliest pending event across every asset,
// breaking ties by kind (recv before send before feed) and then by
// ascending asset index.
func (h *MultiAssetHBT) nextCandidate() (ts int64, assetIdx, kind int, ok bool) {
	bestTs := int64(math.MaxInt64)
	bestKind := math.MaxInt32
	bestIdx := -1

	consider := func(t int64, k, i int) {
		if t < bestTs || (t == bestTs && k < bestKind) {
			bestTs, bestKind, bestIdx = t, k, i
		}
	}

	for i, rt := range h.assets {
		if t, has := rt.fromExchange.FrontmostTs(); has {
			consider(t, kindRecv, i)
		}
		if t, has := rt.toExchange.FrontmostTs(); has {
			consider(t, kindSend, i)
		}
		if t, has, err := rt.reader.PeekTs(); err != nil {
			if h.err == nil {
				h.err = err
			}
		} else if has {
			consider(t, kindFeed, i)
		}
	}

	if bestIdx < 0 {
		return 0, 0, 0, false
	}
	return bestTs, bestIdx, bestKind, true
}

// dispatch applies exactly one event for (assetIdx, kind) at ts, returning
// whether it was the response waitAssetIdx/waitOrderID was waiting on
// (waitAssetIdx < 0 means no wait is in progress).
func (h *MultiAssetHBT) dispatch(assetIdx, kind int, ts int64, waitAssetIdx int, waitOrderID uint64) bool {
	rt := h.assets[assetIdx]
	switch kind {
	case kindRecv:
		arrived := rt.local.ProcessRecvOrder(ts, waitOrderID)
		return waitAssetIdx == assetIdx && arrived
	case kindSend:
		req, reqTs, ok := rt.toExchange.PopFront()
		if ok {
			rt.exch.ProcessOrder(req, reqTs)
		}
		return false
	case kindFeed:
		e, ok, err := rt.reader.Next()
		if err != nil {
			if h.err == nil {
				h.err = err
			}
			return false
		}
		if !ok {
			return false
		}
		rt.local.ProcessData(e)
		rt.exch.ProcessData(e)
		return false
	}
	return false
}
