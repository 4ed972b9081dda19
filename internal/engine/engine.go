// Package engine is the central orchestrator of a backtest run.
//
// It wires together all subsystems:
//
//  1. hbt.Build assembles the deterministic multi-asset driver from config.
//  2. Runner advances the driver's single shared logical clock by
//     cfg.Strategy.RefreshIntervalNs at a time, giving every asset's
//     strategy.Maker a Tick after each advance — all from one goroutine,
//     since the driver's clock is not safe for concurrent advancement.
//  3. A risk.Manager watches aggregate exposure across all assets and can
//     trigger a kill switch; its own loop runs in a second goroutine keyed
//     off the driver's logical clock.
//  4. Runner records each tick's fills and a periodic equity sample per
//     asset, and on completion persists the full run result (equity curve,
//     trade log, final position per asset) via internal/store.
//
// Lifecycle: New() → Run(ctx) → Close()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hftsim/internal/api"
	"hftsim/internal/backtest/fetch"
	"hftsim/internal/backtest/hbt"
	"hftsim/internal/config"
	"hftsim/internal/risk"
	"hftsim/internal/store"
	"hftsim/internal/strategy"
	"hftsim/pkg/bot"
)

// assetSlot is one simulated instrument: its Bot index, maker, and the
// equity/trade history accumulated for the run result.
type assetSlot struct {
	name   string
	asset  bot.Asset
	maker  *strategy.Maker
	trades []store.TradeRecord
	equity []store.EquityPoint

	lastEquitySampleNs int64
}

// Runner drives a complete backtest run: every asset's strategy.Maker
// ticked in lock-step against a shared hbt.MultiAssetHBT, a risk.Manager
// watching all of them, and a Store persisting the final result.
type Runner struct {
	cfg     config.Config
	driver  *hbt.MultiAssetHBT
	riskMgr *risk.Manager
	store   *store.Store
	logger  *slog.Logger

	slots []*assetSlot

	startedAtNs int64
}

// New builds a Runner from cfg: the multi-asset driver (resolving any
// https:// reader file entries through fetcher first), a risk manager, a
// strategy.Maker per asset restored from any persisted position, and a
// Store rooted at cfg.Store.DataDir.
func New(cfg config.Config, fetcher *fetch.Fetcher, logger *slog.Logger) (*Runner, error) {
	driver, err := hbt.Build(&cfg, fetcher)
	if err != nil {
		return nil, fmt.Errorf("build backtest driver: %w", err)
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	riskMgr := risk.NewManager(cfg.Risk, logger)

	r := &Runner{
		cfg:     cfg,
		driver:  driver,
		riskMgr: riskMgr,
		store:   st,
		logger:  logger.With("component", "engine"),
	}

	for i, a := range cfg.Assets {
		assetIdx := bot.Asset(i)
		maker := strategy.NewMaker(cfg.Strategy, a.Name, assetIdx, driver, riskMgr, logger)

		if pos, err := st.LoadPosition(a.Name); err == nil && pos != nil {
			maker.SetPosition(*pos)
		}

		r.slots = append(r.slots, &assetSlot{
			name:  a.Name,
			asset: assetIdx,
			maker: maker,
		})
	}

	return r, nil
}

// Run drives the backtest to completion, or until ctx is canceled. It
// blocks until the driver's data is exhausted (or ctx is canceled), then
// persists the final run result and returns.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAtNs = r.driver.CurrentTimestamp()
	r.logger.Info("run started", "assets", len(r.slots))

	riskCtx, cancelRisk := context.WithCancel(ctx)
	defer cancelRisk()

	killCh := make(chan struct{})
	go func() {
		r.riskMgr.Run(riskCtx, r.driver.CurrentTimestamp)
	}()
	go r.watchKillSwitch(riskCtx, killCh)

	refresh := r.cfg.Strategy.RefreshIntervalNs

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		if !r.driver.Elapse(refresh) {
			break loop
		}

		for _, slot := range r.slots {
			slot.maker.Tick()
			r.recordFills(slot)
			r.maybeSampleEquity(slot)
		}
	}

	r.stopAll()
	cancelRisk()
	<-killCh

	return r.finish()
}

// watchKillSwitch logs kill signals for visibility into the run; each
// Maker already checks risk.Manager.IsKillSwitchActive itself every Tick
// and cancels its own orders, so this goroutine has no cancellation work
// of its own. Closes done once ctx is canceled.
func (r *Runner) watchKillSwitch(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case kill := <-r.riskMgr.KillCh():
			r.logger.Error("KILL SIGNAL received", "asset", kill.Asset, "reason", kill.Reason)
		}
	}
}

// recordFills appends the fills applied during the asset's most recent
// Tick to its trade log, converting back to ticks via the asset's depth.
func (r *Runner) recordFills(slot *assetSlot) {
	fills := slot.maker.LastFills()
	if len(fills) == 0 {
		return
	}
	tickSize := r.driver.Depth(slot.asset).TickSize()
	for _, f := range fills {
		slot.trades = append(slot.trades, store.TradeRecord{
			TimestampNs: f.TimestampNs,
			Side:        f.Side.String(),
			PriceTick:   int64(f.Price/tickSize + 0.5),
			Qty:         f.Qty,
		})
	}
}

// maybeSampleEquity records a mark-to-market equity point for the asset
// once at least cfg.Store.EquitySampleIntervalNs has elapsed since the
// last sample.
func (r *Runner) maybeSampleEquity(slot *assetSlot) {
	now := r.driver.CurrentTimestamp()
	interval := r.cfg.Store.EquitySampleIntervalNs
	if interval <= 0 {
		interval = 1
	}
	if now-slot.lastEquitySampleNs < interval {
		return
	}
	slot.lastEquitySampleNs = now

	pos := slot.maker.PositionSnapshot()
	equity := pos.RealizedPnL + pos.UnrealizedPnL
	slot.equity = append(slot.equity, store.EquityPoint{TimestampNs: now, Equity: equity})
}

// stopAll cancels every asset's resting orders and persists its position.
func (r *Runner) stopAll() {
	for _, slot := range r.slots {
		slot.maker.Stop()

		pos := slot.maker.PositionSnapshot()
		if err := r.store.SavePosition(slot.name, pos); err != nil {
			r.logger.Error("failed to save position", "asset", slot.name, "error", err)
		}
	}
}

// finish assembles and persists the full RunResult, then closes the store.
func (r *Runner) finish() error {
	result := store.RunResult{
		StartedAtNs:  r.startedAtNs,
		FinishedAtNs: r.driver.CurrentTimestamp(),
		Assets:       make(map[string]store.AssetResult, len(r.slots)),
	}

	for _, slot := range r.slots {
		result.Assets[slot.name] = store.AssetResult{
			FinalPosition: slot.maker.PositionSnapshot(),
			EquityCurve:   append([]store.EquityPoint(nil), slot.equity...),
			Trades:        append([]store.TradeRecord(nil), slot.trades...),
		}
	}

	if err := r.store.SaveRunResult(result); err != nil {
		r.logger.Error("failed to save run result", "error", err)
	}

	r.logger.Info("run finished", "finished_at_ns", result.FinishedAtNs)
	return r.store.Close()
}

// RiskManager returns the run's risk manager, for external status reporting.
func (r *Runner) RiskManager() *risk.Manager {
	return r.riskMgr
}

// AssetStatuses returns a live snapshot of every asset's book and position
// state, for internal/api's status server. Safe to call concurrently with
// Run: strategy.Maker's accessors and the driver's depth reads are
// read-only views over state only the run loop's single goroutine mutates.
func (r *Runner) AssetStatuses() []api.AssetStatus {
	out := make([]api.AssetStatus, 0, len(r.slots))
	for _, slot := range r.slots {
		depth := r.driver.Depth(slot.asset)
		bid, ask := depth.BestBid(), depth.BestAsk()
		mid := (bid + ask) / 2
		spread := ask - bid

		pos := slot.maker.PositionSnapshot()
		var spreadBps float64
		if mid > 0 {
			spreadBps = (spread / mid) * 10000
		}

		out = append(out, api.AssetStatus{
			Name:      slot.name,
			MidPrice:  mid,
			BestBid:   bid,
			BestAsk:   ask,
			Spread:    spread,
			SpreadBps: spreadBps,
			Position: api.PositionSnapshot{
				Qty:           pos.Qty,
				AvgEntryPrice: pos.AvgEntryPrice,
				RealizedPnL:   pos.RealizedPnL,
				UnrealizedPnL: pos.UnrealizedPnL,
				ExposureUSD:   slot.maker.ExposureUSD(mid),
				Skew:          slot.maker.NetDelta(),
				LastUpdated:   time.Unix(0, pos.LastUpdatedNs),
			},
			TickSize: depth.TickSize(),
		})
	}
	return out
}

// Close releases the underlying backtest driver's resources (readers,
// recorders). Safe to call after Run returns.
func (r *Runner) Close() error {
	return r.driver.Close()
}
