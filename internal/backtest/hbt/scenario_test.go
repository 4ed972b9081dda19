package hbt

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"hftsim/internal/backtest/asset"
	"hftsim/internal/backtest/depth"
	"hftsim/internal/backtest/event"
	"hftsim/internal/backtest/fee"
	"hftsim/internal/backtest/latency"
	"hftsim/internal/backtest/order"
	"hftsim/internal/backtest/proc"
	"hftsim/internal/backtest/queue"
	"hftsim/internal/backtest/state"
	"hftsim/pkg/bot"
)

// scenarioTick and scenarioLot match the book spec §8's scenarios are
// stated against ("tick 1, lot 1"); hbt_test.go's tickSize/lotSize (0.5/1.0)
// are used by the rest of this package's tests and kept separate here so
// scenario prices read as the literal ticks spec §8 names.
const (
	scenarioTick = 1.0
	scenarioLot  = 1.0
)

// scenarioAsset bundles the bot.Asset index the driver assigned with direct
// access to both depth views, so a scenario can seed the book before
// driving the shared clock through MultiAssetHBT — unlike newAssetSimple,
// which only wires a feed.
type scenarioAsset struct {
	asset      bot.Asset
	localDepth depth.MarketDepth
	exchDepth  depth.MarketDepth
}

func newScenarioAsset(t *testing.T, h *MultiAssetHBT, name string, evs []event.Event, qm queue.Model, lat latency.Model, takerRate decimal.Decimal) scenarioAsset {
	t.Helper()
	localDepth := depth.NewL2BTree(scenarioTick, scenarioLot)
	exchDepth := depth.NewL2BTree(scenarioTick, scenarioLot)
	st := state.New(asset.Linear{ContractSize: decimal.NewFromInt(1)}, fee.TradingValue{TakerRate: takerRate})
	toExchange := order.NewBus()
	fromExchange := order.NewBus()
	local := proc.NewLocal(localDepth, st, lat, toExchange, fromExchange, 16)
	exch := proc.NewNoPartialFillExchange(exchDepth, qm, lat, fromExchange)
	path := writeEvents(t, name+".dat", evs)
	reader := event.NewReader([]string{path})
	a := h.AddAsset(name, reader, local, exch, toExchange, fromExchange)
	return scenarioAsset{asset: a, localDepth: localDepth, exchDepth: exchDepth}
}

// seedBook places spec §8's canonical book ({bid 100 @ 10, ask 101 @ 10})
// directly on both depth views, as a feed snapshot would before any order
// is submitted.
func seedBook(sa scenarioAsset) {
	sa.localDepth.UpdateBidDepth(100, 10, 0)
	sa.localDepth.UpdateAskDepth(101, 10, 0)
	sa.exchDepth.UpdateBidDepth(100, 10, 0)
	sa.exchDepth.UpdateAskDepth(101, 10, 0)
}

func scenarioTradeEvent(exchTs int64, side event.Flags, priceTick, qty float64) event.Event {
	return event.Event{Ev: event.Exch | side | event.Trade, ExchTs: exchTs, Px: priceTick, Qty: qty}
}

// TestScenarioS1LimitPostNoFillEndToEnd drives spec §8 S1 through the full
// MultiAssetHBT scheduling loop (request -> exchange -> response), rather
// than calling proc.ExchangeProcessor directly the way
// proc.TestScenarioS1LimitPostNoFill does.
func TestScenarioS1LimitPostNoFillEndToEnd(t *testing.T) {
	lat := latency.Constant{EntryNs: 1000, ResponseNs: 1000}
	h := New()
	sa := newScenarioAsset(t, h, "A", nil, queue.RiskAdverse{}, lat, decimal.NewFromFloat(0.001))
	seedBook(sa)

	if err := h.SubmitBuyOrder(sa.asset, 1, 99, 5, order.Limit, order.GTC, true); err != nil {
		t.Fatalf("SubmitBuyOrder: %v", err)
	}

	if h.CurrentTimestamp() != 2000 {
		t.Fatalf("CurrentTimestamp = %d, want 2000 (entry + response latency)", h.CurrentTimestamp())
	}
	o, ok := h.Orders(sa.asset)[1]
	if !ok {
		t.Fatal("order 1 not tracked")
	}
	if o.Status != order.New {
		t.Fatalf("Status = %s, want New", o.Status)
	}
	values := h.StateValues(sa.asset)
	if values.Position != 0 {
		t.Fatalf("Position = %g, want 0", values.Position)
	}
	if values.Fee != 0 {
		t.Fatalf("Fee = %g, want 0", values.Fee)
	}
}

// TestScenarioS2AggressiveLimitCrossesEndToEnd drives spec §8 S2 through
// the full driver.
func TestScenarioS2AggressiveLimitCrossesEndToEnd(t *testing.T) {
	h := New()
	sa := newScenarioAsset(t, h, "A", nil, queue.RiskAdverse{}, latency.Constant{}, decimal.NewFromFloat(0.001))
	seedBook(sa)

	if err := h.SubmitBuyOrder(sa.asset, 1, 101, 3, order.Limit, order.IOC, true); err != nil {
		t.Fatalf("SubmitBuyOrder: %v", err)
	}

	o, ok := h.Orders(sa.asset)[1]
	if !ok {
		t.Fatal("order 1 not tracked")
	}
	if o.Status != order.Filled {
		t.Fatalf("Status = %s, want Filled", o.Status)
	}
	if o.Maker {
		t.Fatal("Maker should be false for an aggressive fill")
	}

	values := h.StateValues(sa.asset)
	if values.Position != 3 {
		t.Fatalf("Position = %g, want 3", values.Position)
	}
	if wantBalance := -303.0; math.Abs(values.Balance-wantBalance) > 1e-9 {
		t.Fatalf("Balance = %g, want %g", values.Balance, wantBalance)
	}
	if wantFee := 303.0 * 0.001; math.Abs(values.Fee-wantFee) > 1e-9 {
		t.Fatalf("Fee = %g, want %g", values.Fee, wantFee)
	}
	if values.TradeNum != 1 {
		t.Fatalf("TradeNum = %d, want 1", values.TradeNum)
	}
}

// TestScenarioS3GTXWouldCrossExpiresEndToEnd drives spec §8 S3 through the
// full driver.
func TestScenarioS3GTXWouldCrossExpiresEndToEnd(t *testing.T) {
	h := New()
	sa := newScenarioAsset(t, h, "A", nil, queue.RiskAdverse{}, latency.Constant{}, decimal.NewFromFloat(0.001))
	seedBook(sa)

	if err := h.SubmitBuyOrder(sa.asset, 1, 101, 3, order.Limit, order.GTX, true); err != nil {
		t.Fatalf("SubmitBuyOrder: %v", err)
	}

	o, ok := h.Orders(sa.asset)[1]
	if !ok {
		t.Fatal("order 1 not tracked")
	}
	if o.Status != order.Expired {
		t.Fatalf("Status = %s, want Expired", o.Status)
	}
	if o.ExecQty != 0 {
		t.Fatalf("ExecQty = %g, want 0 (no fills)", o.ExecQty)
	}
}

// TestScenarioS4QueueDrainThenMakerFillEndToEnd drives spec §8 S4 through
// the full driver: the resting order's ahead_qty only drains once the
// trade-print feed event is dispatched by Elapse, not by calling
// ExchangeProcessor.ProcessData directly.
func TestScenarioS4QueueDrainThenMakerFillEndToEnd(t *testing.T) {
	evs := []event.Event{scenarioTradeEvent(5000, event.Sell, 100, 10)}
	h := New()
	sa := newScenarioAsset(t, h, "A", evs, queue.RiskAdverse{}, latency.Constant{}, decimal.NewFromFloat(0.001))
	seedBook(sa)

	if err := h.SubmitBuyOrder(sa.asset, 1, 100, 2, order.Limit, order.GTC, false); err != nil {
		t.Fatalf("SubmitBuyOrder: %v", err)
	}
	// Elapse's bool return only promises "no data pending anywhere, ever";
	// a run that cleanly drains every bus and feed row before the target
	// still reports the exhaustion, so only the resulting order/state is
	// asserted here.
	h.Elapse(6000)

	o, ok := h.Orders(sa.asset)[1]
	if !ok {
		t.Fatal("order 1 not tracked")
	}
	if o.Status != order.Filled {
		t.Fatalf("Status = %s, want Filled", o.Status)
	}
	if o.ExecQty != 2 {
		t.Fatalf("ExecQty = %g, want 2", o.ExecQty)
	}
	if !o.Maker {
		t.Fatal("Maker should be true for a resting fill")
	}
}

// TestScenarioS5CancelRaceIdempotentEndToEnd drives spec §8 S5 through the
// full driver: the cancel request is issued locally before the fill
// response has arrived (a genuine race under nonzero response latency),
// and must still land on the exchange after the trade already filled the
// order there.
func TestScenarioS5CancelRaceIdempotentEndToEnd(t *testing.T) {
	evs := []event.Event{scenarioTradeEvent(5000, event.Sell, 100, 10)}
	h := New()
	lat := latency.Constant{EntryNs: 0, ResponseNs: 2000}
	sa := newScenarioAsset(t, h, "A", evs, queue.RiskAdverse{}, lat, decimal.NewFromFloat(0.001))
	seedBook(sa)

	if err := h.SubmitBuyOrder(sa.asset, 1, 100, 2, order.Limit, order.GTC, false); err != nil {
		t.Fatalf("SubmitBuyOrder: %v", err)
	}

	// Advances past the trade print (exch_ts 5000, filled there
	// immediately) but stops before its response (arrival 5000+2000=7000)
	// reaches Local, so the order is still New/resting locally.
	h.Elapse(6000)
	if h.CurrentTimestamp() != 6000 {
		t.Fatalf("CurrentTimestamp = %d, want 6000", h.CurrentTimestamp())
	}
	if o := h.Orders(sa.asset)[1]; o.Status.IsTerminal() {
		t.Fatalf("order should not be terminal locally yet, got %s", o.Status)
	}

	if err := h.Cancel(sa.asset, 1, false); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Drains the fill response (7000), the cancel's idempotent echo
	// (6000+2000=8000), and anything after.
	h.Elapse(3000)

	o, ok := h.Orders(sa.asset)[1]
	if !ok {
		t.Fatal("order 1 not tracked")
	}
	if o.Status != order.Filled {
		t.Fatalf("Status = %s, want Filled (idempotent echo, not re-canceled)", o.Status)
	}
	if o.ExecQty != 2 {
		t.Fatalf("ExecQty = %g, want 2 (no double-credit from the echoed response)", o.ExecQty)
	}
}

// TestScenarioS6SnapshotThenDeltaEndToEnd drives spec §8 S6 through the
// full driver: a three-level snapshot replay (one feed event per level,
// clear flag only on the first) followed by a delta, dispatched by Elapse
// in file order.
func TestScenarioS6SnapshotThenDeltaEndToEnd(t *testing.T) {
	evs := []event.Event{
		{Ev: event.Local | event.Exch | event.DepthSnapshot | event.DepthClear | event.Buy, ExchTs: 0, Px: 100, Qty: 5},
		{Ev: event.Local | event.Exch | event.DepthSnapshot | event.Buy, ExchTs: 0, Px: 99, Qty: 7},
		{Ev: event.Local | event.Exch | event.DepthSnapshot | event.Sell, ExchTs: 0, Px: 101, Qty: 8},
		{Ev: event.Local | event.Exch | event.Depth | event.Buy, ExchTs: 1000, Px: 100, Qty: 0},
	}
	h := New()
	sa := newScenarioAsset(t, h, "A", evs, queue.RiskAdverse{}, latency.Constant{}, decimal.NewFromFloat(0.001))

	h.Elapse(2000)

	if got := h.Depth(sa.asset).BestBidTick(); got != 99 {
		t.Fatalf("BestBidTick = %d, want 99", got)
	}
}
