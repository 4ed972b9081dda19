package hbt

import (
	"path/filepath"
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

const tickSize = 0.5
const lotSize = 1.0

// writeEvents writes evs to a fresh uncompressed event file under t's temp
// dir and returns its path.
func writeEvents(t *testing.T, name string, evs []event.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	w, err := event.NewWriter(path, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, e := range evs {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

// newAssetSimple wires one asset's Local/Exchange pair with a constant
// latency model and the risk-adverse queue model, reading evs as its feed.
func newAssetSimple(t *testing.T, h *MultiAssetHBT, name string, evs []event.Event, entryNs, responseNs int64) bot.Asset {
	t.Helper()
	localDepth := depth.NewL2BTree(tickSize, lotSize)
	exchDepth := depth.NewL2BTree(tickSize, lotSize)
	st := state.New(asset.Linear{ContractSize: decimal.NewFromInt(1)}, fee.TradingValue{})
	lat := latency.Constant{EntryNs: entryNs, ResponseNs: responseNs}
	toExchange := order.NewBus()
	fromExchange := order.NewBus()
	local := proc.NewLocal(localDepth, st, lat, toExchange, fromExchange, 16)
	exch := proc.NewNoPartialFillExchange(exchDepth, queue.RiskAdverse{}, lat, fromExchange)
	path := writeEvents(t, name+".dat", evs)
	reader := event.NewReader([]string{path})
	return h.AddAsset(name, reader, local, exch, toExchange, fromExchange)
}

func depthEvent(exchTs int64, side event.Flags, priceTick float64, qty float64) event.Event {
	return event.Event{
		Ev:      event.Local | event.Exch | event.Depth | side,
		ExchTs:  exchTs,
		LocalTs: exchTs,
		Px:      priceTick,
		Qty:     qty,
	}
}

func TestElapseAppliesFeedEventsInOrder(t *testing.T) {
	evs := []event.Event{
		depthEvent(100, event.Buy, 100.0, 10),
		depthEvent(200, event.Sell, 100.5, 5),
	}
	h := New()
	a := newAssetSimple(t, h, "A", evs, 0, 0)

	if !h.Elapse(50) {
		t.Fatalf("Elapse should report true (not exhausted) before any event fires")
	}
	if h.CurrentTimestamp() != 50 {
		t.Fatalf("CurrentTimestamp = %d, want 50", h.CurrentTimestamp())
	}

	if !h.Elapse(100) {
		t.Fatalf("Elapse should report true")
	}
	if h.CurrentTimestamp() != 150 {
		t.Fatalf("CurrentTimestamp = %d, want 150", h.CurrentTimestamp())
	}
	if got := h.Depth(a).BestBidTick(); got != 200 {
		t.Fatalf("BestBidTick = %d, want 200 (100.0/0.5)", got)
	}

	if h.Elapse(1000) {
		t.Fatalf("Elapse should report false: every feed row was consumed and nothing is pending")
	}
	if h.CurrentTimestamp() != 1150 {
		t.Fatalf("CurrentTimestamp = %d, want 1150", h.CurrentTimestamp())
	}
}

func TestElapseReturnsFalseOnlyWhenFullyExhausted(t *testing.T) {
	evs := []event.Event{depthEvent(10, event.Buy, 100.0, 10)}
	h := New()
	newAssetSimple(t, h, "A", evs, 0, 0)

	if !h.Elapse(5) {
		t.Fatalf("first Elapse: want true")
	}
	if h.Elapse(1_000_000) {
		t.Fatalf("Elapse after consuming the last feed row with nothing pending: want false")
	}
	if h.Err() != nil {
		t.Fatalf("Err() = %v, want nil", h.Err())
	}
}

func TestSubmitBuyOrderWaitBlocksUntilResponse(t *testing.T) {
	evs := []event.Event{
		depthEvent(0, event.Sell, 101.0, 20),
	}
	h := New()
	a := newAssetSimple(t, h, "A", evs, 100, 100)

	if h.Elapse(10) {
		t.Fatalf("Elapse: want false (the only feed row is consumed)")
	}

	if err := h.SubmitBuyOrder(a, 1, 202, 5, order.Limit, order.GTC, true); err != nil {
		t.Fatalf("SubmitBuyOrder: %v", err)
	}

	o, ok := h.Orders(a)[1]
	if !ok {
		t.Fatalf("order 1 not tracked after wait")
	}
	if o.Status != order.New && o.Status != order.Filled && o.Status != order.PartiallyFilled {
		t.Fatalf("order 1 status = %v, want a response to have arrived", o.Status)
	}
}

func TestDuplicateOrderIDRejected(t *testing.T) {
	h := New()
	a := newAssetSimple(t, h, "A", nil, 10, 10)

	if err := h.SubmitBuyOrder(a, 1, 200, 1, order.Limit, order.GTC, false); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := h.SubmitBuyOrder(a, 1, 200, 1, order.Limit, order.GTC, false); err == nil {
		t.Fatalf("expected an error resubmitting order id 1")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := New()
	newAssetSimple(t, h, "A", nil, 0, 0)
	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMultiAssetTieBreakAscendingIndex(t *testing.T) {
	evsA := []event.Event{depthEvent(100, event.Buy, 100.0, 1)}
	evsB := []event.Event{depthEvent(100, event.Sell, 100.0, 1)}
	h := New()
	a := newAssetSimple(t, h, "A", evsA, 0, 0)
	b := newAssetSimple(t, h, "B", evsB, 0, 0)

	if h.Elapse(150) {
		t.Fatalf("Elapse: want false (both feed rows are consumed)")
	}
	if got := h.Depth(a).BestBidTick(); got != 200 {
		t.Fatalf("asset A BestBidTick = %d, want 200", got)
	}
	if got := h.Depth(b).BestAskTick(); got != 200 {
		t.Fatalf("asset B BestAskTick = %d, want 200", got)
	}
}
