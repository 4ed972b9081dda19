package strategy

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"hftsim/internal/backtest/order"
	"hftsim/internal/config"
)

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		Gamma:            0.5,
		Sigma:            0.2,
		K:                10.0,
		T:                0.5,
		DefaultSpreadBps: 100, // 1% min spread
		OrderQty:         50,
		MinOrderQty:      1,
		MaxPosition:      100,
		RefreshIntervalNs: 5_000_000_000,

		FlowWindowNs:            60_000_000_000,
		FlowToxicityThreshold:   0.6,
		FlowCooldownNs:          120_000_000_000,
		FlowMaxSpreadMultiplier: 3.0,
	}
}

func setupMaker(cfg config.StrategyConfig) *Maker {
	return &Maker{
		cfg:         cfg,
		name:        testAsset,
		inventory:   NewInventory(testAsset, cfg.MaxPosition),
		flowTracker: NewFlowTracker(cfg.FlowWindowNs, cfg.FlowToxicityThreshold, cfg.FlowCooldownNs, cfg.FlowMaxSpreadMultiplier),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestComputeQuotesBalanced(t *testing.T) {
	t.Parallel()
	m := setupMaker(testStrategyConfig())

	mid, budget, tickSize := 100.0, 10000.0, 0.5
	quotes := m.computeQuotes(mid, budget, tickSize, 0)

	if quotes.Bid == nil {
		t.Fatal("expected a bid")
	}
	if quotes.Ask == nil {
		t.Fatal("expected an ask")
	}

	bidPrice := float64(quotes.Bid.PriceTick) * tickSize
	askPrice := float64(quotes.Ask.PriceTick) * tickSize
	if bidPrice >= mid {
		t.Errorf("bid price %v should be below mid %v", bidPrice, mid)
	}
	if askPrice <= mid {
		t.Errorf("ask price %v should be above mid %v", askPrice, mid)
	}

	bidDist := mid - bidPrice
	askDist := askPrice - mid
	if math.Abs(bidDist-askDist) > tickSize*2 {
		t.Errorf("quotes not roughly symmetric: bidDist=%v, askDist=%v", bidDist, askDist)
	}
}

func TestComputeQuotesLongSkew(t *testing.T) {
	t.Parallel()
	m := setupMaker(testStrategyConfig())
	m.inventory.OnFill(Fill{Side: order.Buy, Price: 100, Qty: 50})

	mid, budget, tickSize := 100.0, 10000.0, 0.5
	quotes := m.computeQuotes(mid, budget, tickSize, 0)

	if quotes.Bid == nil || quotes.Ask == nil {
		t.Fatal("expected both bid and ask")
	}

	bidPrice := float64(quotes.Bid.PriceTick) * tickSize
	askPrice := float64(quotes.Ask.PriceTick) * tickSize
	midpoint := (bidPrice + askPrice) / 2
	if midpoint >= mid {
		t.Errorf("midpoint of quotes %v should be below mid %v when long", midpoint, mid)
	}
}

func TestComputeQuotesShortSkew(t *testing.T) {
	t.Parallel()
	m := setupMaker(testStrategyConfig())
	m.inventory.OnFill(Fill{Side: order.Sell, Price: 100, Qty: 50})

	mid, budget, tickSize := 100.0, 10000.0, 0.5
	quotes := m.computeQuotes(mid, budget, tickSize, 0)

	if quotes.Bid == nil || quotes.Ask == nil {
		t.Fatal("expected both bid and ask")
	}

	bidPrice := float64(quotes.Bid.PriceTick) * tickSize
	askPrice := float64(quotes.Ask.PriceTick) * tickSize
	midpoint := (bidPrice + askPrice) / 2
	if midpoint <= mid {
		t.Errorf("midpoint of quotes %v should be above mid %v when short", midpoint, mid)
	}
}

func TestComputeQuotesBudgetExhausted(t *testing.T) {
	t.Parallel()
	m := setupMaker(testStrategyConfig())

	mid, budget, tickSize := 100.0, 0.001, 0.5
	quotes := m.computeQuotes(mid, budget, tickSize, 0)

	if quotes.Bid != nil {
		t.Errorf("expected nil bid with exhausted budget, got price_tick=%v", quotes.Bid.PriceTick)
	}
	if quotes.Ask != nil {
		t.Errorf("expected nil ask with exhausted budget, got price_tick=%v", quotes.Ask.PriceTick)
	}
}

func TestComputeQuotesCombinedNotionalWithinBudget(t *testing.T) {
	t.Parallel()
	m := setupMaker(testStrategyConfig())

	mid, budget, tickSize := 100.0, 250.0, 0.5
	quotes := m.computeQuotes(mid, budget, tickSize, 0)

	if quotes.Bid == nil || quotes.Ask == nil {
		t.Fatalf("expected both bid and ask for budget check")
	}

	bidPrice := float64(quotes.Bid.PriceTick) * tickSize
	askPrice := float64(quotes.Ask.PriceTick) * tickSize
	totalNotional := quotes.Bid.Qty*bidPrice + quotes.Ask.Qty*askPrice
	if totalNotional > budget+1e-6 {
		t.Fatalf("combined quoted notional exceeds budget: got %.6f > %.6f", totalNotional, budget)
	}
}

func TestComputeQuotesBidBelowAsk(t *testing.T) {
	t.Parallel()
	m := setupMaker(testStrategyConfig())

	mid, budget, tickSize := 100.0, 10000.0, 0.5
	quotes := m.computeQuotes(mid, budget, tickSize, 0)

	if quotes.Bid != nil && quotes.Ask != nil {
		if quotes.Bid.PriceTick >= quotes.Ask.PriceTick {
			t.Errorf("bid tick %v >= ask tick %v (crossed)", quotes.Bid.PriceTick, quotes.Ask.PriceTick)
		}
	}
}

func TestComputeQuotesPositiveTickFloor(t *testing.T) {
	t.Parallel()
	m := setupMaker(testStrategyConfig())

	// A tiny mid price with a large spread formula should still clamp the
	// bid to at least one tick, never zero or negative.
	mid, budget, tickSize := 0.01, 10000.0, 0.01
	quotes := m.computeQuotes(mid, budget, tickSize, 0)

	if quotes.Bid != nil && quotes.Bid.PriceTick < 1 {
		t.Errorf("bid tick %v should be >= 1", quotes.Bid.PriceTick)
	}
}
