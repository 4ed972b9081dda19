package depth

import (
	"testing"

	"hftsim/internal/backtest/order"
)

func TestEmptyBookSentinels(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		if book.BestBidTick() != InvalidMinTick {
			t.Fatalf("empty book BestBidTick = %d, want InvalidMinTick", book.BestBidTick())
		}
		if book.BestAskTick() != InvalidMaxTick {
			t.Fatalf("empty book BestAskTick = %d, want InvalidMaxTick", book.BestAskTick())
		}
	}
}

func bothBackends(tick, lot float64) []MarketDepth {
	return []MarketDepth{NewL2HashMap(tick, lot), NewL2BTree(tick, lot)}
}

func TestUpdateDepthBasic(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		book.UpdateBidDepth(100, 10, 0)
		book.UpdateAskDepth(101, 10, 0)
		if book.BestBidTick() != 100 {
			t.Fatalf("BestBidTick = %d, want 100", book.BestBidTick())
		}
		if book.BestAskTick() != 101 {
			t.Fatalf("BestAskTick = %d, want 101", book.BestAskTick())
		}
		if book.BidQtyAtTick(100) != 10 {
			t.Fatalf("BidQtyAtTick(100) = %g, want 10", book.BidQtyAtTick(100))
		}
	}
}

func TestUpdateDepthDeletesOnZeroQty(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		book.UpdateBidDepth(100, 10, 0)
		book.UpdateBidDepth(99, 5, 0)
		book.UpdateBidDepth(100, 0, 0)
		if book.BestBidTick() != 99 {
			t.Fatalf("BestBidTick after deletion = %d, want 99", book.BestBidTick())
		}
		if book.BidQtyAtTick(100) != 0 {
			t.Fatalf("BidQtyAtTick(100) = %g, want 0", book.BidQtyAtTick(100))
		}
	}
}

// TestInvariantBookMonotonicity covers spec §8 invariant 1: whenever both
// sides are non-empty, best_bid_tick < best_ask_tick.
func TestInvariantBookMonotonicity(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		book.UpdateBidDepth(100, 10, 0)
		book.UpdateAskDepth(101, 10, 0)

		// A new aggressive bid above the current best ask must evict the
		// crossed ask levels (fused events) to keep the book monotone.
		fused := book.UpdateBidDepth(102, 5, 1000)
		if len(fused) == 0 {
			t.Fatalf("expected fused eviction events when bid crosses ask")
		}
		if book.BestBidTick() >= book.BestAskTick() && book.BestAskTick() != InvalidMaxTick {
			t.Fatalf("monotonicity violated: bestBid=%d bestAsk=%d", book.BestBidTick(), book.BestAskTick())
		}
		for _, fe := range fused {
			if fe.Side != order.Sell {
				t.Fatalf("expected fused eviction on ask side, got %s", fe.Side)
			}
			if fe.PriceTick != 101 {
				t.Fatalf("expected evicted tick 101, got %d", fe.PriceTick)
			}
		}
	}
}

func TestClearDepthEntireSide(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		book.UpdateBidDepth(100, 10, 0)
		book.UpdateBidDepth(99, 5, 0)
		book.ClearDepth(order.Buy, 0, 0)
		if book.BestBidTick() != InvalidMinTick {
			t.Fatalf("ClearDepth(px=0) should clear entire bid side, got best=%d", book.BestBidTick())
		}
	}
}

func TestClearDepthWorseThan(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		book.UpdateAskDepth(101, 10, 0)
		book.UpdateAskDepth(105, 5, 0)
		book.ClearDepth(order.Sell, 102, 0)
		if book.AskQtyAtTick(105) != 0 {
			t.Fatalf("expected ask level 105 (worse than 102) cleared")
		}
		if book.AskQtyAtTick(101) == 0 {
			t.Fatalf("expected ask level 101 (better than 102) preserved")
		}
		if book.BestAskTick() != 101 {
			t.Fatalf("BestAskTick = %d, want 101", book.BestAskTick())
		}
	}
}

// TestScenarioS6SnapshotThenDelta implements spec §8 scenario S6.
func TestScenarioS6SnapshotThenDelta(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		book.ApplySnapshot([]Level{
			{Side: order.Buy, PriceTick: 100, Qty: 5},
			{Side: order.Buy, PriceTick: 99, Qty: 7},
			{Side: order.Sell, PriceTick: 101, Qty: 8},
		}, true, 0)
		if book.BestBidTick() != 100 {
			t.Fatalf("after snapshot BestBidTick = %d, want 100", book.BestBidTick())
		}
		book.UpdateBidDepth(100, 0, 1000)
		if book.BestBidTick() != 99 {
			t.Fatalf("after delta BestBidTick = %d, want 99", book.BestBidTick())
		}
	}
}

func TestApplySnapshotMergeTreatsZeroAsDeletion(t *testing.T) {
	for _, book := range bothBackends(1, 1) {
		book.ApplySnapshot([]Level{{Side: order.Buy, PriceTick: 100, Qty: 5}}, true, 0)
		book.ApplySnapshot([]Level{{Side: order.Buy, PriceTick: 100, Qty: 0}}, false, 0)
		if book.BidQtyAtTick(100) != 0 {
			t.Fatalf("expected merge snapshot with qty=0 to delete level 100")
		}
	}
}
