package risk

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"hftsim/internal/config"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionPerAsset: 100,
		MaxGlobalExposure:   500,
		KillSwitchDropPct:   0.10, // 10%
		KillSwitchWindowSec: 60,
		MaxDailyLoss:        50,
		CooldownAfterKillNs: int64(5 * time.Minute),
	}
}

func newTestManager() *Manager {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewManager(testRiskConfig(), logger)
}

func TestProcessReportUnderLimits(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.processReport(PositionReport{
		Asset:         "a1",
		ExposureUSD:   50,
		RealizedPnL:   0,
		UnrealizedPnL: 0,
		MidPrice:      0.50,
		Timestamp:     1,
	})

	if rm.killSwitchActive {
		t.Error("kill switch should not fire for report under limits")
	}

	select {
	case sig := <-rm.killCh:
		t.Errorf("unexpected kill signal: %+v", sig)
	default:
	}
}

func TestProcessReportPerAssetBreach(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.processReport(PositionReport{
		Asset:       "a1",
		ExposureUSD: 150, // exceeds 100 limit
		MidPrice:    0.50,
		Timestamp:   1,
	})

	if !rm.killSwitchActive {
		t.Error("kill switch should fire for per-asset breach")
	}

	select {
	case sig := <-rm.killCh:
		if sig.Asset != "a1" {
			t.Errorf("kill signal asset = %q, want a1", sig.Asset)
		}
	default:
		t.Error("expected kill signal on channel")
	}
}

func TestProcessReportGlobalBreach(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	for i, asset := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		rm.processReport(PositionReport{Asset: asset, ExposureUSD: 90, MidPrice: 0.50, Timestamp: int64(i + 1)})
	}

	// Total = 540 > 500 global limit
	if !rm.killSwitchActive {
		t.Error("kill switch should fire for global exposure breach")
	}

	drained := 0
	for {
		select {
		case <-rm.killCh:
			drained++
		default:
			goto done
		}
	}
done:
	if drained == 0 {
		t.Error("expected at least one kill signal")
	}
}

func TestProcessReportDailyLossBreach(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.processReport(PositionReport{
		Asset:         "a1",
		ExposureUSD:   10,
		RealizedPnL:   -30,
		UnrealizedPnL: -25,
		MidPrice:      0.50,
		Timestamp:     1,
	})

	// total PnL = -30 + -25 = -55 < -50 threshold
	if !rm.killSwitchActive {
		t.Error("kill switch should fire for daily loss breach")
	}
}

func TestCheckPriceMovementNormal(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	now := int64(0)

	rm.processReport(PositionReport{Asset: "a1", MidPrice: 0.50, Timestamp: now})

	// Small price move within window
	rm.processReport(PositionReport{
		Asset:     "a1",
		MidPrice:  0.52, // 4% move, below 10% threshold
		Timestamp: now + int64(10*time.Second),
	})

	select {
	case <-rm.killCh:
		t.Error("should not fire kill for 4% move")
	default:
	}
}

func TestCheckPriceMovementSpike(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	now := int64(0)

	rm.processReport(PositionReport{Asset: "a1", MidPrice: 0.50, Timestamp: now})

	// Large price move within window
	rm.processReport(PositionReport{
		Asset:     "a1",
		MidPrice:  0.35, // 30% drop, exceeds 10% threshold
		Timestamp: now + int64(10*time.Second),
	})

	if !rm.killSwitchActive {
		t.Error("kill switch should fire for 30% price spike")
	}
}

func TestRemainingBudget(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	// No position -> full budget
	remaining := rm.RemainingBudget("a1")
	if remaining != 100 { // min(per-asset 100, global 500)
		t.Errorf("remaining = %v, want 100", remaining)
	}

	rm.processReport(PositionReport{Asset: "a1", ExposureUSD: 60, MidPrice: 0.50, Timestamp: 1})

	remaining = rm.RemainingBudget("a1")
	if remaining != 40 { // 100 - 60 = 40 per-asset; 500 - 60 = 440 global; min = 40
		t.Errorf("remaining = %v, want 40", remaining)
	}
}

func TestRemainingBudgetGlobalConstrained(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	// Fill up global exposure with other assets
	for i := 0; i < 5; i++ {
		rm.processReport(PositionReport{
			Asset:       "other-" + string(rune('A'+i)),
			ExposureUSD: 95,
			MidPrice:    0.50,
			Timestamp:   int64(i + 1),
		})
	}
	for {
		select {
		case <-rm.killCh:
		default:
			goto done2
		}
	}
done2:

	// Total exposure = 475. Global remaining = 500 - 475 = 25.
	// Per-asset a1 = 100 (no position). Min(100, 25) = 25.
	remaining := rm.RemainingBudget("a1")
	if remaining != 25 {
		t.Errorf("remaining = %v, want 25 (global constrained)", remaining)
	}
}

func TestIsKillSwitchCooldown(t *testing.T) {
	t.Parallel()
	rm := newTestManager()
	rm.cfg.CooldownAfterKillNs = int64(100 * time.Millisecond)

	rm.processReport(PositionReport{
		Asset:       "a1",
		ExposureUSD: 200, // exceeds per-asset limit
		MidPrice:    0.50,
		Timestamp:   0,
	})

	if !rm.IsKillSwitchActive(0) {
		t.Error("kill switch should be active immediately after breach")
	}

	if rm.IsKillSwitchActive(int64(150 * time.Millisecond)) {
		t.Error("kill switch should expire after cooldown")
	}
}

func TestRemoveMarketRecomputesTotals(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.processReport(PositionReport{Asset: "a1", ExposureUSD: 60, RealizedPnL: 5, MidPrice: 0.50, Timestamp: 1})
	rm.processReport(PositionReport{Asset: "a2", ExposureUSD: 70, RealizedPnL: 3, MidPrice: 0.50, Timestamp: 2})

	if got := rm.totalExposure; got != 130 {
		t.Fatalf("totalExposure before remove = %v, want 130", got)
	}
	if got := rm.totalRealizedPnL; got != 8 {
		t.Fatalf("totalRealizedPnL before remove = %v, want 8", got)
	}

	rm.RemoveMarket("a2")

	if got := rm.totalExposure; got != 60 {
		t.Fatalf("totalExposure after remove = %v, want 60", got)
	}
	if got := rm.totalRealizedPnL; got != 5 {
		t.Fatalf("totalRealizedPnL after remove = %v, want 5", got)
	}
}
