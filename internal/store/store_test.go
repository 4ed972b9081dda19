package store

import (
	"testing"

	"hftsim/internal/strategy"
)

func TestSaveAndLoadPosition(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pos := strategy.Position{
		Qty:           10.5,
		AvgEntryPrice: 0.55,
		RealizedPnL:   1.23,
	}

	if err := s.SavePosition("BTCUSDT", pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	loaded, err := s.LoadPosition("BTCUSDT")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadPosition returned nil")
	}

	if loaded.Qty != pos.Qty {
		t.Errorf("Qty = %v, want %v", loaded.Qty, pos.Qty)
	}
	if loaded.AvgEntryPrice != pos.AvgEntryPrice {
		t.Errorf("AvgEntryPrice = %v, want %v", loaded.AvgEntryPrice, pos.AvgEntryPrice)
	}
	if loaded.RealizedPnL != pos.RealizedPnL {
		t.Errorf("RealizedPnL = %v, want %v", loaded.RealizedPnL, pos.RealizedPnL)
	}
}

func TestLoadPositionMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadPosition("nonexistent")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing position, got %+v", loaded)
	}
}

func TestSavePositionOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	pos1 := strategy.Position{Qty: 10}
	pos2 := strategy.Position{Qty: 20}

	_ = s.SavePosition("BTCUSDT", pos1)
	_ = s.SavePosition("BTCUSDT", pos2)

	loaded, err := s.LoadPosition("BTCUSDT")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	if loaded.Qty != 20 {
		t.Errorf("Qty = %v, want 20 (latest save)", loaded.Qty)
	}
}

func TestSaveAndLoadRunResult(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	result := RunResult{
		StartedAtNs:  1000,
		FinishedAtNs: 5000,
		Assets: map[string]AssetResult{
			"BTCUSDT": {
				FinalPosition: strategy.Position{Qty: 1.5, RealizedPnL: 42},
				EquityCurve:   []EquityPoint{{TimestampNs: 1000, Equity: 0}, {TimestampNs: 5000, Equity: 42}},
				Trades:        []TradeRecord{{TimestampNs: 3000, Side: "Buy", PriceTick: 100, Qty: 1.5}},
			},
		},
	}

	if err := s.SaveRunResult(result); err != nil {
		t.Fatalf("SaveRunResult: %v", err)
	}

	loaded, err := s.LoadRunResult()
	if err != nil {
		t.Fatalf("LoadRunResult: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadRunResult returned nil")
	}
	asset, ok := loaded.Assets["BTCUSDT"]
	if !ok {
		t.Fatal("missing BTCUSDT in loaded run result")
	}
	if asset.FinalPosition.Qty != 1.5 {
		t.Errorf("FinalPosition.Qty = %v, want 1.5", asset.FinalPosition.Qty)
	}
	if len(asset.EquityCurve) != 2 {
		t.Errorf("len(EquityCurve) = %d, want 2", len(asset.EquityCurve))
	}
	if len(asset.Trades) != 1 {
		t.Errorf("len(Trades) = %d, want 1", len(asset.Trades))
	}
}

func TestLoadRunResultMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadRunResult()
	if err != nil {
		t.Fatalf("LoadRunResult: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing run result, got %+v", loaded)
	}
}
