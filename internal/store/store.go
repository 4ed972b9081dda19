// Package store provides crash-safe persistence for backtest/live run
// state using JSON files.
//
// Each asset's position is stored as a separate file, pos_<asset>.json, and
// the whole run's results (equity curve, trade log, final positions) are
// stored as a single run_result.json. Writes use atomic file replacement
// (write to .tmp, then rename) to prevent corruption from partial writes or
// crashes mid-save. Generalized from single-position-per-market
// persistence to whole-run result persistence (internal/engine.Runner
// restores each asset's position with LoadPosition when it is built,
// calls SavePosition for each asset when the run stops, and calls
// SaveRunResult once at the end of a run).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hftsim/internal/strategy"
)

// EquityPoint is one sample of an asset's mark-to-market equity over the
// course of a run.
type EquityPoint struct {
	TimestampNs int64   `json:"timestamp_ns"`
	Equity      float64 `json:"equity"`
}

// TradeRecord is one execution recorded for a run's trade log.
type TradeRecord struct {
	TimestampNs int64   `json:"timestamp_ns"`
	Side        string  `json:"side"`
	PriceTick   int64   `json:"price_tick"`
	Qty         float64 `json:"qty"`
}

// AssetResult is one asset's outcome for a completed run.
type AssetResult struct {
	FinalPosition strategy.Position `json:"final_position"`
	EquityCurve   []EquityPoint     `json:"equity_curve"`
	Trades        []TradeRecord     `json:"trades"`
}

// RunResult is the full persisted outcome of one run, across all assets.
type RunResult struct {
	StartedAtNs  int64                  `json:"started_at_ns"`
	FinishedAtNs int64                  `json:"finished_at_ns"`
	Assets       map[string]AssetResult `json:"assets"`
}

// Store persists run state to JSON files in a designated directory. All
// operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SavePosition atomically persists the current position for an asset. It
// writes to a .tmp file first, then renames over the target to ensure the
// file is never left in a partial state (crash-safe).
func (s *Store) SavePosition(asset string, pos strategy.Position) error {
	return s.writeJSON("pos_"+asset+".json", pos)
}

// LoadPosition restores a persisted position for an asset. Returns nil,
// nil if no saved position exists (fresh asset).
func (s *Store) LoadPosition(asset string) (*strategy.Position, error) {
	var pos strategy.Position
	ok, err := s.readJSON("pos_"+asset+".json", &pos)
	if err != nil || !ok {
		return nil, err
	}
	return &pos, nil
}

// SaveRunResult atomically persists the full result of a completed run.
func (s *Store) SaveRunResult(result RunResult) error {
	return s.writeJSON("run_result.json", result)
}

// LoadRunResult loads a previously persisted run result. Returns nil, nil
// if none exists.
func (s *Store) LoadRunResult() (*RunResult, error) {
	var result RunResult
	ok, err := s.readJSON("run_result.json", &result)
	if err != nil || !ok {
		return nil, err
	}
	return &result, nil
}

func (s *Store) writeJSON(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

func (s *Store) readJSON(name string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return true, nil
}
