// Package config defines all configuration for a backtest run. Config is
// loaded from a YAML file with run-wide defaults overridable via
// HFTSIM_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AssetType selects the notional/equity formula an asset uses (spec §4.8).
type AssetType string

const (
	AssetLinear  AssetType = "linear"
	AssetInverse AssetType = "inverse"
)

// FeeModelKind selects the fee schedule charged on each fill (spec §4.8).
type FeeModelKind string

const (
	FeeTradingValue FeeModelKind = "trading_value"
	FeeTradingQty   FeeModelKind = "trading_qty"
	FeeFlatPerTrade FeeModelKind = "flat_per_trade"
	FeeDirectional  FeeModelKind = "directional"
)

// LatencyModelKind selects how entry/response delay is computed (spec §4.6).
type LatencyModelKind string

const (
	LatencyConstant     LatencyModelKind = "constant"
	LatencyInterpolated LatencyModelKind = "interpolated"
)

// QueueModelKind selects how a resting order's queue position is estimated
// (spec §4.7).
type QueueModelKind string

const (
	QueueRiskAdverse   QueueModelKind = "risk_adverse"
	QueueProbabilistic QueueModelKind = "probabilistic"
	QueueL3FIFO        QueueModelKind = "l3_fifo"
)

// ProbFuncKind names one of the probability curves a Probabilistic queue
// model can use (spec §4.7).
type ProbFuncKind string

const (
	ProbFuncPower  ProbFuncKind = "power"
	ProbFuncPower2 ProbFuncKind = "power2"
	ProbFuncPower3 ProbFuncKind = "power3"
	ProbFuncLog    ProbFuncKind = "log"
	ProbFuncLog2   ProbFuncKind = "log2"
)

// ExchangeKind selects the Exchange processor variant (spec §4.4).
type ExchangeKind string

const (
	ExchangeNoPartialFill ExchangeKind = "no_partial_fill"
	ExchangePartialFill   ExchangeKind = "partial_fill"
)

// FeeConfig carries the rate pair a fee model needs. Which fields apply
// depends on Kind: MakerRate/TakerRate for TradingValue, TradingQty and
// FlatPerTrade; BuyRate/SellRate for Directional.
type FeeConfig struct {
	Kind      FeeModelKind `mapstructure:"kind"`
	MakerRate float64      `mapstructure:"maker_rate"`
	TakerRate float64      `mapstructure:"taker_rate"`
	BuyRate   float64      `mapstructure:"buy_rate"`
	SellRate  float64      `mapstructure:"sell_rate"`
}

// LatencyConfig selects and parameterizes a latency model.
type LatencyConfig struct {
	Kind LatencyModelKind `mapstructure:"kind"`

	// Constant
	EntryNs    int64 `mapstructure:"entry_ns"`
	ResponseNs int64 `mapstructure:"response_ns"`

	// Interpolated
	SampleFile         string `mapstructure:"sample_file"`
	MinPositiveLatency int64  `mapstructure:"min_positive_latency_ns"`
	BaseLatency        int64  `mapstructure:"base_latency_ns"`
}

// QueueConfig selects and parameterizes a queue-position model.
type QueueConfig struct {
	Kind QueueModelKind `mapstructure:"kind"`

	// Probabilistic
	ProbFunc  ProbFuncKind `mapstructure:"prob_func"`
	ProbFuncN float64      `mapstructure:"prob_func_n"`
}

// AssetConfig fully describes one simulated instrument: where its recorded
// events come from, its tick/lot size, asset type, fee schedule, latency
// model, queue model, and which Exchange variant matches it.
type AssetConfig struct {
	Name string `mapstructure:"name"`

	// ReaderFiles lists the event files replayed for this asset, in replay
	// order. Entries may be local paths or https:// URLs —
	// internal/backtest/fetch retrieves the latter before handing the
	// local copy to the Reader.
	ReaderFiles []string `mapstructure:"reader_files"`

	TickSize float64 `mapstructure:"tick_size"`
	LotSize  float64 `mapstructure:"lot_size"`

	AssetType    AssetType `mapstructure:"asset_type"`
	ContractSize float64   `mapstructure:"contract_size"`

	Fee     FeeConfig     `mapstructure:"fee"`
	Latency LatencyConfig `mapstructure:"latency"`
	Queue   QueueConfig   `mapstructure:"queue"`

	Exchange ExchangeKind `mapstructure:"exchange"`

	// TradeRingCapacity bounds how many recent trades Local retains; 0
	// falls back to Config.DefaultTradeRingCapacity.
	TradeRingCapacity int `mapstructure:"trade_ring_capacity"`
}

// RiskConfig bounds per-asset and run-wide exposure, and configures the
// daily-loss and rapid-price-movement kill switches (internal/risk).
type RiskConfig struct {
	MaxPositionPerAsset float64 `mapstructure:"max_position_per_asset"`
	MaxGlobalExposure   float64 `mapstructure:"max_global_exposure"`
	MaxDailyLoss        float64 `mapstructure:"max_daily_loss"`
	KillSwitchWindowSec int64   `mapstructure:"kill_switch_window_sec"`
	KillSwitchDropPct   float64 `mapstructure:"kill_switch_drop_pct"`
	CooldownAfterKillNs int64   `mapstructure:"cooldown_after_kill_ns"`
}

// StrategyConfig parameterizes the Avellaneda-Stoikov market maker
// (internal/strategy) run against each asset.
type StrategyConfig struct {
	Gamma            float64 `mapstructure:"gamma"`
	Sigma            float64 `mapstructure:"sigma"`
	K                float64 `mapstructure:"k"`
	T                float64 `mapstructure:"t"`
	DefaultSpreadBps float64 `mapstructure:"default_spread_bps"`

	OrderQty    float64 `mapstructure:"order_qty"`
	MinOrderQty float64 `mapstructure:"min_order_qty"`
	MaxPosition float64 `mapstructure:"max_position"`

	RefreshIntervalNs int64 `mapstructure:"refresh_interval_ns"`

	FlowWindowNs            int64   `mapstructure:"flow_window_ns"`
	FlowToxicityThreshold   float64 `mapstructure:"flow_toxicity_threshold"`
	FlowCooldownNs          int64   `mapstructure:"flow_cooldown_ns"`
	FlowMaxSpreadMultiplier float64 `mapstructure:"flow_max_spread_multiplier"`
}

// StoreConfig configures where run results and per-asset positions are
// persisted (internal/store).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`

	// EquitySampleIntervalNs controls how often the Runner samples each
	// asset's mark-to-market equity into the run result's equity curve.
	EquitySampleIntervalNs int64 `mapstructure:"equity_sample_interval_ns"`
}

// LoggingConfig selects the run's log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FetchConfig configures internal/backtest/fetch's optional retrieval of
// reader files named as https:// URLs instead of local paths.
type FetchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CacheDir string `mapstructure:"cache_dir"`
}

// APIConfig configures the optional HTTP/WebSocket status server that
// exposes a running backtest's live progress (internal/api).
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Config is the top-level configuration: one AssetConfig per simulated
// instrument plus run-wide defaults. Maps directly to the YAML file
// structure.
type Config struct {
	DefaultTradeRingCapacity int           `mapstructure:"default_trade_ring_capacity"`
	Assets                   []AssetConfig `mapstructure:"assets"`

	Risk     RiskConfig     `mapstructure:"risk"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	API      APIConfig      `mapstructure:"api"`
}

// Load reads config from a YAML file with env var overrides.
// Env vars use the HFTSIM_ prefix with dots replaced by underscores, e.g.
// HFTSIM_DEFAULT_TRADE_RING_CAPACITY or HFTSIM_RISK_MAX_DAILY_LOSS. Only
// keys that have a default below or appear in the file are looked up this
// way; fields of individual entries in the assets list are not
// addressable by env var.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HFTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("default_trade_ring_capacity", 1024)
	v.SetDefault("risk.max_position_per_asset", 10000.0)
	v.SetDefault("risk.max_global_exposure", 50000.0)
	v.SetDefault("risk.max_daily_loss", 2000.0)
	v.SetDefault("risk.kill_switch_window_sec", 60)
	v.SetDefault("risk.kill_switch_drop_pct", 0.05)
	v.SetDefault("risk.cooldown_after_kill_ns", int64(5*time.Minute))
	v.SetDefault("strategy.gamma", 0.5)
	v.SetDefault("strategy.sigma", 0.2)
	v.SetDefault("strategy.k", 10.0)
	v.SetDefault("strategy.t", 0.5)
	v.SetDefault("strategy.default_spread_bps", 10.0)
	v.SetDefault("strategy.refresh_interval_ns", int64(time.Second))
	v.SetDefault("strategy.flow_window_ns", int64(60*time.Second))
	v.SetDefault("strategy.flow_toxicity_threshold", 0.6)
	v.SetDefault("strategy.flow_cooldown_ns", int64(120*time.Second))
	v.SetDefault("strategy.flow_max_spread_multiplier", 3.0)
	v.SetDefault("store.data_dir", "./data/run")
	v.SetDefault("store.equity_sample_interval_ns", int64(time.Second))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("fetch.enabled", false)
	v.SetDefault("fetch.cache_dir", "./data/cache")
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", 8090)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for i := range cfg.Assets {
		if cfg.Assets[i].TradeRingCapacity == 0 {
			cfg.Assets[i].TradeRingCapacity = cfg.DefaultTradeRingCapacity
		}
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges, returning a
// descriptive error for the first problem found (surfaced by the caller as
// a backtesterrors.BuildError before a run starts).
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("assets: at least one asset must be configured")
	}
	if c.Strategy.K <= 0 {
		return fmt.Errorf("strategy.k must be > 0")
	}
	if c.Strategy.Gamma <= 0 {
		return fmt.Errorf("strategy.gamma must be > 0")
	}
	if c.Strategy.RefreshIntervalNs <= 0 {
		return fmt.Errorf("strategy.refresh_interval_ns must be > 0")
	}
	if c.Strategy.MaxPosition <= 0 {
		return fmt.Errorf("strategy.max_position must be > 0")
	}
	seen := make(map[string]bool, len(c.Assets))
	for i, a := range c.Assets {
		if a.Name == "" {
			return fmt.Errorf("assets[%d].name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("assets: duplicate asset name %q", a.Name)
		}
		seen[a.Name] = true

		if len(a.ReaderFiles) == 0 {
			return fmt.Errorf("assets[%s].reader_files must not be empty", a.Name)
		}
		if a.TickSize <= 0 {
			return fmt.Errorf("assets[%s].tick_size must be > 0", a.Name)
		}
		if a.LotSize <= 0 {
			return fmt.Errorf("assets[%s].lot_size must be > 0", a.Name)
		}
		if a.ContractSize <= 0 {
			return fmt.Errorf("assets[%s].contract_size must be > 0", a.Name)
		}

		switch a.AssetType {
		case AssetLinear, AssetInverse:
		default:
			return fmt.Errorf("assets[%s].asset_type must be one of: linear, inverse", a.Name)
		}

		if err := a.Fee.validate(a.Name); err != nil {
			return err
		}
		if err := a.Latency.validate(a.Name); err != nil {
			return err
		}
		if err := a.Queue.validate(a.Name); err != nil {
			return err
		}

		switch a.Exchange {
		case ExchangeNoPartialFill, ExchangePartialFill:
		default:
			return fmt.Errorf("assets[%s].exchange must be one of: no_partial_fill, partial_fill", a.Name)
		}
	}
	return nil
}

func (f FeeConfig) validate(asset string) error {
	switch f.Kind {
	case FeeTradingValue, FeeTradingQty, FeeFlatPerTrade, FeeDirectional:
		return nil
	default:
		return fmt.Errorf("assets[%s].fee.kind must be one of: trading_value, trading_qty, flat_per_trade, directional", asset)
	}
}

func (l LatencyConfig) validate(asset string) error {
	switch l.Kind {
	case LatencyConstant:
		return nil
	case LatencyInterpolated:
		if l.SampleFile == "" {
			return fmt.Errorf("assets[%s].latency.sample_file is required when latency.kind is interpolated", asset)
		}
		return nil
	default:
		return fmt.Errorf("assets[%s].latency.kind must be one of: constant, interpolated", asset)
	}
}

func (q QueueConfig) validate(asset string) error {
	switch q.Kind {
	case QueueRiskAdverse, QueueL3FIFO:
		return nil
	case QueueProbabilistic:
		switch q.ProbFunc {
		case ProbFuncPower, ProbFuncPower2, ProbFuncPower3, ProbFuncLog, ProbFuncLog2:
			return nil
		default:
			return fmt.Errorf("assets[%s].queue.prob_func must be one of: power, power2, power3, log, log2", asset)
		}
	default:
		return fmt.Errorf("assets[%s].queue.kind must be one of: risk_adverse, probabilistic, l3_fifo", asset)
	}
}
