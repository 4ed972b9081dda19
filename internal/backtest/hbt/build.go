package hbt

import (
	"github.com/shopspring/decimal"

	"hftsim/internal/backtest/asset"
	backtesterrors "hftsim/internal/backtest/errors"
	"hftsim/internal/backtest/event"
	"hftsim/internal/backtest/fee"
	"hftsim/internal/backtest/fetch"
	"hftsim/internal/backtest/latency"
	"hftsim/internal/backtest/order"
	"hftsim/internal/backtest/proc"
	"hftsim/internal/backtest/queue"
	"hftsim/internal/backtest/state"
	"hftsim/internal/config"
	depthpkg "hftsim/internal/backtest/depth"
)

// Build wires a complete MultiAssetHBT from cfg: one Local, one
// Exchange-variant, two independent MarketDepth instances (one per side of
// the feed — Local reconstructs its own view from LOCAL-flagged events, the
// Exchange its own from EXCH-flagged events, per spec §4.3/§4.4), and an
// order.Bus pair, per asset. cfg must already satisfy Validate(); a
// fetcher, if non-nil, resolves https:// reader file entries to local
// paths before the Reader opens them (SPEC_FULL.md §6).
func Build(cfg *config.Config, fetcher *fetch.Fetcher) (*MultiAssetHBT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, backtesterrors.NewBuildError("config", err.Error())
	}

	h := New()
	for _, a := range cfg.Assets {
		files := a.ReaderFiles
		if fetcher != nil {
			resolved, err := fetcher.ResolveFiles(files)
			if err != nil {
				return nil, backtesterrors.NewBuildError(a.Name, err.Error())
			}
			files = resolved
		}

		assetType, err := buildAssetType(a)
		if err != nil {
			return nil, backtesterrors.NewBuildError(a.Name, err.Error())
		}
		feeModel, err := buildFeeModel(a.Fee)
		if err != nil {
			return nil, backtesterrors.NewBuildError(a.Name, err.Error())
		}
		latModel, err := buildLatencyModel(a.Latency)
		if err != nil {
			return nil, backtesterrors.NewBuildError(a.Name, err.Error())
		}
		queueModel, err := buildQueueModel(a.Queue)
		if err != nil {
			return nil, backtesterrors.NewBuildError(a.Name, err.Error())
		}

		localDepth := depthpkg.NewL2BTree(a.TickSize, a.LotSize)
		exchDepth := depthpkg.NewL2BTree(a.TickSize, a.LotSize)

		toExchange := order.NewBus()
		fromExchange := order.NewBus()

		st := state.New(assetType, feeModel)
		local := proc.NewLocal(localDepth, st, latModel, toExchange, fromExchange, a.TradeRingCapacity)

		var exch proc.ExchangeProcessor
		switch a.Exchange {
		case config.ExchangePartialFill:
			exch = proc.NewPartialFillExchange(exchDepth, queueModel, latModel, fromExchange)
		default:
			exch = proc.NewNoPartialFillExchange(exchDepth, queueModel, latModel, fromExchange)
		}

		reader := event.NewReader(files)
		h.AddAsset(a.Name, reader, local, exch, toExchange, fromExchange)
	}
	return h, nil
}

func buildAssetType(a config.AssetConfig) (asset.Type, error) {
	size := decimal.NewFromFloat(a.ContractSize)
	switch a.AssetType {
	case config.AssetInverse:
		return asset.Inverse{ContractSize: size}, nil
	default:
		return asset.Linear{ContractSize: size}, nil
	}
}

func buildFeeModel(f config.FeeConfig) (fee.Model, error) {
	maker := decimal.NewFromFloat(f.MakerRate)
	taker := decimal.NewFromFloat(f.TakerRate)
	switch f.Kind {
	case config.FeeTradingQty:
		return fee.TradingQty{MakerRate: maker, TakerRate: taker}, nil
	case config.FeeFlatPerTrade:
		return fee.FlatPerTrade{MakerRate: maker, TakerRate: taker}, nil
	case config.FeeDirectional:
		return fee.Directional{
			BuyRate:  decimal.NewFromFloat(f.BuyRate),
			SellRate: decimal.NewFromFloat(f.SellRate),
		}, nil
	default:
		return fee.TradingValue{MakerRate: maker, TakerRate: taker}, nil
	}
}

func buildLatencyModel(l config.LatencyConfig) (latency.Model, error) {
	if l.Kind != config.LatencyInterpolated {
		return latency.Constant{EntryNs: l.EntryNs, ResponseNs: l.ResponseNs}, nil
	}
	samples, err := latency.LoadSamplesCSV(l.SampleFile)
	if err != nil {
		return nil, err
	}
	return latency.NewInterpolated(samples, l.MinPositiveLatency, l.BaseLatency), nil
}

func buildQueueModel(q config.QueueConfig) (queue.Model, error) {
	switch q.Kind {
	case config.QueueL3FIFO:
		return queue.NewL3FIFO(), nil
	case config.QueueProbabilistic:
		return queue.Probabilistic{F: resolveProbFunc(q.ProbFunc, q.ProbFuncN)}, nil
	default:
		return queue.RiskAdverse{}, nil
	}
}

func resolveProbFunc(kind config.ProbFuncKind, n float64) queue.ProbFunc {
	switch kind {
	case config.ProbFuncPower2:
		return queue.Power2(n)
	case config.ProbFuncPower3:
		return queue.Power3(n)
	case config.ProbFuncLog:
		return queue.Log()
	case config.ProbFuncLog2:
		return queue.Log2()
	default:
		return queue.Power(n)
	}
}
