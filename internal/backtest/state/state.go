// Package state accumulates per-asset position, balance, fee, and trade
// counters as fills are applied (spec §3, §4.8), grounded on
// hftbacktest/src/backtest/state.rs's State<AT>::apply_fill/equity.
package state

import (
	"github.com/shopspring/decimal"

	"hftsim/internal/backtest/asset"
	"hftsim/internal/backtest/fee"
	"hftsim/internal/backtest/order"
)

// Values is a read-only snapshot of accumulated state, exposed across the
// Bot interface boundary as plain float64 (the accumulation itself is kept
// in decimal.Decimal internally to avoid drift across many fills).
type Values struct {
	Position    float64
	Balance     float64
	Fee         float64
	TradeNum    int64
	TradeQty    float64
	TradeAmount float64
}

// State is the per-asset accounting ledger. Position changes only via
// ApplyFill (spec §3 invariant); Fee accumulates each fill's fee amount,
// so it is non-decreasing while every amount is non-negative, and a
// negative (rebate) rate lowers it.
type State struct {
	position    decimal.Decimal
	balance     decimal.Decimal
	fee         decimal.Decimal
	tradeNum    int64
	tradeQty    decimal.Decimal
	tradeAmount decimal.Decimal

	assetType asset.Type
	feeModel  fee.Model
}

// New constructs a zeroed State for the given asset type and fee model.
func New(assetType asset.Type, feeModel fee.Model) *State {
	return &State{
		position:    decimal.Zero,
		balance:     decimal.Zero,
		fee:         decimal.Zero,
		tradeQty:    decimal.Zero,
		tradeAmount: decimal.Zero,
		assetType:   assetType,
		feeModel:    feeModel,
	}
}

// ApplyFill credits a fill of execQty at execPrice against o to the ledger:
// position += side*exec_qty, balance -= side*amount, fee +=
// feeModel.Amount(o, amount), and the trade counters advance.
func (s *State) ApplyFill(o *order.Order, execPrice, execQty float64) {
	price := decimal.NewFromFloat(execPrice)
	qty := decimal.NewFromFloat(execQty)
	amount := s.assetType.Amount(price, qty)
	sign := decimal.NewFromFloat(o.Side.Sign())

	s.position = s.position.Add(sign.Mul(qty))
	s.balance = s.balance.Sub(sign.Mul(amount))
	s.fee = s.fee.Add(s.feeModel.Amount(o, amount))
	s.tradeNum++
	s.tradeQty = s.tradeQty.Add(qty)
	s.tradeAmount = s.tradeAmount.Add(amount)
}

// Equity returns mark-to-market portfolio value given mid, delegating to
// the asset type's equity formula.
func (s *State) Equity(mid float64) float64 {
	eq := s.assetType.Equity(decimal.NewFromFloat(mid), s.balance, s.position, s.fee)
	f, _ := eq.Float64()
	return f
}

// Values returns a snapshot of the accumulated ledger.
func (s *State) Values() Values {
	position, _ := s.position.Float64()
	balance, _ := s.balance.Float64()
	feeVal, _ := s.fee.Float64()
	tradeQty, _ := s.tradeQty.Float64()
	tradeAmount, _ := s.tradeAmount.Float64()
	return Values{
		Position:    position,
		Balance:     balance,
		Fee:         feeVal,
		TradeNum:    s.tradeNum,
		TradeQty:    tradeQty,
		TradeAmount: tradeAmount,
	}
}
