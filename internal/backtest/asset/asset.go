// Package asset computes notional amount and mark-to-market equity per
// asset type (spec §4.8), grounded on
// hftbacktest/src/backtest/assettype.rs's Linear/Inverse formulas.
package asset

import "github.com/shopspring/decimal"

// Type is the capability set every asset-type variant implements.
type Type interface {
	// Amount returns the notional value of executing qty at execPrice.
	Amount(execPrice, qty decimal.Decimal) decimal.Decimal
	// Equity returns mark-to-market portfolio value given the mid price,
	// current balance, position, and accumulated fee.
	Equity(mid, balance, position, fee decimal.Decimal) decimal.Decimal
}

// Linear is the standard linear-contract asset type: amount = size * price
// * qty; equity = balance + size * position * price - fee.
type Linear struct {
	ContractSize decimal.Decimal
}

var _ Type = Linear{}

func (a Linear) Amount(execPrice, qty decimal.Decimal) decimal.Decimal {
	return a.ContractSize.Mul(execPrice).Mul(qty)
}

func (a Linear) Equity(mid, balance, position, fee decimal.Decimal) decimal.Decimal {
	return balance.Add(a.ContractSize.Mul(position).Mul(mid)).Sub(fee)
}

// Inverse is the inverse-contract asset type (typical of crypto perpetuals
// quoted in the base currency): amount = size * qty / price; equity =
// -balance - size * position / price - fee.
type Inverse struct {
	ContractSize decimal.Decimal
}

var _ Type = Inverse{}

func (a Inverse) Amount(execPrice, qty decimal.Decimal) decimal.Decimal {
	if execPrice.IsZero() {
		return decimal.Zero
	}
	return a.ContractSize.Mul(qty).Div(execPrice)
}

func (a Inverse) Equity(mid, balance, position, fee decimal.Decimal) decimal.Decimal {
	if mid.IsZero() {
		return balance.Neg().Sub(fee)
	}
	return balance.Neg().Sub(a.ContractSize.Mul(position).Div(mid)).Sub(fee)
}
