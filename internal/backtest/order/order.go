// Package order defines the Order lifecycle record and the time-ordered
// bus that transports orders and responses between the Local and Exchange
// views of an asset.
package order

import "fmt"

// Side is the direction of an order or trade.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Buy"
	}
	return "Sell"
}

// Sign returns +1 for Buy, -1 for Sell, matching the position/balance
// update formulas in state.State.ApplyFill.
func (s Side) Sign() float64 {
	if s == Buy {
		return 1
	}
	return -1
}

// Type is the order type.
type Type int8

const (
	Limit Type = iota
	Market
)

// TIF is the time-in-force.
type TIF int8

const (
	// GTC rests indefinitely until filled or canceled.
	GTC TIF = iota
	// IOC fills whatever is immediately marketable and expires the rest.
	IOC
	// FOK requires the entire quantity to be fillable immediately or the
	// whole order expires.
	FOK
	// GTX (post-only) is rejected outright if it would cross the book.
	GTX
)

func (t TIF) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTX:
		return "GTX"
	default:
		return "Unknown"
	}
}

// Status is the lifecycle state of an order as currently known to whichever
// side (Local or Exchange) holds it.
type Status int8

const (
	None Status = iota
	New
	PartiallyFilled
	Filled
	Canceled
	Expired
)

func (s Status) String() string {
	switch s {
	case None:
		return "None"
	case New:
		return "New"
	case PartiallyFilled:
		return "PartiallyFilled"
	case Filled:
		return "Filled"
	case Canceled:
		return "Canceled"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is a status from which the order can never
// transition again (Filled, Canceled, Expired).
func (s Status) IsTerminal() bool {
	return s == Filled || s == Canceled || s == Expired
}

// Req is the pending request a Local submission carries across the bus.
type Req int8

const (
	// ReqNone means no request is in flight for this order (it is simply
	// resting, or the request has already been acknowledged).
	ReqNone Req = iota
	ReqNew
	ReqCancel
)

// Order is the mutable per-order record, owned by whichever side (Local or
// Exchange) currently holds it; the bus transfers ownership by timestamped
// copy (spec §3).
type Order struct {
	OrderID   uint64
	Side      Side
	PriceTick int64
	Qty       float64
	LeavesQty float64
	ExecQty   float64
	ExecPrice float64
	OrdType   Type
	TIF       TIF
	Status    Status
	Maker     bool
	LocalTs   int64
	ExchTs    int64
	Req       Req

	// Q is the opaque queue-position state attached by whichever
	// queue.Model the Exchange processor uses for this asset. It is nil
	// for orders that never rested (aggressive fills, market orders).
	Q interface{}
}

// NewOrder constructs a freshly submitted order in the state Local.Submit
// leaves it in: req=New, status=None, leaves_qty=qty.
func NewOrder(orderID uint64, side Side, priceTick int64, qty float64, ordType Type, tif TIF, now int64) Order {
	return Order{
		OrderID:   orderID,
		Side:      side,
		PriceTick: priceTick,
		Qty:       qty,
		LeavesQty: qty,
		OrdType:   ordType,
		TIF:       tif,
		Status:    None,
		LocalTs:   now,
		Req:       ReqNew,
	}
}

func (o Order) String() string {
	return fmt.Sprintf("Order{id=%d side=%s tick=%d qty=%g leaves=%g status=%s}",
		o.OrderID, o.Side, o.PriceTick, o.Qty, o.LeavesQty, o.Status)
}
