// Package event defines the columnar market-event record, its bitset
// event-kind flags, the on-disk format the record is serialized in
// bit-exactly, and a lazy multi-file Reader over that format.
package event

// Flags is the bitset carried in Event.Ev describing what kind of event a
// record represents. Bits mirror the flag families used throughout the
// depth/proc packages: a direction bit (Local/Exch), a side bit (Buy/Sell)
// when applicable, and a kind bit (Depth/Trade/Clear/Snapshot/Bbo).
type Flags uint64

const (
	// Local marks an event as belonging to the strategy-facing feed (the
	// one Local.ProcessData consumes).
	Local Flags = 1 << iota
	// Exch marks an event as belonging to the exchange-time feed (the one
	// the Exchange processor consumes to drive matching).
	Exch
	// Buy marks a buy-side event (bid depth update, or a buyer-initiated
	// trade print).
	Buy
	// Sell marks a sell-side event.
	Sell
	// Depth marks an incremental depth update at Px/Qty.
	Depth
	// Trade marks an executed trade print at Px/Qty.
	Trade
	// DepthClear marks a request to clear one side of the book (see
	// ClearDepth semantics in the depth package).
	DepthClear
	// DepthSnapshot marks a record that is part of a full snapshot replay.
	DepthSnapshot
	// DepthBBO marks a best-bid/best-ask update delivered out-of-band from
	// the regular depth feed (used to derive fused eviction events).
	DepthBBO

	// userBitsStart is the first bit reserved for caller-defined event
	// kinds; the core never interprets bits at or above this one.
	userBitsStart Flags = 1 << 16
)

// UserFlag returns the flag bit for caller-defined event kind n (0-based),
// offset into the reserved user-bit range.
func UserFlag(n uint) Flags {
	return userBitsStart << n
}

// Has reports whether all bits in mask are set in f.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Any reports whether any bit in mask is set in f.
func (f Flags) Any(mask Flags) bool { return f&mask != 0 }

// Event is the fixed-layout record read from and written to the on-disk
// columnar format (see the codec in this package). Field order here is the
// record order serialized in §6 of the format: Ev, ExchTs, LocalTs, Px,
// Qty, OrderID, Ival, Fval.
type Event struct {
	Ev      Flags
	ExchTs  int64
	LocalTs int64
	Px      float64
	Qty     float64
	OrderID uint64
	Ival    int64
	Fval    float64
}

// PriceTick converts Px to an integer tick given tickSize, per the Open
// Question (a) resolution in DESIGN.md: ticks are the internal price
// representation, floats are a codec/display boundary concern only.
func (e Event) PriceTick(tickSize float64) int64 {
	return int64(e.Px/tickSize + 0.5*sign(e.Px))
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
