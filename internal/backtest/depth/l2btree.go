package depth

// L2BTree is a MarketDepth backed by tick->qty maps plus a sorted slice of
// occupied ticks per side, giving a constant-time best-price lookup at the
// cost of keeping that slice sorted on every level insertion/removal
// (binary search plus a slice shift). Appropriate when best-price
// queries dominate (e.g. the Exchange processor's per-event matching path).
type L2BTree struct {
	*Book
}

// NewL2BTree constructs an empty L2BTree book.
func NewL2BTree(tickSize, lotSize float64) *L2BTree {
	return &L2BTree{Book: newBook(tickSize, lotSize, true)}
}

var _ MarketDepth = (*L2BTree)(nil)
