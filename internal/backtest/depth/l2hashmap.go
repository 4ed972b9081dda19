package depth

// L2HashMap is a MarketDepth backed by plain tick->qty maps. Snapshot
// application and per-level updates are O(1) amortized; a best-price
// rescan after the cached best level empties is O(n) in the number of
// occupied ticks on that side. Appropriate when snapshots are frequent
// relative to best-price queries.
type L2HashMap struct {
	*Book
}

// NewL2HashMap constructs an empty L2HashMap book.
func NewL2HashMap(tickSize, lotSize float64) *L2HashMap {
	return &L2HashMap{Book: newBook(tickSize, lotSize, false)}
}

var _ MarketDepth = (*L2HashMap)(nil)
