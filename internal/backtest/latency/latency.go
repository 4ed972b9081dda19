// Package latency models the delay between a Local-side action and its
// Exchange-side arrival, and between an Exchange-side response and its
// Local-side arrival (spec §4.6).
package latency

// Model is the capability set every latency variant implements.
type Model interface {
	// Entry returns the nanosecond delay added to localTs to obtain the
	// exchange arrival timestamp of a request sent at localTs.
	Entry(localTs int64) int64
	// Response returns the nanosecond delay added to exchTs to obtain the
	// local arrival timestamp of a response issued at exchTs.
	Response(exchTs int64) int64
}

// Constant returns fixed entry/response latencies regardless of timestamp.
type Constant struct {
	EntryNs    int64
	ResponseNs int64
}

var _ Model = Constant{}

func (c Constant) Entry(int64) int64    { return c.EntryNs }
func (c Constant) Response(int64) int64 { return c.ResponseNs }
