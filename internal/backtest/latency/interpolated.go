package latency

import "sort"

// Sample is one recorded (request send, exchange arrival, response local
// arrival) row used to build an Interpolated latency model.
type Sample struct {
	ReqTs  int64
	ExchTs int64
	RespTs int64
}

// Interpolated linearly interpolates entry/response latency from a sorted
// sequence of recorded samples, clamping outside the sample range and
// replacing non-positive latencies with a configured floor (spec §4.6).
type Interpolated struct {
	samples            []Sample // sorted by ReqTs ascending
	byExchTs           []Sample // same samples, sorted by ExchTs ascending
	minPositiveLatency int64
	baseLatency         int64
}

// NewInterpolated builds an Interpolated model from samples. samples need
// not be pre-sorted; a private copy is sorted internally. minPositiveLatency
// and baseLatency configure the replacement for non-positive interpolated
// latencies (spec §4.6: "negative or zero latencies... replaced by
// min_positive_latency + base_latency").
func NewInterpolated(samples []Sample, minPositiveLatency, baseLatency int64) *Interpolated {
	byReq := append([]Sample(nil), samples...)
	sort.Slice(byReq, func(i, j int) bool { return byReq[i].ReqTs < byReq[j].ReqTs })
	byExch := append([]Sample(nil), samples...)
	sort.Slice(byExch, func(i, j int) bool { return byExch[i].ExchTs < byExch[j].ExchTs })
	return &Interpolated{
		samples:            byReq,
		byExchTs:           byExch,
		minPositiveLatency: minPositiveLatency,
		baseLatency:        baseLatency,
	}
}

var _ Model = (*Interpolated)(nil)

func (m *Interpolated) Entry(localTs int64) int64 {
	if len(m.samples) == 0 {
		return m.floor(0)
	}
	lat := interpolate(m.samples, localTs,
		func(s Sample) int64 { return s.ReqTs },
		func(s Sample) int64 { return s.ExchTs - s.ReqTs },
	)
	return m.floor(lat)
}

func (m *Interpolated) Response(exchTs int64) int64 {
	if len(m.byExchTs) == 0 {
		return m.floor(0)
	}
	lat := interpolate(m.byExchTs, exchTs,
		func(s Sample) int64 { return s.ExchTs },
		func(s Sample) int64 { return s.RespTs - s.ExchTs },
	)
	return m.floor(lat)
}

func (m *Interpolated) floor(lat int64) int64 {
	if lat <= 0 {
		return m.minPositiveLatency + m.baseLatency
	}
	return lat
}

// interpolate finds the bracketing pair of rows (ordered by key(row)) around
// x and linearly interpolates value(row) between them, clamping to the
// nearest endpoint outside the sample range.
func interpolate(rows []Sample, x int64, key func(Sample) int64, value func(Sample) int64) int64 {
	if len(rows) == 1 {
		return value(rows[0])
	}
	if x <= key(rows[0]) {
		return value(rows[0])
	}
	last := rows[len(rows)-1]
	if x >= key(last) {
		return value(last)
	}
	i := sort.Search(len(rows), func(i int) bool { return key(rows[i]) >= x })
	// rows[i-1].key < x <= rows[i].key
	lo, hi := rows[i-1], rows[i]
	if key(hi) == key(lo) {
		return value(lo)
	}
	frac := float64(x-key(lo)) / float64(key(hi)-key(lo))
	return value(lo) + int64(frac*float64(value(hi)-value(lo)))
}
