package engine

import "sort"

// Stats is an aggregate snapshot of the engine and the active strategy.
type Stats struct {
	Mode                   string
	FrameCount             uint64
	OverrunCount           uint64
	MedianProcessingTimeMs float64
	P95ProcessingTimeMs    float64
	Strategy               map[string]float64
}

// timingRing keeps the most recent per-frame processing durations in
// milliseconds. Recording is allocation free; percentiles copy and sort on
// demand, which only happens on control-plane stats requests.
type timingRing struct {
	samples []float64
	scratch []float64
	pos     int
	filled  int
}

func newTimingRing(size int) *timingRing {
	if size <= 0 {
		size = 256
	}
	return &timingRing{
		samples: make([]float64, size),
		scratch: make([]float64, size),
	}
}

func (r *timingRing) add(ms float64) {
	r.samples[r.pos] = ms
	r.pos++
	if r.pos >= len(r.samples) {
		r.pos = 0
	}
	if r.filled < len(r.samples) {
		r.filled++
	}
}

// percentiles returns the median and 95th percentile of the recorded
// durations, or zeros when nothing has been recorded.
func (r *timingRing) percentiles() (median, p95 float64) {
	if r.filled == 0 {
		return 0, 0
	}

	s := r.scratch[:r.filled]
	copy(s, r.samples[:r.filled])
	sort.Float64s(s)

	median = s[r.filled/2]

	idx := (r.filled * 95) / 100
	if idx >= r.filled {
		idx = r.filled - 1
	}
	p95 = s[idx]

	return median, p95
}
