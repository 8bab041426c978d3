package engine

// Track is a named fixed-capacity sample buffer for debug capture.
// Writes beyond capacity are dropped without error.
type Track struct {
	samples []float64
}

// NewTrack returns an empty track with the given fixed capacity.
func NewTrack(capacity int) *Track {
	if capacity < 0 {
		capacity = 0
	}
	return &Track{samples: make([]float64, 0, capacity)}
}

// Append records samples until the track is full; the remainder is dropped.
func (t *Track) Append(samples []float64) {
	free := cap(t.samples) - len(t.samples)
	if free <= 0 {
		return
	}

	if len(samples) > free {
		samples = samples[:free]
	}

	t.samples = append(t.samples, samples...)
}

// AppendSample records a single sample, dropping it if the track is full.
func (t *Track) AppendSample(sample float64) {
	if len(t.samples) < cap(t.samples) {
		t.samples = append(t.samples, sample)
	}
}

// Len returns the number of samples written so far.
func (t *Track) Len() int {
	return len(t.samples)
}

// Samples returns a copy of the captured samples, truncated to what was
// actually written.
func (t *Track) Samples() []float64 {
	out := make([]float64, len(t.samples))
	copy(out, t.samples)
	return out
}

// TrackDump is the result of stopping a debug recording.
type TrackDump struct {
	SampleRate float64
	Tracks     map[string][]float64
}
