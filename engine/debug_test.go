package engine

import "testing"

func TestTrackAppendWithinCapacity(t *testing.T) {
	tr := NewTrack(8)
	tr.Append([]float64{1, 2, 3})
	tr.AppendSample(4)

	if tr.Len() != 4 {
		t.Fatalf("Len: got %d want 4", tr.Len())
	}

	got := tr.Samples()
	want := []float64{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestTrackDropsBeyondCapacity(t *testing.T) {
	tr := NewTrack(4)
	tr.Append([]float64{1, 2, 3})
	tr.Append([]float64{4, 5, 6})
	tr.AppendSample(7)

	if tr.Len() != 4 {
		t.Fatalf("Len: got %d want 4", tr.Len())
	}

	got := tr.Samples()
	want := []float64{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestTrackSamplesReturnsCopy(t *testing.T) {
	tr := NewTrack(4)
	tr.Append([]float64{1, 2})

	s := tr.Samples()
	s[0] = 99

	if tr.Samples()[0] != 1 {
		t.Fatal("Samples should return an independent copy")
	}
}

func TestTrackZeroCapacity(t *testing.T) {
	tr := NewTrack(0)
	tr.Append([]float64{1})
	tr.AppendSample(2)

	if tr.Len() != 0 {
		t.Fatalf("Len: got %d want 0", tr.Len())
	}

	tr = NewTrack(-3)
	tr.AppendSample(1)
	if tr.Len() != 0 {
		t.Fatalf("negative capacity Len: got %d want 0", tr.Len())
	}
}

// --- timing ring ---

func TestTimingRingPercentiles(t *testing.T) {
	r := newTimingRing(8)

	median, p95 := r.percentiles()
	if median != 0 || p95 != 0 {
		t.Fatalf("empty ring: got median %v p95 %v want zeros", median, p95)
	}

	for _, v := range []float64{5, 1, 3} {
		r.add(v)
	}

	median, _ = r.percentiles()
	if median != 3 {
		t.Fatalf("median of {1,3,5}: got %v want 3", median)
	}
}

func TestTimingRingWrapsOldestOut(t *testing.T) {
	r := newTimingRing(4)

	// Fill with large values, then overwrite the whole window.
	for i := 0; i < 4; i++ {
		r.add(100)
	}
	for i := 0; i < 4; i++ {
		r.add(1)
	}

	median, p95 := r.percentiles()
	if median != 1 || p95 != 1 {
		t.Fatalf("got median %v p95 %v want 1, 1", median, p95)
	}
}
