package testutil

import (
	"math"
	"testing"
)

func TestDelayedScaled(t *testing.T) {
	src := []float64{1, 2, 3, 4}
	got := DelayedScaled(src, 2, 0.5)

	want := []float64{0, 0, 0.5, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestConvolveMatchesDirectForm(t *testing.T) {
	signal := []float64{1, 0, 0, 2, 0, 0}
	kernel := []float64{1, 0.5}

	got := Convolve(signal, kernel)
	want := []float64{1, 0.5, 0, 2, 1, 0}

	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestMix(t *testing.T) {
	got := Mix([]float64{1, 2}, []float64{10, 20}, []float64{100, 200})
	if got[0] != 111 || got[1] != 222 {
		t.Fatalf("got %v want [111 222]", got)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS([]float64{3, 4, -3, -4}); math.Abs(got-math.Sqrt(12.5)) > 1e-12 {
		t.Fatalf("got %v", got)
	}

	if RMS(nil) != 0 {
		t.Fatal("empty RMS should be 0")
	}
}

func TestBlockRMS(t *testing.T) {
	signal := []float64{1, 1, 2, 2, 3} // trailing partial block dropped
	got := BlockRMS(signal, 2)

	if len(got) != 2 {
		t.Fatalf("blocks: got %d want 2", len(got))
	}

	if math.Abs(got[0]-1) > 1e-12 || math.Abs(got[1]-2) > 1e-12 {
		t.Fatalf("got %v want [1 2]", got)
	}

	if BlockRMS(signal, 0) != nil {
		t.Fatal("zero block size should yield nil")
	}
}
