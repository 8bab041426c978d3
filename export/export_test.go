package export

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-aec/engine"
	"github.com/cwbudde/algo-aec/internal/testutil"
)

func decodeWAV(t *testing.T, path string) ([]float64, int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatalf("%s: not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}

	out := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float64(v) / 32767
	}

	return out, int(dec.SampleRate)
}

// --- WAV tracks ---

func TestWriteTrackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")

	samples := testutil.DeterministicSine(440, 48000, 0.5, 4800)
	if err := WriteTrack(path, samples, 48000); err != nil {
		t.Fatal(err)
	}

	got, rate := decodeWAV(t, path)

	if rate != 48000 {
		t.Fatalf("sample rate: got %d want 48000", rate)
	}

	if len(got) != len(samples) {
		t.Fatalf("length: got %d want %d", len(got), len(samples))
	}

	// 16-bit quantization bounds the round-trip error.
	testutil.RequireSliceNearlyEqual(t, got, samples, 1.0/32767+1e-9)
}

func TestWriteTrackClipsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")

	if err := WriteTrack(path, []float64{2, -3, 0.5}, 48000); err != nil {
		t.Fatal(err)
	}

	got, _ := decodeWAV(t, path)

	testutil.RequireNear(t, got[0], 1, 1e-3)
	testutil.RequireNear(t, got[1], -1, 1e-3)
	testutil.RequireNear(t, got[2], 0.5, 1e-3)
}

func TestWriteTracksCreatesDirAndFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")

	tracks := map[string][]float64{
		"near_end": testutil.DeterministicNoise(1, 0.3, 480),
		"output":   make([]float64, 480),
	}

	if err := WriteTracks(dir, tracks, 48000); err != nil {
		t.Fatal(err)
	}

	for name := range tracks {
		path := filepath.Join(dir, name+".wav")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing %s: %v", path, err)
		}
	}
}

func TestWriteTrackBadPath(t *testing.T) {
	err := WriteTrack(filepath.Join(t.TempDir(), "no", "such", "dir.wav"), []float64{0}, 48000)
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

// --- filter export ---

func TestWriteFilterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.json")

	in := engine.FilterExport{
		Coefficients:    []float64{0, 0.25, -0.5, 1},
		FilterLength:    4,
		MinDelaySamples: 1,
		SampleRate:      48000,
	}

	if err := WriteFilter(path, in); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var got engine.FilterExport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	if got.FilterLength != 4 || got.MinDelaySamples != 1 || got.SampleRate != 48000 {
		t.Fatalf("metadata mismatch: %+v", got)
	}

	for i := range in.Coefficients {
		if math.Abs(got.Coefficients[i]-in.Coefficients[i]) > 1e-12 {
			t.Fatalf("coefficient %d: got %v want %v", i, got.Coefficients[i], in.Coefficients[i])
		}
	}
}
