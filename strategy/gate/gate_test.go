package gate

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-aec/engine"
	"github.com/cwbudde/algo-aec/internal/testutil"
)

const (
	testSampleRate = 48000.0
	testFrameSize  = 128
)

func newTestGate(t *testing.T, notify func(engine.Notification), params engine.Params) engine.Strategy {
	t.Helper()

	s, err := New(engine.Context{
		SampleRate: testSampleRate,
		FrameSize:  testFrameSize,
		Logger:     zerolog.Nop(),
		Notify:     notify,
	}, params)
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func runFrames(s engine.Strategy, near, far []float64, frames int) (lastOut []float64) {
	out := make([]float64, testFrameSize)
	test := make([]float64, testFrameSize)

	for i := 0; i < frames; i++ {
		s.ProcessFrame(near, far, out, test)
	}

	return out
}

// --- construction ---

func TestNewRequiresParams(t *testing.T) {
	_, err := New(engine.Context{SampleRate: testSampleRate, FrameSize: testFrameSize},
		engine.Params{Num: map[string]float64{"attack_ms": 10}})
	if err == nil {
		t.Fatal("expected error for missing decay_ms and threshold_db")
	}
}

func TestConfigureRejectsNonPositiveTimeConstants(t *testing.T) {
	s := newTestGate(t, nil, DefaultParams())

	if err := s.Configure(engine.Params{Num: map[string]float64{"attack_ms": 0}}); err == nil {
		t.Fatal("expected error for attack_ms=0")
	}

	if err := s.Configure(engine.Params{Num: map[string]float64{"decay_ms": -5}}); err == nil {
		t.Fatal("expected error for negative decay_ms")
	}
}

// --- gating behavior ---

func TestGateClosesOnSustainedFarEnd(t *testing.T) {
	s := newTestGate(t, nil, DefaultParams())

	near := testutil.DeterministicNoise(1, 0.3, testFrameSize)
	far := testutil.DeterministicSine(440, testSampleRate, 0.5, testFrameSize)

	// 20 frames at 128/48000 s each is ~53 ms, far beyond the 10 ms
	// attack time.
	out := runFrames(s, near, far, 20)
	testutil.RequireAllZero(t, out)

	if s.Stats()["gate_closed"] != 1 {
		t.Fatal("gate should report closed")
	}
}

func TestGateReopensAfterDecay(t *testing.T) {
	s := newTestGate(t, nil, DefaultParams())

	near := testutil.DeterministicNoise(2, 0.3, testFrameSize)
	loud := testutil.DeterministicSine(440, testSampleRate, 0.5, testFrameSize)
	silence := make([]float64, testFrameSize)

	runFrames(s, near, loud, 20)

	// Falling from the sine RMS (~ -9 dBFS) to the -45 dBFS threshold
	// takes a bit over four 250 ms time constants; 500 frames is ~1.3 s.
	out := runFrames(s, near, silence, 500)
	testutil.RequireSliceNearlyEqual(t, out, near, 0)

	if s.Stats()["gate_closed"] != 0 {
		t.Fatal("gate should report open")
	}
}

func TestGateStaysOpenBelowThreshold(t *testing.T) {
	s := newTestGate(t, nil, DefaultParams())

	near := testutil.DeterministicNoise(3, 0.3, testFrameSize)
	// -45 dBFS threshold; a -60 dBFS far end must never close the gate.
	quiet := testutil.DeterministicSine(440, testSampleRate, 0.001, testFrameSize)

	out := runFrames(s, near, quiet, 50)
	testutil.RequireSliceNearlyEqual(t, out, near, 0)
}

// --- notifications ---

func TestGateNotifiesOncePerTransition(t *testing.T) {
	var events []engine.Notification
	notify := func(n engine.Notification) { events = append(events, n) }

	s := newTestGate(t, notify, DefaultParams())

	near := make([]float64, testFrameSize)
	loud := testutil.DeterministicSine(440, testSampleRate, 0.5, testFrameSize)
	silence := make([]float64, testFrameSize)

	runFrames(s, near, loud, 20)
	runFrames(s, near, silence, 500)
	runFrames(s, near, loud, 20)

	want := []bool{true, false, true}
	if len(events) != len(want) {
		t.Fatalf("notifications: got %d want %d", len(events), len(want))
	}

	for i, n := range events {
		if n.Kind != "gated" {
			t.Fatalf("event %d kind: got %q want %q", i, n.Kind, "gated")
		}
		if n.Gated != want[i] {
			t.Fatalf("event %d gated: got %v want %v", i, n.Gated, want[i])
		}
	}

	if got := s.Stats()["transitions"]; got != 3 {
		t.Fatalf("transitions: got %v want 3", got)
	}
}

// --- selection and stats ---

func TestOnSelectedResetsEnvelope(t *testing.T) {
	s := newTestGate(t, nil, DefaultParams())

	near := testutil.DeterministicNoise(4, 0.3, testFrameSize)
	loud := testutil.DeterministicSine(440, testSampleRate, 0.5, testFrameSize)

	runFrames(s, near, loud, 20)
	s.OnSelected()

	if s.Stats()["gate_closed"] != 0 {
		t.Fatal("gate should reopen on selection")
	}

	// The envelope restarts from zero, so the gate closes again from
	// scratch once the loud far end returns.
	out := runFrames(s, near, loud, 20)
	testutil.RequireAllZero(t, out)
}

func TestStatsEnvelopeDB(t *testing.T) {
	s := newTestGate(t, nil, DefaultParams())

	stats := s.Stats()
	if !math.IsInf(stats["envelope_db"], -1) {
		t.Fatalf("zero envelope: got %v want -Inf", stats["envelope_db"])
	}

	if stats["threshold_db"] != -45 {
		t.Fatalf("threshold_db: got %v want -45", stats["threshold_db"])
	}

	far := testutil.DeterministicSine(440, testSampleRate, 0.5, testFrameSize)
	runFrames(s, make([]float64, testFrameSize), far, 100)

	// Converged envelope approaches the far-end RMS (~ -9 dBFS for a
	// 0.5 amplitude sine).
	env := s.Stats()["envelope_db"]
	if env < -12 || env > -6 {
		t.Fatalf("converged envelope: got %v dB, want about -9 dB", env)
	}
}
