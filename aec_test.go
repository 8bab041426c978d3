package aec_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/cwbudde/algo-aec"
)

func TestRegistryContainsAllModes(t *testing.T) {
	names := aec.Registry().Names()

	want := []string{
		aec.ModeAlign, aec.ModeGate, aec.ModeMute, aec.ModeNLMS,
		aec.ModePassthrough, aec.ModeRIR, aec.ModeSubtract, aec.ModeTestTone,
	}
	sort.Strings(want)

	if len(names) != len(want) {
		t.Fatalf("registry names: got %v want %v", names, want)
	}

	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("registry names: got %v want %v", names, want)
		}
	}
}

func TestNewDefaultsToPassthrough(t *testing.T) {
	eng, err := aec.New(aec.Options{SampleRate: 48000, Quantum: 128})
	if err != nil {
		t.Fatal(err)
	}

	if eng.Mode() != aec.ModePassthrough {
		t.Fatalf("mode: got %q want %q", eng.Mode(), aec.ModePassthrough)
	}

	if eng.FrameSize() != 128 {
		t.Fatalf("frame size: got %d want 128", eng.FrameSize())
	}
}

func TestNewWithBatchAndMode(t *testing.T) {
	eng, err := aec.New(aec.Options{
		SampleRate:  48000,
		Quantum:     128,
		BatchFrames: 4,
		Mode:        aec.ModeGate,
	})
	if err != nil {
		t.Fatal(err)
	}

	if eng.Mode() != aec.ModeGate {
		t.Fatalf("mode: got %q want %q", eng.Mode(), aec.ModeGate)
	}

	if eng.FrameSize() != 512 {
		t.Fatalf("frame size: got %d want 512", eng.FrameSize())
	}
}

func TestNewInvalidOptions(t *testing.T) {
	if _, err := aec.New(aec.Options{Quantum: 128}); err == nil {
		t.Fatal("expected error for missing sample rate")
	}

	if _, err := aec.New(aec.Options{SampleRate: 48000, Quantum: 128, Mode: "bogus"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func ExampleNew() {
	eng, err := aec.New(aec.Options{
		SampleRate: 48000,
		Quantum:    4,
		Mode:       aec.ModePassthrough,
	})
	if err != nil {
		panic(err)
	}

	near := []float64{0.1, 0.2, 0.3, 0.4}
	far := make([]float64, 4)
	out := make([]float64, 4)

	// The engine introduces one logical frame of latency: the first
	// callback returns silence, the second returns the first frame.
	eng.Process(near, far, out, nil)
	fmt.Printf("first: %.1f\n", out)

	eng.Process(make([]float64, 4), far, out, nil)
	fmt.Printf("second: %.1f\n", out)

	// Output:
	// first: [0.0 0.0 0.0 0.0]
	// second: [0.1 0.2 0.3 0.4]
}
