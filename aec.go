// Package aec wires the acoustic echo cancellation engine together: it
// registers every standard strategy and constructs a ready-to-run engine.
//
// The engine consumes a near-end (microphone) stream and a far-end
// (loudspeaker reference) stream in fixed hardware quanta and produces a
// cancelled output stream plus an optional test-signal stream:
//
//	eng, err := aec.New(aec.Options{SampleRate: 48000, Quantum: 128, Mode: aec.ModeNLMS})
//	...
//	eng.Process(near, far, out, test) // once per audio callback
//
// Control operations (mode switches, reconfiguration, stats, debug capture)
// are asynchronous and applied at frame boundaries; see package engine.
package aec

import (
	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-aec/engine"
	"github.com/cwbudde/algo-aec/strategy/align"
	"github.com/cwbudde/algo-aec/strategy/gate"
	"github.com/cwbudde/algo-aec/strategy/nlms"
	"github.com/cwbudde/algo-aec/strategy/rir"
	"github.com/cwbudde/algo-aec/strategy/simple"
)

// Standard strategy names.
const (
	ModePassthrough = "passthrough"
	ModeMute        = "mute"
	ModeTestTone    = "testtone"
	ModeSubtract    = "subtract"
	ModeGate        = "gate"
	ModeAlign       = "align"
	ModeRIR         = "rir"
	ModeNLMS        = "nlms"
)

// Options configures New.
type Options struct {
	// SampleRate in Hz. Required.
	SampleRate float64
	// Quantum is the samples per hardware callback. Required.
	Quantum int
	// BatchFrames batches callbacks into one logical frame. Defaults to 1.
	BatchFrames int
	// Mode is the initially active strategy. Defaults to ModePassthrough.
	Mode string
	// Overrides holds per-strategy parameter deltas over the defaults.
	Overrides map[string]engine.Params
	// Logger receives diagnostic events. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Registry returns a registry with every standard strategy registered.
func Registry() *engine.Registry {
	reg := engine.NewRegistry()

	reg.MustRegister(ModePassthrough, simple.NewPassthrough, nil)
	reg.MustRegister(ModeMute, simple.NewMute, nil)
	reg.MustRegister(ModeTestTone, simple.NewTestTone, simple.DefaultTestToneParams)
	reg.MustRegister(ModeSubtract, simple.NewSubtract, simple.DefaultSubtractParams)
	reg.MustRegister(ModeGate, gate.New, gate.DefaultParams)
	reg.MustRegister(ModeAlign, align.New, align.DefaultParams)
	reg.MustRegister(ModeRIR, rir.New, rir.DefaultParams)
	reg.MustRegister(ModeNLMS, nlms.New, nlms.DefaultParams)

	return reg
}

// New constructs an engine with all standard strategies.
func New(opts Options) (*engine.Engine, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModePassthrough
	}

	return engine.NewEngine(engine.Config{
		SampleRate:  opts.SampleRate,
		Quantum:     opts.Quantum,
		BatchFrames: opts.BatchFrames,
		InitialMode: mode,
		Overrides:   opts.Overrides,
		Logger:      opts.Logger,
	}, Registry())
}
