// Package simple provides the trivial cancellation strategies: passthrough,
// mute, a test-tone generator, and naive (unaligned) far-end subtraction.
// They carry no learned state and exist mainly as baselines and diagnostics.
package simple

import (
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-aec/engine"
)

// Passthrough copies the near-end frame to the output unchanged.
type Passthrough struct{}

// NewPassthrough creates a passthrough strategy.
func NewPassthrough(_ engine.Context, _ engine.Params) (engine.Strategy, error) {
	return &Passthrough{}, nil
}

// ProcessFrame implements engine.Strategy.
func (*Passthrough) ProcessFrame(near, _, out, test []float64) {
	copy(out, near)
	zero(test)
}

// Configure implements engine.Strategy.
func (*Passthrough) Configure(engine.Params) error { return nil }

// OnSelected implements engine.Strategy.
func (*Passthrough) OnSelected() {}

// Stats implements engine.Strategy.
func (*Passthrough) Stats() map[string]float64 { return nil }

// Mute outputs silence regardless of input.
type Mute struct{}

// NewMute creates a mute strategy.
func NewMute(_ engine.Context, _ engine.Params) (engine.Strategy, error) {
	return &Mute{}, nil
}

// ProcessFrame implements engine.Strategy.
func (*Mute) ProcessFrame(_, _, out, test []float64) {
	zero(out)
	zero(test)
}

// Configure implements engine.Strategy.
func (*Mute) Configure(engine.Params) error { return nil }

// OnSelected implements engine.Strategy.
func (*Mute) OnSelected() {}

// Stats implements engine.Strategy.
func (*Mute) Stats() map[string]float64 { return nil }

// TestTone passes the near end through and emits a steady sine on the
// test-signal output, so the acoustic loop can be checked end to end.
type TestTone struct {
	freqHz    float64
	amplitude float64
	phase     float64
	phaseStep float64

	sampleRate float64
}

// DefaultTestToneParams returns the default test-tone parameters.
func DefaultTestToneParams() engine.Params {
	return engine.Params{Num: map[string]float64{
		"freq_hz":   440,
		"amplitude": 0.5,
	}}
}

// NewTestTone creates a test-tone strategy.
func NewTestTone(ctx engine.Context, params engine.Params) (engine.Strategy, error) {
	t := &TestTone{sampleRate: ctx.SampleRate}
	if err := t.Configure(params); err != nil {
		return nil, err
	}
	return t, nil
}

// Configure implements engine.Strategy.
func (t *TestTone) Configure(p engine.Params) error {
	t.freqHz = p.GetNum("freq_hz", t.freqHz)
	t.amplitude = p.GetNum("amplitude", t.amplitude)
	t.phaseStep = 2 * math.Pi * t.freqHz / t.sampleRate
	return nil
}

// OnSelected restarts the tone phase.
func (t *TestTone) OnSelected() {
	t.phase = 0
}

// ProcessFrame implements engine.Strategy.
func (t *TestTone) ProcessFrame(near, _, out, test []float64) {
	copy(out, near)
	for i := range test {
		test[i] = t.amplitude * math.Sin(t.phase)
		t.phase += t.phaseStep
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}

// Stats implements engine.Strategy.
func (t *TestTone) Stats() map[string]float64 {
	return map[string]float64{"freq_hz": t.freqHz, "amplitude": t.amplitude}
}

// Subtract subtracts the attenuated far-end frame from the near end with no
// delay compensation. It only helps on purely electrical echo paths where
// the loopback delay is below one frame.
type Subtract struct {
	attenuation float64
	scaled      []float64
}

// DefaultSubtractParams returns the default naive-subtraction parameters.
func DefaultSubtractParams() engine.Params {
	return engine.Params{Num: map[string]float64{"attenuation": 1.0}}
}

// NewSubtract creates a naive subtraction strategy.
func NewSubtract(ctx engine.Context, params engine.Params) (engine.Strategy, error) {
	s := &Subtract{scaled: make([]float64, ctx.FrameSize)}
	if err := s.Configure(params); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure implements engine.Strategy.
func (s *Subtract) Configure(p engine.Params) error {
	s.attenuation = p.GetNum("attenuation", s.attenuation)
	return nil
}

// OnSelected implements engine.Strategy.
func (*Subtract) OnSelected() {}

// ProcessFrame implements engine.Strategy.
func (s *Subtract) ProcessFrame(near, far, out, test []float64) {
	vecmath.ScaleBlock(s.scaled, far, s.attenuation)
	for i := range out {
		out[i] = near[i] - s.scaled[i]
	}
	zero(test)
}

// Stats implements engine.Strategy.
func (s *Subtract) Stats() map[string]float64 {
	return map[string]float64{"attenuation": s.attenuation}
}

func zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}
