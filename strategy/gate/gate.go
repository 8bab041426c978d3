// Package gate implements half-duplex echo suppression: the near end is
// muted whenever the smoothed far-end level indicates the loudspeaker is
// active.
package gate

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-aec/engine"
)

// Strategy is an envelope-follower based half-duplex gate. It tracks an
// exponentially smoothed far-end RMS envelope; while the envelope exceeds the
// threshold the gate is closed and the output is silence, otherwise the near
// end passes through unchanged.
type Strategy struct {
	attackMs    float64
	decayMs     float64
	thresholdDB float64

	sampleRate    float64
	frameDuration float64

	attackCoeff  float64
	decayCoeff   float64
	thresholdLin float64

	envelope    float64
	closed      bool
	transitions uint64

	logger zerolog.Logger
	notify func(engine.Notification)
}

// DefaultParams returns the default gate parameters.
func DefaultParams() engine.Params {
	return engine.Params{Num: map[string]float64{
		"attack_ms":    10,
		"decay_ms":     250,
		"threshold_db": -45,
	}}
}

// New creates the gate strategy. All three parameters are required.
func New(ctx engine.Context, params engine.Params) (engine.Strategy, error) {
	if err := params.RequireNum("attack_ms", "decay_ms", "threshold_db"); err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}

	s := &Strategy{
		sampleRate:    ctx.SampleRate,
		frameDuration: ctx.FrameDuration(),
		logger:        ctx.Logger,
		notify:        ctx.Notify,
	}

	if err := s.Configure(params); err != nil {
		return nil, err
	}

	return s, nil
}

// Configure applies a parameter delta and recomputes the smoothing
// coefficients.
func (s *Strategy) Configure(p engine.Params) error {
	attack := p.GetNum("attack_ms", s.attackMs)
	decay := p.GetNum("decay_ms", s.decayMs)
	if attack <= 0 || decay <= 0 {
		return fmt.Errorf("gate: time constants must be > 0: attack %f, decay %f", attack, decay)
	}

	s.attackMs = attack
	s.decayMs = decay
	s.thresholdDB = p.GetNum("threshold_db", s.thresholdDB)

	// Per-frame smoothing coefficient: 1 - exp(-frameDuration / tau).
	s.attackCoeff = 1 - math.Exp(-s.frameDuration/(s.attackMs*0.001))
	s.decayCoeff = 1 - math.Exp(-s.frameDuration/(s.decayMs*0.001))
	s.thresholdLin = math.Pow(10, s.thresholdDB/20)

	return nil
}

// OnSelected resets the envelope and reopens the gate.
func (s *Strategy) OnSelected() {
	s.envelope = 0
	s.setClosed(false)
}

// ProcessFrame implements engine.Strategy.
func (s *Strategy) ProcessFrame(near, far, out, test []float64) {
	rms := frameRMS(far)

	// Attack tau while the instantaneous level exceeds the envelope,
	// decay tau otherwise.
	coeff := s.decayCoeff
	if rms > s.envelope {
		coeff = s.attackCoeff
	}
	s.envelope += (rms - s.envelope) * coeff

	s.setClosed(s.envelope > s.thresholdLin)

	if s.closed {
		for i := range out {
			out[i] = 0
		}
	} else {
		copy(out, near)
	}

	for i := range test {
		test[i] = 0
	}
}

// Stats implements engine.Strategy.
func (s *Strategy) Stats() map[string]float64 {
	closed := 0.0
	if s.closed {
		closed = 1
	}

	return map[string]float64{
		"gate_closed":  closed,
		"envelope_db":  ampTodB(s.envelope),
		"threshold_db": s.thresholdDB,
		"transitions":  float64(s.transitions),
	}
}

// setClosed records a gate state change and emits the transition
// notification exactly once per transition.
func (s *Strategy) setClosed(closed bool) {
	if closed == s.closed {
		return
	}

	s.closed = closed
	s.transitions++
	s.logger.Debug().Bool("closed", closed).Msg("gate transition")

	if s.notify != nil {
		s.notify(engine.Notification{Kind: "gated", Gated: closed})
	}
}

func frameRMS(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}

	var sum float64
	for _, v := range buf {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(buf)))
}

func ampTodB(value float64) float64 {
	a := math.Abs(value)
	if a == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(a)
}
