package rir

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-aec/delayline"
	"github.com/cwbudde/algo-aec/engine"
)

// Strategy measures the echo-path impulse response and cancels echo by a
// sparse convolution of the far end against the trimmed response. While the
// measurer is not ready the output is muted and frames are forwarded to it.
type Strategy struct {
	measurer    *Measurer
	line        *delayline.Line
	attenuation float64

	sampleRate float64
	logger     zerolog.Logger

	measurements uint64
	capturing    bool
	capCapacity  int
}

// DefaultParams returns the default measurement parameters.
func DefaultParams() engine.Params {
	return engine.Params{
		Num: map[string]float64{
			"duration_ms":        1000,
			"ir_length":          4096,
			"mls_order":          14,
			"pulse_width":        64,
			"pre_pad_ms":         50,
			"pre_echo_margin_ms": 3,
			"attenuation":        1.0,
			"silence_rms":        1e-4,
			"epsilon":            1e-6,
		},
		Str: map[string]string{"signal": SignalMLS},
	}
}

// New creates the impulse-response strategy. duration_ms and ir_length are
// required.
func New(ctx engine.Context, params engine.Params) (engine.Strategy, error) {
	if err := params.RequireNum("duration_ms", "ir_length"); err != nil {
		return nil, fmt.Errorf("rir: %w", err)
	}

	s := &Strategy{
		sampleRate:  ctx.SampleRate,
		logger:      ctx.Logger,
		attenuation: params.GetNum("attenuation", 1.0),
	}

	if err := s.rebuild(params); err != nil {
		return nil, err
	}

	return s, nil
}

// Configure applies a parameter delta. Any measurement-shaping change
// rebuilds the measurer and invalidates the current result; attenuation
// changes apply immediately.
func (s *Strategy) Configure(p engine.Params) error {
	s.attenuation = p.GetNum("attenuation", s.attenuation)

	if !touchesMeasurement(p) {
		return nil
	}

	return s.rebuild(s.currentParams().Merge(p))
}

// OnSelected starts a fresh measurement, as does an explicit Remeasure.
func (s *Strategy) OnSelected() {
	s.Remeasure()
}

// Remeasure implements engine.Remeasurer.
func (s *Strategy) Remeasure() {
	s.line.Reset()
	s.measurer.Begin()
	s.measurements++
}

// ProcessFrame implements engine.Strategy.
func (s *Strategy) ProcessFrame(near, far, out, test []float64) {
	if !s.measurer.Ready() {
		s.measurer.PushFrame(near, test)

		becameReady := s.measurer.Ready()
		for i := range out {
			out[i] = 0
		}

		if becameReady && s.measurer.Result().Silent {
			s.logger.Warn().Msg("impulse response measurement recorded near-silence")
		}

		return
	}

	for i := range test {
		test[i] = 0
	}

	result := s.measurer.Result()
	trimmed := result.Trimmed

	for i := range out {
		s.line.Write(far[i])

		// Sparse convolution: only the trimmed coefficients are
		// evaluated, each reading the delay line at its own offset back
		// from the write cursor.
		var echo float64
		for k, h := range trimmed.Coefficients {
			echo += h * s.line.Read(trimmed.StartOffset+k+1)
		}

		out[i] = near[i] - s.attenuation*echo
	}
}

// Stats implements engine.Strategy.
func (s *Strategy) Stats() map[string]float64 {
	ready := 0.0
	acquired := 0.0
	boundary := 0.0

	result := s.measurer.Result()
	if s.measurer.Ready() {
		ready = 1
		if len(result.Trimmed.Coefficients) > 0 {
			acquired = 1
		}
		if result.PeakAtBoundary {
			boundary = 1
		}
	}

	return map[string]float64{
		"ready":            ready,
		"acquired":         acquired,
		"peak":             result.Peak,
		"peak_delay_ms":    float64(result.PeakIndex) / s.sampleRate * 1000,
		"crest_factor":     result.CrestFactor,
		"peak_at_boundary": boundary,
		"measurements":     float64(s.measurements),
	}
}

// StartCapture implements engine.TrackProvider. The RIR tracks are produced
// by the measurement itself rather than streamed, so capture only marks that
// the tracks should be handed out on stop.
func (s *Strategy) StartCapture(capacity int) {
	s.capturing = true
	s.capCapacity = capacity
}

// StopCapture implements engine.TrackProvider.
func (s *Strategy) StopCapture() map[string][]float64 {
	if !s.capturing {
		return nil
	}

	s.capturing = false

	tracks := map[string][]float64{}

	tracks["test_signal"] = clampCopy(s.measurer.Signal(), s.capCapacity)
	tracks["raw_recording"] = clampCopy(s.measurer.recorded[:s.measurer.recPos], s.capCapacity)

	if s.measurer.Ready() {
		tracks["impulse_response"] = clampCopy(s.measurer.Result().IR, s.capCapacity)
	}

	return tracks
}

func clampCopy(src []float64, capacity int) []float64 {
	n := len(src)
	if capacity > 0 && n > capacity {
		n = capacity
	}

	out := make([]float64, n)
	copy(out, src[:n])

	return out
}

func (s *Strategy) rebuild(p engine.Params) error {
	cfg := MeasurerConfig{
		SampleRate:      s.sampleRate,
		SignalType:      p.GetStr("signal", SignalMLS),
		MLSOrder:        int(p.GetNum("mls_order", 14)),
		PulseWidth:      int(p.GetNum("pulse_width", 64)),
		DurationMs:      p.GetNum("duration_ms", 0),
		IRLength:        int(p.GetNum("ir_length", 0)),
		PrePadMs:        p.GetNum("pre_pad_ms", 50),
		PreEchoMarginMs: p.GetNum("pre_echo_margin_ms", 3),
		SilenceRMS:      p.GetNum("silence_rms", 1e-4),
		Epsilon:         p.GetNum("epsilon", 1e-6),
	}

	measurer, err := NewMeasurer(cfg)
	if err != nil {
		return err
	}

	// The far-end delay line covers the full untrimmed response length so
	// any trimmed offset remains addressable.
	line, err := delayline.New(cfg.IRLength)
	if err != nil {
		return err
	}

	s.measurer = measurer
	s.line = line

	return nil
}

// currentParams reconstructs the measurer's parameter set for delta merging.
func (s *Strategy) currentParams() engine.Params {
	cfg := s.measurer.cfg
	return engine.Params{
		Num: map[string]float64{
			"duration_ms":        cfg.DurationMs,
			"ir_length":          float64(cfg.IRLength),
			"mls_order":          float64(cfg.MLSOrder),
			"pulse_width":        float64(cfg.PulseWidth),
			"pre_pad_ms":         cfg.PrePadMs,
			"pre_echo_margin_ms": cfg.PreEchoMarginMs,
			"silence_rms":        cfg.SilenceRMS,
			"epsilon":            cfg.Epsilon,
		},
		Str: map[string]string{"signal": cfg.SignalType},
	}
}

var measurementKeys = []string{
	"duration_ms", "ir_length", "mls_order", "pulse_width",
	"pre_pad_ms", "pre_echo_margin_ms", "silence_rms", "epsilon",
}

func touchesMeasurement(p engine.Params) bool {
	for _, key := range measurementKeys {
		if _, ok := p.Num[key]; ok {
			return true
		}
	}

	_, ok := p.Str["signal"]

	return ok
}
