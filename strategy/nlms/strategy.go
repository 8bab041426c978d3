package nlms

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-aec/engine"
)

// Strategy runs the adaptive filter sample by sample: the cancelled error
// signal is the output, and the filter adapts on it continuously.
type Strategy struct {
	filter *Filter

	sampleRate float64
	logger     zerolog.Logger

	errTrack *engine.Track
}

// DefaultParams returns the default adaptive filter parameters.
func DefaultParams() engine.Params {
	return engine.Params{Num: map[string]float64{
		"filter_length": 4096,
		"min_delay":     0,
		"step_size":     0.5,
		"leakage":       0.9999,
		"epsilon":       1e-6,
	}}
}

// New creates the NLMS strategy. filter_length and step_size are required.
func New(ctx engine.Context, params engine.Params) (engine.Strategy, error) {
	if err := params.RequireNum("filter_length", "step_size"); err != nil {
		return nil, fmt.Errorf("nlms: %w", err)
	}

	filter, err := NewFilter(configFromParams(ctx.SampleRate, params, FilterConfig{
		MinDelay: 0,
		Leakage:  0.9999,
		Epsilon:  1e-6,
	}))
	if err != nil {
		return nil, err
	}

	return &Strategy{
		filter:     filter,
		sampleRate: ctx.SampleRate,
		logger:     ctx.Logger,
	}, nil
}

// Configure applies a parameter delta. A filter length change reinitializes
// all state; the other parameters apply to the existing filter.
func (s *Strategy) Configure(p engine.Params) error {
	current := s.filter.Config()
	cfg := configFromParams(s.sampleRate, p, current)

	if err := cfg.validate(); err != nil {
		return err
	}

	if cfg.Length != current.Length {
		filter, err := NewFilter(cfg)
		if err != nil {
			return err
		}

		s.filter = filter
		s.logger.Debug().Int("length", cfg.Length).Msg("adaptive filter reinitialized")

		return nil
	}

	minDelayChanged := cfg.MinDelay != current.MinDelay
	s.filter.cfg = cfg

	if minDelayChanged {
		// Moving the active tap window invalidates the incrementally
		// maintained windowed energy; recompute it exactly.
		s.filter.rescan()
	}

	return nil
}

// OnSelected keeps the learned coefficients: the echo path does not change
// just because the mode was toggled. Use ResetState for a fresh start.
func (*Strategy) OnSelected() {}

// ProcessFrame implements engine.Strategy.
func (s *Strategy) ProcessFrame(near, far, out, test []float64) {
	for i := range out {
		e := s.filter.ProcessSample(near[i], far[i])
		out[i] = e

		if s.errTrack != nil {
			s.errTrack.AppendSample(e)
		}
	}

	for i := range test {
		test[i] = 0
	}
}

// Stats implements engine.Strategy.
func (s *Strategy) Stats() map[string]float64 {
	peakTap, peakVal := s.filter.PeakTap()
	cfg := s.filter.Config()

	return map[string]float64{
		"filter_length":   float64(cfg.Length),
		"min_delay":       float64(cfg.MinDelay),
		"step_size":       cfg.StepSize,
		"leakage":         cfg.Leakage,
		"updates":         float64(s.filter.Updates()),
		"skipped_updates": float64(s.filter.SkippedUpdates()),
		"peak_tap":        float64(peakTap),
		"peak_tap_value":  peakVal,
		"peak_delay_ms":   float64(peakTap) / s.sampleRate * 1000,
	}
}

// ResetState implements engine.StateResetter.
func (s *Strategy) ResetState() {
	s.filter.Reset()
}

// ExportFilter implements engine.FilterExporter.
func (s *Strategy) ExportFilter() engine.FilterExport {
	cfg := s.filter.Config()

	return engine.FilterExport{
		Coefficients:    s.filter.Coefficients(),
		FilterLength:    cfg.Length,
		MinDelaySamples: cfg.MinDelay,
		SampleRate:      cfg.SampleRate,
	}
}

// StartCapture implements engine.TrackProvider.
func (s *Strategy) StartCapture(capacity int) {
	s.errTrack = engine.NewTrack(capacity)
}

// StopCapture implements engine.TrackProvider.
func (s *Strategy) StopCapture() map[string][]float64 {
	if s.errTrack == nil {
		return nil
	}

	tracks := map[string][]float64{"error_signal": s.errTrack.Samples()}
	s.errTrack = nil

	return tracks
}

func configFromParams(sampleRate float64, p engine.Params, base FilterConfig) FilterConfig {
	return FilterConfig{
		SampleRate: sampleRate,
		Length:     int(p.GetNum("filter_length", float64(base.Length))),
		MinDelay:   int(p.GetNum("min_delay", float64(base.MinDelay))),
		StepSize:   p.GetNum("step_size", base.StepSize),
		Leakage:    p.GetNum("leakage", base.Leakage),
		Epsilon:    p.GetNum("epsilon", base.Epsilon),
	}
}
