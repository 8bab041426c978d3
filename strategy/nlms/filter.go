// Package nlms implements a normalized leaky least-mean-squares adaptive
// filter that learns the echo path online and subtracts its estimate from
// the near end.
package nlms

import (
	"fmt"
	"math"
)

// peakScanInterval is the number of coefficient updates between diagnostic
// peak-tap scans. The windowed energy is fully recomputed on the same
// cadence to bound incremental-update drift.
const peakScanInterval = 1000

// FilterConfig describes the adaptive filter parameters.
type FilterConfig struct {
	SampleRate float64
	// Length is the number of taps L.
	Length int
	// MinDelay is the known minimum propagation delay in samples; taps
	// below it are never used or updated.
	MinDelay int
	// StepSize is the normalized adaptation step (mu).
	StepSize float64
	// Leakage (< 1) decays unused taps toward zero, preventing drift when
	// the far end does not excite all delays.
	Leakage float64
	// Epsilon is the energy floor below which coefficient updates are
	// skipped.
	Epsilon float64
}

func (c FilterConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("nlms: sample rate must be > 0: %f", c.SampleRate)
	}

	if c.Length <= 0 {
		return fmt.Errorf("nlms: filter length must be > 0: %d", c.Length)
	}

	if c.MinDelay < 0 || c.MinDelay >= c.Length {
		return fmt.Errorf("nlms: min delay %d out of range for length %d", c.MinDelay, c.Length)
	}

	if c.StepSize <= 0 || c.StepSize >= 2 {
		return fmt.Errorf("nlms: step size must be in (0, 2): %f", c.StepSize)
	}

	if c.Leakage <= 0 || c.Leakage > 1 {
		return fmt.Errorf("nlms: leakage must be in (0, 1]: %f", c.Leakage)
	}

	if c.Epsilon <= 0 {
		return fmt.Errorf("nlms: epsilon must be > 0: %f", c.Epsilon)
	}

	return nil
}

// Filter is the adaptive filter state: coefficients, a circular far-end
// delay line, and a running estimate of the input energy over the active
// tap window [MinDelay, Length).
type Filter struct {
	cfg FilterConfig

	coeffs []float64
	delay  []float64
	cursor int

	energy float64

	updates      uint64
	skipped      uint64
	peakTap      int
	peakTapValue float64
}

// NewFilter creates an adaptive filter with zeroed state.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Filter{
		cfg:    cfg,
		coeffs: make([]float64, cfg.Length),
		delay:  make([]float64, cfg.Length),
	}, nil
}

// Config returns the current configuration.
func (f *Filter) Config() FilterConfig {
	return f.cfg
}

// ProcessSample consumes one far-end and one near-end sample and returns
// the cancelled (error) sample.
func (f *Filter) ProcessSample(near, far float64) float64 {
	L := f.cfg.Length
	minDelay := f.cfg.MinDelay

	// Maintain the windowed energy incrementally: the oldest sample
	// leaves the active window, the sample sliding past minDelay enters.
	leaving := f.tap(L - 1)

	entering := far
	if minDelay > 0 {
		entering = f.tap(minDelay - 1)
	}

	f.energy += entering*entering - leaving*leaving

	f.cursor++
	if f.cursor >= L {
		f.cursor = 0
	}
	f.delay[f.cursor] = far

	var yHat float64
	for j := minDelay; j < L; j++ {
		yHat += f.coeffs[j] * f.tap(j)
	}

	err := near - yHat

	if f.energy < f.cfg.Epsilon {
		// Updating on near-zero energy would divide by ~0 and adapt on
		// pure noise.
		f.skipped++
		return err
	}

	gain := f.cfg.StepSize / f.energy * err
	leak := f.cfg.Leakage

	for j := minDelay; j < L; j++ {
		f.coeffs[j] = leak*f.coeffs[j] + gain*f.tap(j)
	}

	f.updates++
	if f.updates%peakScanInterval == 0 {
		f.rescan()
	}

	return err
}

// tap returns the far-end sample j positions behind the current cursor.
func (f *Filter) tap(j int) float64 {
	idx := f.cursor - j
	if idx < 0 {
		idx += f.cfg.Length
	}
	return f.delay[idx]
}

// rescan recomputes the peak-magnitude tap and the windowed energy exactly.
func (f *Filter) rescan() {
	peakTap := f.cfg.MinDelay
	peakVal := 0.0

	for j := f.cfg.MinDelay; j < f.cfg.Length; j++ {
		av := math.Abs(f.coeffs[j])
		if av > peakVal {
			peakVal = av
			peakTap = j
		}
	}

	f.peakTap = peakTap
	f.peakTapValue = peakVal

	var energy float64
	for j := f.cfg.MinDelay; j < f.cfg.Length; j++ {
		v := f.tap(j)
		energy += v * v
	}

	f.energy = energy
}

// PeakTap returns the index and magnitude of the dominant coefficient found
// by the last diagnostic scan. Once converged it indicates the dominant
// echo-path delay.
func (f *Filter) PeakTap() (index int, value float64) {
	return f.peakTap, f.peakTapValue
}

// Reset reinitializes coefficients and delay line to zero without changing
// configuration.
func (f *Filter) Reset() {
	for i := range f.coeffs {
		f.coeffs[i] = 0
		f.delay[i] = 0
	}

	f.cursor = 0
	f.energy = 0
	f.updates = 0
	f.skipped = 0
	f.peakTap = 0
	f.peakTapValue = 0
}

// Coefficients returns a copy of the coefficient vector.
func (f *Filter) Coefficients() []float64 {
	out := make([]float64, len(f.coeffs))
	copy(out, f.coeffs)
	return out
}

// Updates returns the number of coefficient updates performed.
func (f *Filter) Updates() uint64 {
	return f.updates
}

// SkippedUpdates returns the number of samples whose update was skipped for
// insufficient input energy.
func (f *Filter) SkippedUpdates() uint64 {
	return f.skipped
}
