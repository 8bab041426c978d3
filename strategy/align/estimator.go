// Package align estimates the far-end to near-end propagation delay with
// windowed normalized cross-correlation and cancels the echo by time-aligned
// subtraction.
package align

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-aec/engine"
)

// fineStep is the fine-search stride in samples. The fine pass re-evaluates
// candidates within one coarse stride of the coarse best.
const fineStep = 1

// Estimate is the current delay estimate.
type Estimate struct {
	// DelaySamples is the accepted sample offset, never below the
	// configured minimum.
	DelaySamples int
	// Score is the normalized cross-correlation of the accepted estimate,
	// in [-1, 1].
	Score float64
	// Locked reports whether any valid estimate has ever been accepted.
	Locked bool
}

// Estimator holds circular near-end and far-end histories sized by the echo
// time window and periodically searches them for the best-correlated delay.
type Estimator struct {
	near  []float64
	far   []float64
	write int

	sampleRate     float64
	minDelay       int
	window         int
	coarseStep     int
	updateInterval int
	nccThreshold   float64
	farThreshold   float64
	nearThreshold  float64

	framesSinceUpdate int
	nearScratch       []float64

	estimate Estimate

	accepted         uint64
	rejectedLowScore uint64
	rejectedNoFar    uint64
	rejectedNoNear   uint64
}

// EstimatorConfig describes the estimator parameters in engineering units.
type EstimatorConfig struct {
	SampleRate           float64
	EchoWindowMs         float64
	MinDelayMs           float64
	UpdateIntervalFrames int
	XcorrWindow          int
	CoarseStep           int
	NCCThreshold         float64
	FarRMSThreshold      float64
	NearRMSThreshold     float64
}

// NewEstimator creates a delay estimator.
func NewEstimator(cfg EstimatorConfig) (*Estimator, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("align: sample rate must be > 0: %f", cfg.SampleRate)
	}

	size := int(cfg.EchoWindowMs * 0.001 * cfg.SampleRate)
	minDelay := int(cfg.MinDelayMs * 0.001 * cfg.SampleRate)

	if size <= 0 {
		return nil, fmt.Errorf("align: echo window must be > 0 ms: %f", cfg.EchoWindowMs)
	}

	if minDelay < 0 || minDelay >= size {
		return nil, fmt.Errorf("align: min delay %d out of range for buffer size %d", minDelay, size)
	}

	if cfg.UpdateIntervalFrames <= 0 {
		return nil, fmt.Errorf("align: update interval must be > 0 frames: %d", cfg.UpdateIntervalFrames)
	}

	if cfg.XcorrWindow <= 0 {
		return nil, fmt.Errorf("align: correlation window must be > 0: %d", cfg.XcorrWindow)
	}

	if cfg.CoarseStep <= 0 {
		return nil, fmt.Errorf("align: coarse step must be > 0: %d", cfg.CoarseStep)
	}

	window := cfg.XcorrWindow
	if window > size {
		window = size
	}

	return &Estimator{
		near:           make([]float64, size),
		far:            make([]float64, size),
		sampleRate:     cfg.SampleRate,
		minDelay:       minDelay,
		window:         window,
		coarseStep:     cfg.CoarseStep,
		updateInterval: cfg.UpdateIntervalFrames,
		nccThreshold:   cfg.NCCThreshold,
		farThreshold:   cfg.FarRMSThreshold,
		nearThreshold:  cfg.NearRMSThreshold,
		nearScratch:    make([]float64, window),
	}, nil
}

// PushFrame appends one near-end/far-end frame pair to the histories and
// runs the correlation search once every configured number of frames.
func (e *Estimator) PushFrame(near, far []float64) {
	size := len(e.near)
	for i := range near {
		e.near[e.write] = near[i]
		e.far[e.write] = far[i]
		e.write++
		if e.write >= size {
			e.write = 0
		}
	}

	e.framesSinceUpdate++
	if e.framesSinceUpdate >= e.updateInterval {
		e.framesSinceUpdate = 0
		e.update()
	}
}

// Estimate returns the current delay estimate.
func (e *Estimator) Estimate() Estimate {
	return e.estimate
}

// DelayMs returns the accepted delay in milliseconds.
func (e *Estimator) DelayMs() float64 {
	return float64(e.estimate.DelaySamples) / e.sampleRate * 1000
}

// MinDelaySamples returns the configured minimum delay in samples.
func (e *Estimator) MinDelaySamples() int {
	return e.minDelay
}

// FarAt returns the far-end history sample at the given offset behind the
// most recently written sample. Offset 1 is the newest sample; offsets wrap
// modulo the buffer size.
func (e *Estimator) FarAt(offset int) float64 {
	size := len(e.far)
	idx := ((e.write-offset)%size + size) % size
	return e.far[idx]
}

// Reset clears the histories and the lock without touching configuration.
func (e *Estimator) Reset() {
	for i := range e.near {
		e.near[i] = 0
		e.far[i] = 0
	}

	e.write = 0
	e.framesSinceUpdate = 0
	e.estimate = Estimate{}
}

// update runs the energy gate and the coarse/fine correlation search.
func (e *Estimator) update() {
	size := len(e.near)

	if e.rmsRecent(e.far) < e.farThreshold {
		e.rejectedNoFar++
		return
	}

	if e.rmsRecent(e.near) < e.nearThreshold {
		e.rejectedNoNear++
		return
	}

	// Snapshot the most recent near-end window once; its energy is shared
	// by every candidate.
	var nearEnergy float64
	for i := range e.nearScratch {
		v := e.nearAt(e.window - i)
		e.nearScratch[i] = v
		nearEnergy += v * v
	}

	bestDelay := -1
	bestScore := math.Inf(-1)

	for d := e.minDelay; d <= size-e.minDelay; d += e.coarseStep {
		score := e.ncc(d, nearEnergy)
		if score > bestScore {
			bestScore = score
			bestDelay = d
		}
	}

	if bestDelay < 0 {
		e.rejectedLowScore++
		return
	}

	// Fine search within one coarse stride of the coarse best.
	lo := bestDelay - e.coarseStep
	if lo < e.minDelay {
		lo = e.minDelay
	}

	hi := bestDelay + e.coarseStep
	if hi > size-e.minDelay {
		hi = size - e.minDelay
	}

	for d := lo; d <= hi; d += fineStep {
		score := e.ncc(d, nearEnergy)
		if score > bestScore {
			bestScore = score
			bestDelay = d
		}
	}

	if bestScore < e.nccThreshold {
		e.rejectedLowScore++
		return
	}

	e.estimate = Estimate{DelaySamples: bestDelay, Score: bestScore, Locked: true}
	e.accepted++
}

// ncc scores one candidate delay: the normalized cross-correlation between
// the most recent near-end window and the far-end window delayed by d.
func (e *Estimator) ncc(d int, nearEnergy float64) float64 {
	size := len(e.far)

	// Oldest sample of the delayed far-end window.
	base := ((e.write-d-e.window)%size + size) % size

	var dot, farEnergy float64

	idx := base
	for i := 0; i < e.window; i++ {
		v := e.far[idx]
		dot += e.nearScratch[i] * v
		farEnergy += v * v

		idx++
		if idx >= size {
			idx = 0
		}
	}

	denom := nearEnergy * farEnergy
	if denom <= 0 {
		return 0
	}

	return dot / math.Sqrt(denom)
}

func (e *Estimator) nearAt(offset int) float64 {
	size := len(e.near)
	idx := ((e.write-offset)%size + size) % size
	return e.near[idx]
}

// rmsRecent computes the RMS of the most recent correlation window of buf.
func (e *Estimator) rmsRecent(buf []float64) float64 {
	size := len(buf)

	var sum float64

	idx := ((e.write-e.window)%size + size) % size
	for i := 0; i < e.window; i++ {
		v := buf[idx]
		sum += v * v

		idx++
		if idx >= size {
			idx = 0
		}
	}

	return math.Sqrt(sum / float64(e.window))
}

// statsInto writes the estimator counters into a strategy stats map.
func (e *Estimator) statsInto(m map[string]float64) {
	locked := 0.0
	if e.estimate.Locked {
		locked = 1
	}

	m["delay_ms"] = e.DelayMs()
	m["delay_samples"] = float64(e.estimate.DelaySamples)
	m["locked"] = locked
	m["last_score"] = e.estimate.Score
	m["accepted"] = float64(e.accepted)
	m["rejected_low_score"] = float64(e.rejectedLowScore)
	m["rejected_no_far_energy"] = float64(e.rejectedNoFar)
	m["rejected_no_near_energy"] = float64(e.rejectedNoNear)
}

// requiredEstimatorKeys are the parameters the estimator cannot default.
var requiredEstimatorKeys = []string{
	"echo_window_ms",
	"min_delay_ms",
	"update_interval_frames",
	"xcorr_window",
	"coarse_step",
	"ncc_threshold",
}

func estimatorConfigFromParams(sampleRate float64, p engine.Params) (EstimatorConfig, error) {
	if err := p.RequireNum(requiredEstimatorKeys...); err != nil {
		return EstimatorConfig{}, fmt.Errorf("align: %w", err)
	}

	return EstimatorConfig{
		SampleRate:           sampleRate,
		EchoWindowMs:         p.GetNum("echo_window_ms", 0),
		MinDelayMs:           p.GetNum("min_delay_ms", 0),
		UpdateIntervalFrames: int(p.GetNum("update_interval_frames", 0)),
		XcorrWindow:          int(p.GetNum("xcorr_window", 0)),
		CoarseStep:           int(p.GetNum("coarse_step", 0)),
		NCCThreshold:         p.GetNum("ncc_threshold", 0),
		FarRMSThreshold:      p.GetNum("far_rms_threshold", 1e-4),
		NearRMSThreshold:     p.GetNum("near_rms_threshold", 1e-4),
	}, nil
}
