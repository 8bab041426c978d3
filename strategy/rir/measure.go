package rir

import (
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// trimThresholdRatio selects the IR tail cutoff: the trimmed response ends
// at the last coefficient exceeding this fraction of the peak magnitude.
const trimThresholdRatio = 0.1

// boundaryFraction flags measurements whose peak falls in the final portion
// of the response window, where the true peak may lie outside it.
const boundaryFraction = 0.95

// measureState is the measurement lifecycle: until a measurement is
// requested the measurer is inactive and reports not-ready.
type measureState int

const (
	stateInactive measureState = iota
	stateMeasuring
	stateReady
)

// TrimmedIR is the reduced impulse-response representation used for
// cancellation: a start offset plus a shorter, L1-normalized coefficient
// vector. An empty coefficient vector means "no measurable echo path".
type TrimmedIR struct {
	StartOffset  int
	Coefficients []float64
}

// Result holds one completed measurement.
type Result struct {
	// IR is the full, untrimmed impulse response of configured length.
	IR []float64
	// Trimmed is the cancellation filter derived from IR.
	Trimmed TrimmedIR

	Peak           float64
	PeakIndex      int
	RMS            float64
	CrestFactor    float64
	PeakAtBoundary bool
	// Silent reports that the recording was near-silence and the result
	// degraded to an empty trimmed response.
	Silent bool
}

// MeasurerConfig describes one measurement run.
type MeasurerConfig struct {
	SampleRate      float64
	SignalType      string
	MLSOrder        int
	PulseWidth      int
	DurationMs      float64
	IRLength        int
	PrePadMs        float64
	PreEchoMarginMs float64
	SilenceRMS      float64
	Epsilon         float64
}

// Measurer emits a known test signal while recording the near-end input,
// then recovers the impulse response by deconvolution. It has three states:
// inactive (not ready, no-op), measuring, and ready.
type Measurer struct {
	cfg MeasurerConfig

	signal       []float64 // prePad silence + test signal
	signalEnergy float64
	emitPos      int

	recorded []float64
	recPos   int

	state  measureState
	result Result

	preEchoMargin int

	// Deconvolution workspace, sized at construction so completing a
	// measurement allocates nothing beyond the result vectors.
	plan       *algofft.Plan[complex128]
	recPadded  []complex128
	sigPadded  []complex128
	recFreq    []complex128
	sigFreq    []complex128
	resultTime []complex128
}

// NewMeasurer validates the configuration and builds the padded test signal.
// The measurer starts inactive; call Begin to start a measurement.
func NewMeasurer(cfg MeasurerConfig) (*Measurer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("rir: sample rate must be > 0: %f", cfg.SampleRate)
	}

	if cfg.DurationMs <= 0 {
		return nil, fmt.Errorf("rir: duration must be > 0 ms: %f", cfg.DurationMs)
	}

	if cfg.IRLength <= 0 {
		return nil, fmt.Errorf("rir: IR length must be > 0: %d", cfg.IRLength)
	}

	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = 1e-4
	}

	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-6
	}

	raw, err := testSignal(cfg.SignalType, cfg.MLSOrder, cfg.PulseWidth)
	if err != nil {
		return nil, err
	}

	prePad := int(cfg.PrePadMs * 0.001 * cfg.SampleRate)
	if prePad < 0 {
		prePad = 0
	}

	duration := int(cfg.DurationMs * 0.001 * cfg.SampleRate)
	if duration < prePad+len(raw)+cfg.IRLength {
		return nil, fmt.Errorf("rir: duration %d samples too short for signal %d + IR %d",
			duration, prePad+len(raw), cfg.IRLength)
	}

	// Leading silence tolerates late playback start; the trailing
	// remainder of the recording window captures the decay.
	signal := make([]float64, prePad+len(raw))
	copy(signal[prePad:], raw)

	var energy float64
	for _, v := range raw {
		energy += v * v
	}

	fftSize := nextPowerOf2(duration + cfg.IRLength)
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("rir: failed to create FFT plan: %w", err)
	}

	return &Measurer{
		cfg:           cfg,
		signal:        signal,
		signalEnergy:  energy,
		recorded:      make([]float64, duration),
		preEchoMargin: int(cfg.PreEchoMarginMs * 0.001 * cfg.SampleRate),
		plan:          plan,
		recPadded:     make([]complex128, fftSize),
		sigPadded:     make([]complex128, fftSize),
		recFreq:       make([]complex128, fftSize),
		sigFreq:       make([]complex128, fftSize),
		resultTime:    make([]complex128, fftSize),
	}, nil
}

// Ready reports whether a completed measurement is available.
func (m *Measurer) Ready() bool {
	return m.state == stateReady
}

// Measuring reports whether a measurement is in progress.
func (m *Measurer) Measuring() bool {
	return m.state == stateMeasuring
}

// Result returns the completed measurement. Only valid when Ready.
func (m *Measurer) Result() Result {
	return m.result
}

// Signal returns the padded test signal that is emitted during measurement.
func (m *Measurer) Signal() []float64 {
	return m.signal
}

// Begin starts (or restarts) a measurement, discarding any previous result.
func (m *Measurer) Begin() {
	m.emitPos = 0
	m.recPos = 0
	m.state = stateMeasuring
	m.result = Result{}
}

// PushFrame consumes one frame during measurement: the next test-signal
// chunk is written to test and the near-end input is recorded. When the
// recording buffer fills, the impulse response is computed and the state
// moves to ready. Outside a measurement this is a no-op that zeroes test.
func (m *Measurer) PushFrame(near, test []float64) {
	if m.state != stateMeasuring {
		for i := range test {
			test[i] = 0
		}
		return
	}

	for i := range test {
		if m.emitPos < len(m.signal) {
			test[i] = m.signal[m.emitPos]
			m.emitPos++
		} else {
			test[i] = 0
		}
	}

	for _, v := range near {
		if m.recPos < len(m.recorded) {
			m.recorded[m.recPos] = v
			m.recPos++
		}
	}

	if m.recPos >= len(m.recorded) {
		m.analyze()
		m.state = stateReady
	}
}

// analyze recovers the impulse response from the recording by
// cross-correlation deconvolution, derives the peak metrics, and trims and
// L1-normalizes the response.
func (m *Measurer) analyze() {
	rms := signalRMS(m.recorded)
	if rms < m.cfg.SilenceRMS {
		// No measurable echo path. Downstream treats the empty trimmed
		// response as a no-op filter.
		m.result = Result{
			IR:      make([]float64, m.cfg.IRLength),
			Trimmed: TrimmedIR{},
			RMS:     rms,
			Silent:  true,
		}
		return
	}

	ir, err := m.deconvolve()
	if err != nil {
		// The transforms only fail on mismatched buffer sizes, which the
		// constructor rules out; degrade like a silent measurement.
		m.result = Result{IR: make([]float64, m.cfg.IRLength), RMS: rms, Silent: true}
		return
	}

	peakIdx := 0
	peakVal := 0.0
	var energy float64

	for i, v := range ir {
		energy += v * v

		av := math.Abs(v)
		if av > peakVal {
			peakVal = av
			peakIdx = i
		}
	}

	irRMS := math.Sqrt(energy / float64(len(ir)))

	crest := 0.0
	if irRMS > 0 {
		crest = peakVal / irRMS
	}

	m.result = Result{
		IR:             ir,
		Trimmed:        trim(ir, peakIdx, peakVal, m.preEchoMargin, m.cfg.Epsilon),
		Peak:           peakVal,
		PeakIndex:      peakIdx,
		RMS:            irRMS,
		CrestFactor:    crest,
		PeakAtBoundary: peakIdx >= int(boundaryFraction*float64(len(ir))),
	}
}

// deconvolve computes IR[k] = sum_n recorded[n]*signal[n-k] / signalEnergy
// for k in [0, irLength) via FFT cross-correlation: the positive lags of
// IFFT(FFT(recorded) * conj(FFT(signal))). The plan and scratch buffers
// live on the measurer; only the padding regions stay zero across runs.
func (m *Measurer) deconvolve() ([]float64, error) {
	for i, v := range m.recorded {
		m.recPadded[i] = complex(v, 0)
	}

	for i, v := range m.signal {
		m.sigPadded[i] = complex(v, 0)
	}

	if err := m.plan.Forward(m.recFreq, m.recPadded); err != nil {
		return nil, fmt.Errorf("rir: forward FFT failed: %w", err)
	}

	if err := m.plan.Forward(m.sigFreq, m.sigPadded); err != nil {
		return nil, fmt.Errorf("rir: forward FFT failed: %w", err)
	}

	// Multiply in place; recFreq is not needed past this point.
	for i := range m.recFreq {
		sigConj := complex(real(m.sigFreq[i]), -imag(m.sigFreq[i]))
		m.recFreq[i] *= sigConj
	}

	if err := m.plan.Inverse(m.resultTime, m.recFreq); err != nil {
		return nil, fmt.Errorf("rir: inverse FFT failed: %w", err)
	}

	ir := make([]float64, m.cfg.IRLength)
	for k := range ir {
		ir[k] = real(m.resultTime[k])
	}

	vecmath.ScaleBlock(ir, ir, 1/m.signalEnergy)

	return ir, nil
}

// trim reduces the full IR to the non-negligible span around the peak and
// L1-normalizes it so the maximum cancellation gain is bounded.
func trim(ir []float64, peakIdx int, peakVal float64, margin int, epsilon float64) TrimmedIR {
	if peakVal <= 0 {
		return TrimmedIR{}
	}

	start := peakIdx - margin
	if start < 0 {
		start = 0
	}

	threshold := trimThresholdRatio * peakVal

	end := start
	for i := len(ir) - 1; i >= start; i-- {
		if math.Abs(ir[i]) > threshold {
			end = i + 1
			break
		}
	}

	end += margin
	if end > len(ir) {
		end = len(ir)
	}

	if end <= start {
		return TrimmedIR{}
	}

	coeffs := make([]float64, end-start)
	copy(coeffs, ir[start:end])

	var l1 float64
	for _, v := range coeffs {
		l1 += math.Abs(v)
	}

	if l1 > epsilon {
		vecmath.ScaleBlock(coeffs, coeffs, 1/l1)
	}

	return TrimmedIR{StartOffset: start, Coefficients: coeffs}
}

func signalRMS(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}

	var sum float64
	for _, v := range buf {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(buf)))
}

func nextPowerOf2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
