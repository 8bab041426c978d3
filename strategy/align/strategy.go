package align

import (
	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-aec/engine"
)

// delayJumpLogThresholdMs is the accepted-delay jump size that gets logged
// as a diagnostic event. Jumps do not alter the subtraction itself.
const delayJumpLogThresholdMs = 10.0

// Strategy cancels echo by subtracting the attenuated far-end signal read
// from the history buffer at the currently accepted delay. Until the
// estimator first locks, the output is silence: there is no trustworthy
// alignment yet.
type Strategy struct {
	estimator   *Estimator
	attenuation float64

	sampleRate float64
	logger     zerolog.Logger

	lastLoggedDelay int
	haveLoggedDelay bool

	echoTrack *engine.Track
}

// DefaultParams returns the default time-aligned subtraction parameters,
// matching the 48 kHz / 500 ms echo window configuration.
func DefaultParams() engine.Params {
	return engine.Params{Num: map[string]float64{
		"echo_window_ms":         500,
		"min_delay_ms":           80,
		"update_interval_frames": 10,
		"xcorr_window":           2048,
		"coarse_step":            8,
		"ncc_threshold":          0.5,
		"far_rms_threshold":      1e-4,
		"near_rms_threshold":     1e-4,
		"attenuation":            0.3,
	}}
}

// New creates the time-aligned subtraction strategy.
func New(ctx engine.Context, params engine.Params) (engine.Strategy, error) {
	cfg, err := estimatorConfigFromParams(ctx.SampleRate, params)
	if err != nil {
		return nil, err
	}

	est, err := NewEstimator(cfg)
	if err != nil {
		return nil, err
	}

	return &Strategy{
		estimator:   est,
		attenuation: params.GetNum("attenuation", 0.3),
		sampleRate:  ctx.SampleRate,
		logger:      ctx.Logger,
	}, nil
}

// Configure applies a parameter delta. Changing any buffer-sizing or search
// parameter rebuilds the estimator and drops the lock; changing only the
// attenuation keeps the estimator state.
func (s *Strategy) Configure(p engine.Params) error {
	s.attenuation = p.GetNum("attenuation", s.attenuation)

	if !touchesEstimator(p) {
		return nil
	}

	current := s.currentEstimatorParams()
	cfg, err := estimatorConfigFromParams(s.sampleRate, current.Merge(p))
	if err != nil {
		return err
	}

	est, err := NewEstimator(cfg)
	if err != nil {
		return err
	}

	s.estimator = est
	s.lastLoggedDelay = 0
	s.haveLoggedDelay = false

	return nil
}

// OnSelected clears the histories and the delay lock.
func (s *Strategy) OnSelected() {
	s.estimator.Reset()
	s.lastLoggedDelay = 0
	s.haveLoggedDelay = false
}

// ProcessFrame implements engine.Strategy.
func (s *Strategy) ProcessFrame(near, far, out, test []float64) {
	s.estimator.PushFrame(near, far)

	for i := range test {
		test[i] = 0
	}

	est := s.estimator.Estimate()
	if !est.Locked {
		for i := range out {
			out[i] = 0
		}
		return
	}

	s.logDelayJump(est.DelaySamples)

	frameLen := len(near)
	for i := range out {
		// near[i] sits frameLen-i samples behind the newest history
		// sample; the matching far-end sample is a further delay back.
		echo := s.attenuation * s.estimator.FarAt(frameLen-i+est.DelaySamples)
		out[i] = near[i] - echo

		if s.echoTrack != nil {
			s.echoTrack.AppendSample(echo)
		}
	}
}

// Stats implements engine.Strategy.
func (s *Strategy) Stats() map[string]float64 {
	m := map[string]float64{"attenuation": s.attenuation}
	s.estimator.statsInto(m)
	return m
}

// StartCapture implements engine.TrackProvider.
func (s *Strategy) StartCapture(capacity int) {
	s.echoTrack = engine.NewTrack(capacity)
}

// StopCapture implements engine.TrackProvider.
func (s *Strategy) StopCapture() map[string][]float64 {
	if s.echoTrack == nil {
		return nil
	}

	tracks := map[string][]float64{"echo_estimate": s.echoTrack.Samples()}
	s.echoTrack = nil

	return tracks
}

func (s *Strategy) logDelayJump(delay int) {
	// A delay of 0 is a legitimate accepted estimate, so an explicit flag
	// marks whether a previous delay exists to compare against.
	if !s.haveLoggedDelay {
		s.lastLoggedDelay = delay
		s.haveLoggedDelay = true
		return
	}

	jump := delay - s.lastLoggedDelay
	if jump < 0 {
		jump = -jump
	}

	jumpMs := float64(jump) / s.sampleRate * 1000
	if jumpMs >= delayJumpLogThresholdMs {
		s.logger.Info().
			Float64("from_ms", float64(s.lastLoggedDelay)/s.sampleRate*1000).
			Float64("to_ms", float64(delay)/s.sampleRate*1000).
			Msg("delay estimate jumped")
	}

	s.lastLoggedDelay = delay
}

// currentEstimatorParams reconstructs the estimator's parameter set so a
// delta can be merged over it.
func (s *Strategy) currentEstimatorParams() engine.Params {
	e := s.estimator
	return engine.Params{Num: map[string]float64{
		"echo_window_ms":         float64(len(e.near)) / e.sampleRate * 1000,
		"min_delay_ms":           float64(e.minDelay) / e.sampleRate * 1000,
		"update_interval_frames": float64(e.updateInterval),
		"xcorr_window":           float64(e.window),
		"coarse_step":            float64(e.coarseStep),
		"ncc_threshold":          e.nccThreshold,
		"far_rms_threshold":      e.farThreshold,
		"near_rms_threshold":     e.nearThreshold,
	}}
}

func touchesEstimator(p engine.Params) bool {
	for _, key := range requiredEstimatorKeys {
		if _, ok := p.Num[key]; ok {
			return true
		}
	}

	_, okFar := p.Num["far_rms_threshold"]
	_, okNear := p.Num["near_rms_threshold"]

	return okFar || okNear
}
