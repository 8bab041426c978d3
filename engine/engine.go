// Package engine batches hardware audio callbacks into logical frames,
// routes them to the active echo cancellation strategy, measures per-frame
// processing time, and applies asynchronous control messages at frame
// boundaries only.
package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied by NewEngine when the corresponding Config field is zero.
const (
	defaultBatchFrames   = 1
	defaultOverrunBudget = 0.8
	defaultCommandBuffer = 32
	defaultTimingWindow  = 256
	defaultNotifyBuffer  = 16
)

// Config defines the engine's fixed processing parameters. Changing any of
// them requires constructing a new engine.
type Config struct {
	// SampleRate in Hz. Required.
	SampleRate float64

	// Quantum is the number of samples per hardware callback. Required.
	Quantum int

	// BatchFrames is the number of consecutive callbacks accumulated into
	// one logical frame. Defaults to 1.
	BatchFrames int

	// InitialMode names the strategy active after construction. Required.
	InitialMode string

	// OverrunBudget is the fraction of a logical frame's real-time duration
	// that processing may consume before the frame counts as an overrun.
	// Defaults to 0.8.
	OverrunBudget float64

	// DebugCapacity is the per-track capture capacity in samples.
	// Defaults to ten seconds at SampleRate.
	DebugCapacity int

	// Overrides holds per-strategy parameter deltas merged over each
	// strategy's defaults at construction time.
	Overrides map[string]Params

	// Logger receives diagnostic events. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Engine is the frame processor. All mutable state is owned by the
// frame-processing goroutine; other goroutines interact only through the
// command queue (see command.go).
type Engine struct {
	cfg      Config
	logger   zerolog.Logger
	registry *Registry

	strategies map[string]Strategy
	active     Strategy
	activeName string

	batchNear []float64
	batchFar  []float64
	batchOut  []float64
	batchTest []float64
	fill      int

	commands      chan command
	notifications chan Notification

	frameCount   uint64
	overrunCount uint64
	timing       *timingRing
	budget       time.Duration

	recording bool
	nearTrack *Track
	farTrack  *Track
	outTrack  *Track
}

// NewEngine constructs the engine and every registered strategy. Strategies
// whose construction fails are disabled and logged; the engine itself fails
// only if its own parameters are invalid or the initial mode is unavailable.
func NewEngine(cfg Config, registry *Registry) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("engine: sample rate must be > 0: %f", cfg.SampleRate)
	}

	if cfg.Quantum <= 0 {
		return nil, fmt.Errorf("engine: quantum must be > 0: %d", cfg.Quantum)
	}

	if cfg.BatchFrames <= 0 {
		cfg.BatchFrames = defaultBatchFrames
	}

	if cfg.OverrunBudget <= 0 || cfg.OverrunBudget > 1 {
		cfg.OverrunBudget = defaultOverrunBudget
	}

	if cfg.DebugCapacity <= 0 {
		cfg.DebugCapacity = int(10 * cfg.SampleRate)
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	frameSize := cfg.Quantum * cfg.BatchFrames
	frameDuration := time.Duration(float64(frameSize) / cfg.SampleRate * float64(time.Second))

	e := &Engine{
		cfg:           cfg,
		logger:        logger,
		registry:      registry,
		strategies:    make(map[string]Strategy),
		batchNear:     make([]float64, frameSize),
		batchFar:      make([]float64, frameSize),
		batchOut:      make([]float64, frameSize),
		batchTest:     make([]float64, frameSize),
		commands:      make(chan command, defaultCommandBuffer),
		notifications: make(chan Notification, defaultNotifyBuffer),
		timing:        newTimingRing(defaultTimingWindow),
		budget:        time.Duration(cfg.OverrunBudget * float64(frameDuration)),
	}

	ctx := Context{
		SampleRate: cfg.SampleRate,
		FrameSize:  frameSize,
		Logger:     logger,
		Notify:     e.notify,
	}

	defaults := registry.Defaults()
	for _, name := range registry.Names() {
		params := defaults[name]
		if override, ok := cfg.Overrides[name]; ok {
			params = params.Merge(override)
		}

		s, err := registry.Lookup(name)(ctx, params)
		if err != nil {
			e.logger.Error().Err(err).Str("strategy", name).Msg("strategy construction failed, disabled")
			continue
		}

		e.strategies[name] = s
	}

	initial, ok := e.strategies[cfg.InitialMode]
	if !ok {
		return nil, fmt.Errorf("engine: initial mode %q is not available", cfg.InitialMode)
	}

	e.active = initial
	e.activeName = cfg.InitialMode
	e.active.OnSelected()

	return e, nil
}

// FrameSize returns the logical frame length in samples.
func (e *Engine) FrameSize() int {
	return len(e.batchNear)
}

// Mode returns the name of the active strategy. Only meaningful from the
// frame-processing goroutine or while processing is stopped.
func (e *Engine) Mode() string {
	return e.activeName
}

// Notifications returns the outbound notification channel. Sends are
// non-blocking; unconsumed notifications are dropped.
func (e *Engine) Notifications() <-chan Notification {
	return e.notifications
}

// Process is the audio callback. All four slices must hold Quantum samples.
// Incoming samples accumulate into the current logical frame; the output of
// the previously processed frame is emitted at the matching offset. Once the
// batch is full, it is dispatched to the active strategy in-line.
//
// Process never blocks and never raises errors; overruns are counted.
func (e *Engine) Process(near, far, out, test []float64) {
	if e.fill == 0 {
		e.drainCommands()
	}

	q := len(near)
	if q > len(e.batchNear)-e.fill {
		q = len(e.batchNear) - e.fill
	}

	copy(out[:q], e.batchOut[e.fill:e.fill+q])
	if test != nil {
		copy(test[:q], e.batchTest[e.fill:e.fill+q])
	}

	copy(e.batchNear[e.fill:e.fill+q], near[:q])
	copy(e.batchFar[e.fill:e.fill+q], far[:q])
	e.fill += q

	if e.fill < len(e.batchNear) {
		return
	}

	start := time.Now()
	e.active.ProcessFrame(e.batchNear, e.batchFar, e.batchOut, e.batchTest)
	elapsed := time.Since(start)

	e.timing.add(float64(elapsed) / float64(time.Millisecond))
	if elapsed > e.budget {
		e.overrunCount++
		e.logger.Debug().
			Dur("elapsed", elapsed).
			Dur("budget", e.budget).
			Msg("frame overrun")
	}

	if e.recording {
		e.nearTrack.Append(e.batchNear)
		e.farTrack.Append(e.batchFar)
		e.outTrack.Append(e.batchOut)
	}

	e.fill = 0
	e.frameCount++
}

// switchMode activates the named strategy. OnSelected fires only when the
// mode actually changes; unknown names leave the previous mode active.
func (e *Engine) switchMode(name string) {
	if name == e.activeName {
		return
	}

	s, ok := e.strategies[name]
	if !ok {
		e.logger.Error().Str("strategy", name).Msg("setMode: unknown strategy, keeping current mode")
		return
	}

	e.active = s
	e.activeName = name
	e.active.OnSelected()
	e.logger.Info().Str("strategy", name).Msg("mode switched")
}

func (e *Engine) snapshotStats() Stats {
	median, p95 := e.timing.percentiles()

	return Stats{
		Mode:                   e.activeName,
		FrameCount:             e.frameCount,
		OverrunCount:           e.overrunCount,
		MedianProcessingTimeMs: median,
		P95ProcessingTimeMs:    p95,
		Strategy:               e.active.Stats(),
	}
}

func (e *Engine) startCapture() {
	if e.recording {
		return
	}

	e.nearTrack = NewTrack(e.cfg.DebugCapacity)
	e.farTrack = NewTrack(e.cfg.DebugCapacity)
	e.outTrack = NewTrack(e.cfg.DebugCapacity)
	e.recording = true

	if tp, ok := e.active.(TrackProvider); ok {
		tp.StartCapture(e.cfg.DebugCapacity)
	}
}

func (e *Engine) stopCapture() TrackDump {
	dump := TrackDump{
		SampleRate: e.cfg.SampleRate,
		Tracks:     map[string][]float64{},
	}

	if !e.recording {
		return dump
	}

	dump.Tracks["near_end"] = e.nearTrack.Samples()
	dump.Tracks["far_end"] = e.farTrack.Samples()
	dump.Tracks["output"] = e.outTrack.Samples()

	if tp, ok := e.active.(TrackProvider); ok {
		for name, samples := range tp.StopCapture() {
			dump.Tracks[name] = samples
		}
	}

	e.recording = false
	e.nearTrack = nil
	e.farTrack = nil
	e.outTrack = nil

	return dump
}

func (e *Engine) notify(n Notification) {
	select {
	case e.notifications <- n:
	default:
	}
}
