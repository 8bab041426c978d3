package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ErrMissingParam is returned when a strategy is constructed without one of
// its required parameters.
var ErrMissingParam = errors.New("engine: missing required parameter")

// Params holds the named numeric and string parameters for one strategy.
type Params struct {
	Num map[string]float64
	Str map[string]string
}

// GetNum safely extracts a numeric parameter, returning def if missing or invalid.
func (p Params) GetNum(key string, def float64) float64 {
	if p.Num == nil {
		return def
	}

	v, ok := p.Num[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}

	return v
}

// GetStr safely extracts a string parameter, returning def if missing or empty.
func (p Params) GetStr(key, def string) string {
	if p.Str == nil {
		return def
	}

	v, ok := p.Str[key]
	if !ok || v == "" {
		return def
	}

	return v
}

// RequireNum verifies that every named numeric key is present and finite.
// All missing keys are reported in a single error.
func (p Params) RequireNum(keys ...string) error {
	var missing []string

	for _, key := range keys {
		if p.Num == nil {
			missing = append(missing, key)
			continue
		}

		v, ok := p.Num[key]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(missing, ", "))
	}

	return nil
}

// Merge overlays delta on top of p and returns the combined parameter set.
// Neither input is modified.
func (p Params) Merge(delta Params) Params {
	out := Params{Num: map[string]float64{}, Str: map[string]string{}}

	for k, v := range p.Num {
		out.Num[k] = v
	}

	for k, v := range p.Str {
		out.Str[k] = v
	}

	for k, v := range delta.Num {
		out.Num[k] = v
	}

	for k, v := range delta.Str {
		out.Str[k] = v
	}

	return out
}

// Context provides environmental information that strategies need.
type Context struct {
	SampleRate float64
	// FrameSize is the logical frame length in samples
	// (hardware quantum times the batch multiplier).
	FrameSize int
	Logger    zerolog.Logger
	// Notify delivers outbound notifications to the engine owner.
	// Never nil for strategies built through NewEngine.
	Notify func(Notification)
}

// FrameDuration returns the real-time duration of one logical frame in seconds.
func (c Context) FrameDuration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.FrameSize) / c.SampleRate
}

// Strategy is the per-mode processing and configuration contract.
// ProcessFrame must complete in bounded time and must not allocate in the
// steady state; Configure and OnSelected are only invoked at frame boundaries.
type Strategy interface {
	// ProcessFrame consumes one near-end and one far-end frame and fills the
	// output and test-signal frames. All slices have Context.FrameSize samples.
	ProcessFrame(near, far, out, test []float64)

	// Configure applies a parameter delta. Keys absent from the delta keep
	// their current values.
	Configure(p Params) error

	// OnSelected fires when the engine switches to this strategy, once per
	// actual transition.
	OnSelected()

	// Stats returns a snapshot of strategy-specific statistics.
	// Boolean values are encoded as 0 or 1.
	Stats() map[string]float64
}

// TrackProvider is an optional interface for strategies that capture
// strategy-specific debug tracks.
type TrackProvider interface {
	// StartCapture begins recording into fixed-capacity buffers.
	StartCapture(capacity int)

	// StopCapture stops recording and returns the captured tracks,
	// truncated to the samples actually written.
	StopCapture() map[string][]float64
}

// StateResetter is an optional interface for strategies with resettable
// learned state.
type StateResetter interface {
	ResetState()
}

// FilterExport is a snapshot of learned adaptive-filter coefficients.
type FilterExport struct {
	Coefficients    []float64 `json:"coefficients"`
	FilterLength    int       `json:"filterLength"`
	MinDelaySamples int       `json:"minDelaySamples"`
	SampleRate      float64   `json:"sampleRate"`
}

// FilterExporter is an optional interface for strategies that can export
// their learned filter for offline analysis.
type FilterExporter interface {
	ExportFilter() FilterExport
}

// Remeasurer is an optional interface for strategies that support an explicit
// re-measurement request.
type Remeasurer interface {
	Remeasure()
}

// Notification is an outbound event emitted by the engine or a strategy.
type Notification struct {
	// Kind names the event, e.g. "gated".
	Kind string
	// Gated reports the gate state for "gated" notifications.
	Gated bool
}
